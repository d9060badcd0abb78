package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sharif418/edupro-notify/internal/api/dto"
	"github.com/sharif418/edupro-notify/internal/cache"
	"github.com/sharif418/edupro-notify/internal/notification/domain"
	"github.com/sharif418/edupro-notify/internal/notification/service"
)

const (
	templateCacheTag = "templates"
	templateCacheTTL = 10 * time.Minute
)

// CreateTemplate handles POST /api/v1/templates
func (h *NotificationHandler) CreateTemplate(c *gin.Context) {
	var req dto.CreateTemplateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	tmpl, err := h.notifications.CreateTemplate(c.Request.Context(), service.TemplateParams{
		Name:      req.Name,
		Channel:   domain.Channel(req.Channel),
		Subject:   req.Subject,
		Content:   req.Content,
		Variables: req.Variables,
	})
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.cache.InvalidateByTags(c.Request.Context(), []string{templateCacheTag})

	c.JSON(http.StatusCreated, toTemplateDTO(tmpl))
}

// GetTemplate handles GET /api/v1/templates/:template_id
func (h *NotificationHandler) GetTemplate(c *gin.Context) {
	templateID := c.Param("template_id")
	if _, err := uuid.Parse(templateID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "template_id must be a valid UUID",
		})
		return
	}

	var tmpl domain.Template
	err := h.cache.GetOrSet(c.Request.Context(), "templates:"+templateID, &tmpl,
		cache.Options{TTL: templateCacheTTL, Tags: []string{templateCacheTag}},
		func(ctx context.Context) (any, error) {
			return h.notifications.GetTemplate(ctx, templateID)
		},
	)
	if err != nil {
		if errors.Is(err, domain.ErrTemplateNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		h.logger.Error("Failed to get template", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get template"})
		return
	}

	c.JSON(http.StatusOK, toTemplateDTO(&tmpl))
}

// ListTemplates handles GET /api/v1/templates
func (h *NotificationHandler) ListTemplates(c *gin.Context) {
	activeOnly := c.Query("active") == "true"

	var templates []domain.Template
	err := h.cache.GetOrSet(c.Request.Context(), "templates:list:"+strconv.FormatBool(activeOnly), &templates,
		cache.Options{TTL: templateCacheTTL, Tags: []string{templateCacheTag}},
		func(ctx context.Context) (any, error) {
			return h.notifications.ListTemplates(ctx, activeOnly)
		},
	)
	if err != nil {
		h.logger.Error("Failed to list templates", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list templates"})
		return
	}

	response := make([]dto.TemplateDTO, len(templates))
	for i := range templates {
		response[i] = toTemplateDTO(&templates[i])
	}

	c.JSON(http.StatusOK, gin.H{"templates": response})
}

func toTemplateDTO(tmpl *domain.Template) dto.TemplateDTO {
	return dto.TemplateDTO{
		TemplateID: tmpl.ID,
		Name:       tmpl.Name,
		Channel:    string(tmpl.Channel),
		Subject:    tmpl.Subject,
		Content:    tmpl.Content,
		Variables:  tmpl.Variables,
		IsActive:   tmpl.IsActive,
		CreatedAt:  tmpl.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  tmpl.UpdatedAt.Format(time.RFC3339),
	}
}
