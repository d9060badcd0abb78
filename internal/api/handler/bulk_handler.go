package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sharif418/edupro-notify/internal/api/dto"
	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

// SendBulk handles POST /api/v1/notifications/bulk
func (h *NotificationHandler) SendBulk(c *gin.Context) {
	var req dto.SendBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	recipients := make([]domain.BulkRecipient, len(req.Recipients))
	for i, r := range req.Recipients {
		recipients[i] = domain.BulkRecipient{
			ID:        r.ID,
			Contact:   r.Contact,
			Variables: r.Variables,
		}
	}

	bulkID, err := h.notifications.SendBulk(c.Request.Context(), req.TemplateID, recipients)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTemplateNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
		case errors.Is(err, domain.ErrTemplateInactive):
			c.JSON(http.StatusConflict, gin.H{"error": "Template is inactive"})
		default:
			h.logger.Error("Failed to create bulk notification", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		}
		return
	}

	h.cache.InvalidateByTags(c.Request.Context(), []string{statsCacheTag})

	c.JSON(http.StatusCreated, gin.H{
		"bulk_job_id":      bulkID,
		"total_recipients": len(recipients),
		"status":           domain.BulkStatusProcessing,
	})
}

// GetBulkJob handles GET /api/v1/notifications/bulk/:bulk_job_id
func (h *NotificationHandler) GetBulkJob(c *gin.Context) {
	bulkID := c.Param("bulk_job_id")
	if _, err := uuid.Parse(bulkID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "bulk_job_id must be a valid UUID",
		})
		return
	}

	bulk, err := h.notifications.GetBulkJob(c.Request.Context(), bulkID)
	if err != nil {
		if errors.Is(err, domain.ErrBulkJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Bulk job not found"})
			return
		}
		h.logger.Error("Failed to get bulk job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get bulk job"})
		return
	}

	response := dto.BulkJobDTO{
		BulkJobID:            bulk.ID,
		TemplateID:           bulk.TemplateID,
		Status:               bulk.Status,
		TotalRecipients:      bulk.TotalRecipients,
		ProcessedRecipients:  bulk.ProcessedRecipients,
		SuccessfulDeliveries: bulk.SuccessfulDeliveries,
		FailedDeliveries:     bulk.FailedDeliveries,
		CreatedAt:            bulk.CreatedAt.Format(time.RFC3339),
	}
	if bulk.CompletedAt != nil {
		response.CompletedAt = bulk.CompletedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, response)
}
