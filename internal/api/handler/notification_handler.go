package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sharif418/edupro-notify/internal/api/dto"
	"github.com/sharif418/edupro-notify/internal/cache"
	"github.com/sharif418/edupro-notify/internal/notification/domain"
	"github.com/sharif418/edupro-notify/internal/notification/service"
	"github.com/sharif418/edupro-notify/internal/notification/storage"
)

const (
	statsCacheKey = "notifications:stats"
	statsCacheTag = "notification-stats"
	statsCacheTTL = time.Minute
)

// CreateNotification handles POST /api/v1/notifications
func (h *NotificationHandler) CreateNotification(c *gin.Context) {
	var req dto.CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	var scheduledAt time.Time
	if req.ScheduledAt != "" {
		parsed, err := time.Parse(time.RFC3339, req.ScheduledAt)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "scheduled_at must be RFC 3339",
			})
			return
		}
		scheduledAt = parsed
	}

	payload := domain.Payload{Meta: req.Meta}
	if req.Push != nil {
		payload.Push = &domain.PushPayload{
			Subscription: domain.PushSubscription{
				Endpoint: req.Push.Endpoint,
				Keys: domain.SubscriptionKeys{
					P256dh: req.Push.P256dh,
					Auth:   req.Push.Auth,
				},
			},
		}
	}

	jobID, err := h.notifications.AddNotification(c.Request.Context(), service.AddParams{
		Channel:     domain.Channel(req.Channel),
		Priority:    domain.Priority(req.Priority),
		Recipient:   req.Recipient,
		Subject:     req.Subject,
		Content:     req.Content,
		Payload:     payload,
		ScheduledAt: scheduledAt,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPayload) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to enqueue notification", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.cache.InvalidateByTags(c.Request.Context(), []string{statsCacheTag})

	c.JSON(http.StatusCreated, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusPending,
	})
}

// GetNotification handles GET /api/v1/notifications/:job_id
func (h *NotificationHandler) GetNotification(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.notifications.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
			return
		}
		h.logger.Error("Failed to get notification", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notification"})
		return
	}

	c.JSON(http.StatusOK, toNotificationDTO(job))
}

// ListNotifications handles GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	var req dto.ListNotificationsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.notifications.ListJobs(c.Request.Context(), storage.JobFilter{
		Channel:   req.Channel,
		Status:    req.Status,
		Recipient: req.Recipient,
		PageSize:  req.PageSize,
		Cursor:    cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list notifications", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list notifications"})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	response := make([]dto.NotificationDTO, len(jobs))
	for i := range jobs {
		response[i] = toNotificationDTO(&jobs[i])
	}

	var nextCursor string
	if hasMore {
		last := jobs[len(jobs)-1]
		nextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
	}

	c.JSON(http.StatusOK, dto.ListNotificationsResponse{
		Notifications: response,
		NextCursor:    nextCursor,
	})
}

// CancelNotification handles POST /api/v1/notifications/:job_id/cancel
func (h *NotificationHandler) CancelNotification(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	cancelled, err := h.notifications.Cancel(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to cancel notification", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel notification"})
		return
	}
	if !cancelled {
		// Anything past PENDING cannot be called back.
		c.JSON(http.StatusConflict, gin.H{
			"error": "Notification is not pending",
		})
		return
	}

	h.cache.InvalidateByTags(c.Request.Context(), []string{statsCacheTag})
	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusCancelled,
	})
}

// RetryNotification handles POST /api/v1/notifications/:job_id/retry
func (h *NotificationHandler) RetryNotification(c *gin.Context) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	retried, err := h.notifications.Retry(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to retry notification", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retry notification"})
		return
	}
	if !retried {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Only failed or cancelled notifications can be retried",
		})
		return
	}

	h.cache.InvalidateByTags(c.Request.Context(), []string{statsCacheTag})
	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": domain.JobStatusPending,
	})
}

// Stats handles GET /api/v1/notifications/stats. The aggregate is cached for
// a minute and invalidated whenever a job changes state through this API.
func (h *NotificationHandler) Stats(c *gin.Context) {
	end := time.Now()
	start := end.AddDate(0, 0, -7)

	var stats domain.DeliveryStats
	err := h.cache.GetOrSet(c.Request.Context(), statsCacheKey, &stats,
		cache.Options{TTL: statsCacheTTL, Tags: []string{statsCacheTag}},
		func(ctx context.Context) (any, error) {
			result, err := h.notifications.Stats(ctx, start, end)
			if err != nil {
				return nil, err
			}
			return result, nil
		},
	)
	if err != nil {
		h.logger.Error("Failed to compute delivery stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute stats"})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// CacheStats handles GET /api/v1/cache/stats
func (h *NotificationHandler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.GetStats())
}

func toNotificationDTO(job *domain.Job) dto.NotificationDTO {
	return dto.NotificationDTO{
		JobID:       job.ID,
		Channel:     string(job.Channel),
		Priority:    string(job.Priority),
		Recipient:   job.Recipient,
		Subject:     job.Subject,
		Content:     job.Content,
		ScheduledAt: job.ScheduledAt.Format(time.RFC3339),
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Status:      job.Status,
		LastError:   job.LastError,
		BulkJobID:   job.BulkJobID,
		CreatedAt:   job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   job.UpdatedAt.Format(time.RFC3339),
	}
}
