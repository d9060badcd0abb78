package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/sharif418/edupro-notify/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "notify-api",
		})
	})

	notificationHandler := handler.NewNotificationHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		notifications := v1.Group("/notifications")
		{
			// POST /api/v1/notifications - Enqueue a notification
			notifications.POST("", notificationHandler.CreateNotification)

			// GET /api/v1/notifications - List notifications with filtering and pagination
			notifications.GET("", notificationHandler.ListNotifications)

			// GET /api/v1/notifications/stats - Delivery stats over the last week
			notifications.GET("/stats", notificationHandler.Stats)

			// POST /api/v1/notifications/bulk - Template fan-out over a recipient list
			notifications.POST("/bulk", notificationHandler.SendBulk)

			// GET /api/v1/notifications/bulk/:bulk_job_id - Bulk job progress
			notifications.GET("/bulk/:bulk_job_id", notificationHandler.GetBulkJob)

			// GET /api/v1/notifications/:job_id - Get notification details
			notifications.GET("/:job_id", notificationHandler.GetNotification)

			// POST /api/v1/notifications/:job_id/cancel - Cancel a pending notification
			notifications.POST("/:job_id/cancel", notificationHandler.CancelNotification)

			// POST /api/v1/notifications/:job_id/retry - Requeue a failed notification
			notifications.POST("/:job_id/retry", notificationHandler.RetryNotification)
		}

		templates := v1.Group("/templates")
		{
			templates.POST("", notificationHandler.CreateTemplate)
			templates.GET("", notificationHandler.ListTemplates)
			templates.GET("/:template_id", notificationHandler.GetTemplate)
		}

		v1.GET("/cache/stats", notificationHandler.CacheStats)
	}

	return r
}
