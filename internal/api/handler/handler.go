package handler

import (
	"log/slog"

	"github.com/sharif418/edupro-notify/internal/cache"
	"github.com/sharif418/edupro-notify/internal/notification/service"
)

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Notifications *service.Service
	Cache         *cache.Service
}

// NotificationHandler handles notification-related HTTP requests
type NotificationHandler struct {
	logger        *slog.Logger
	notifications *service.Service
	cache         *cache.Service
}

// NewNotificationHandler creates a new NotificationHandler instance
func NewNotificationHandler(deps *Dependencies) *NotificationHandler {
	return &NotificationHandler{
		logger:        deps.Logger,
		notifications: deps.Notifications,
		cache:         deps.Cache,
	}
}
