package dto

// CreateNotificationRequest is the body of POST /api/v1/notifications.
type CreateNotificationRequest struct {
	Channel     string            `json:"channel" binding:"required"`
	Priority    string            `json:"priority"`
	Recipient   string            `json:"recipient" binding:"required"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content" binding:"required"`
	ScheduledAt string            `json:"scheduled_at"`
	MaxAttempts int               `json:"max_attempts"`
	Push        *PushPayloadDTO   `json:"push,omitempty"`
	Meta        map[string]string `json:"meta,omitempty"`
}

// PushPayloadDTO carries a browser push subscription for PUSH notifications.
type PushPayloadDTO struct {
	Endpoint string `json:"endpoint" binding:"required"`
	P256dh   string `json:"p256dh" binding:"required"`
	Auth     string `json:"auth" binding:"required"`
}

// BulkRecipientDTO is one recipient of a bulk send.
type BulkRecipientDTO struct {
	ID        string            `json:"id"`
	Contact   string            `json:"contact" binding:"required"`
	Variables map[string]string `json:"variables"`
}

// SendBulkRequest is the body of POST /api/v1/notifications/bulk.
type SendBulkRequest struct {
	TemplateID string             `json:"template_id" binding:"required"`
	Recipients []BulkRecipientDTO `json:"recipients" binding:"required"`
}

// ListNotificationsRequest are the query parameters of GET /api/v1/notifications.
type ListNotificationsRequest struct {
	Channel   string `form:"channel"`
	Status    string `form:"status"`
	Recipient string `form:"recipient"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

// ListNotificationsResponse is the paginated list payload.
type ListNotificationsResponse struct {
	Notifications []NotificationDTO `json:"notifications"`
	NextCursor    string            `json:"next_cursor,omitempty"`
}

// NotificationDTO is the wire form of a notification job.
type NotificationDTO struct {
	JobID       string `json:"job_id"`
	Channel     string `json:"channel"`
	Priority    string `json:"priority"`
	Recipient   string `json:"recipient"`
	Subject     string `json:"subject,omitempty"`
	Content     string `json:"content"`
	ScheduledAt string `json:"scheduled_at"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`
	Status      string `json:"status"`
	LastError   string `json:"last_error,omitempty"`
	BulkJobID   string `json:"bulk_job_id,omitempty"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

// BulkJobDTO is the wire form of a bulk job with its delivery counters.
type BulkJobDTO struct {
	BulkJobID            string `json:"bulk_job_id"`
	TemplateID           string `json:"template_id"`
	Status               string `json:"status"`
	TotalRecipients      int    `json:"total_recipients"`
	ProcessedRecipients  int    `json:"processed_recipients"`
	SuccessfulDeliveries int    `json:"successful_deliveries"`
	FailedDeliveries     int    `json:"failed_deliveries"`
	CreatedAt            string `json:"created_at"`
	CompletedAt          string `json:"completed_at,omitempty"`
}

// CreateTemplateRequest is the body of POST /api/v1/templates.
type CreateTemplateRequest struct {
	Name      string   `json:"name" binding:"required"`
	Channel   string   `json:"channel" binding:"required"`
	Subject   string   `json:"subject"`
	Content   string   `json:"content" binding:"required"`
	Variables []string `json:"variables"`
}

// TemplateDTO is the wire form of a notification template.
type TemplateDTO struct {
	TemplateID string   `json:"template_id"`
	Name       string   `json:"name"`
	Channel    string   `json:"channel"`
	Subject    string   `json:"subject,omitempty"`
	Content    string   `json:"content"`
	Variables  []string `json:"variables,omitempty"`
	IsActive   bool     `json:"is_active"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}
