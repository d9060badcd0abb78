package domain

import "time"

// Bulk job status constants
const (
	BulkStatusPending    = "PENDING"
	BulkStatusProcessing = "PROCESSING"
	BulkStatusCompleted  = "COMPLETED"
	BulkStatusFailed     = "FAILED"
)

// BulkJob is a template fan-out over a recipient list. It expands into one
// Job per recipient and completes once every recipient has been resolved,
// regardless of individual outcomes.
type BulkJob struct {
	ID                   string     `db:"bulk_job_id"`
	TemplateID           string     `db:"template_id"`
	Status               string     `db:"status"`
	TotalRecipients      int        `db:"total_recipients"`
	ProcessedRecipients  int        `db:"processed_recipients"`
	SuccessfulDeliveries int        `db:"successful_deliveries"`
	FailedDeliveries     int        `db:"failed_deliveries"`
	CreatedAt            time.Time  `db:"created_at"`
	CompletedAt          *time.Time `db:"completed_at"`
}

// BulkRecipient is one entry of a bulk recipient list. Variables feed the
// per-recipient template rendering.
type BulkRecipient struct {
	ID        string            `json:"id"`
	Contact   string            `json:"contact"`
	Variables map[string]string `json:"variables,omitempty"`
}
