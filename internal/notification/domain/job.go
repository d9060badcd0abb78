package domain

import "time"

// Channel is the delivery medium for a notification.
type Channel string

const (
	ChannelEmail Channel = "EMAIL"
	ChannelSMS   Channel = "SMS"
	ChannelPush  Channel = "PUSH"
	ChannelInApp Channel = "IN_APP"
)

// IsValid reports whether c is a known delivery channel.
func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelInApp:
		return true
	}
	return false
}

// Priority controls the order in which due jobs are dispatched within a sweep.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank returns the sort rank of the priority; lower ranks dispatch first.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityMedium:
		return 1
	default:
		return 2
	}
}

// Job status constants
const (
	JobStatusPending    = "PENDING"
	JobStatusProcessing = "PROCESSING"
	JobStatusSent       = "SENT"
	JobStatusFailed     = "FAILED"
	JobStatusCancelled  = "CANCELLED"
)

// DefaultMaxAttempts bounds delivery retries when the producer does not set one.
const DefaultMaxAttempts = 3

// Job is a single queued notification.
//
// Lifecycle: PENDING -> PROCESSING -> {SENT | back to PENDING with backoff | FAILED}.
// CANCELLED is reachable from PENDING only.
type Job struct {
	ID          string    `db:"job_id"`
	Channel     Channel   `db:"channel"`
	Priority    Priority  `db:"priority"`
	Recipient   string    `db:"recipient"`
	Subject     string    `db:"subject"`
	Content     string    `db:"content"`
	Payload     Payload   `db:"-"`
	RawPayload  []byte    `db:"payload"`
	ScheduledAt time.Time `db:"scheduled_at"`
	Attempts    int       `db:"attempts"`
	MaxAttempts int       `db:"max_attempts"`
	Status      string    `db:"status"`
	LastError   string    `db:"last_error"`
	BulkJobID   string    `db:"bulk_job_id"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// BackoffDelay returns the delay before the next delivery attempt,
// given the number of attempts already made: 2^attempts minutes.
func BackoffDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(1<<uint(attempts)) * time.Minute
}

// DeliveryStats aggregates job counts over a reporting window.
type DeliveryStats struct {
	Total     int             `json:"total"`
	ByStatus  map[string]int  `json:"by_status"`
	ByChannel map[Channel]int `json:"by_channel"`
}
