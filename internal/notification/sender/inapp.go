package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

// InAppSender delivers IN_APP jobs by writing to the recipient's inbox
// table; the surrounding application reads it when rendering dashboards.
// The recipient is a user ID.
type InAppSender struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewInAppSender creates an in-app inbox sender
func NewInAppSender(db *sqlx.DB, logger *slog.Logger) *InAppSender {
	return &InAppSender{
		db:     db,
		logger: logger,
	}
}

// Channel implements Sender
func (s *InAppSender) Channel() domain.Channel {
	return domain.ChannelInApp
}

// Deliver inserts the notification into the in-app inbox.
func (s *InAppSender) Deliver(ctx context.Context, job *domain.Job) Result {
	var meta []byte
	if len(job.Payload.Meta) > 0 {
		var err error
		meta, err = json.Marshal(job.Payload.Meta)
		if err != nil {
			return FailedPermanently(fmt.Errorf("failed to encode notification meta: %w", err))
		}
	}

	query := `
		INSERT INTO in_app_notifications (
			notification_id, recipient_id, subject, content, meta,
			is_read, created_at
		) VALUES ($1, $2, $3, $4, $5, FALSE, NOW())
	`

	_, err := s.db.ExecContext(ctx, query,
		uuid.New().String(), job.Recipient, job.Subject, job.Content, meta)
	if err != nil {
		return Failed(fmt.Errorf("failed to store in-app notification: %w", err))
	}

	s.logger.Debug("In-app notification stored",
		slog.String("job_id", job.ID),
		slog.String("recipient", job.Recipient),
	)
	return Succeeded()
}
