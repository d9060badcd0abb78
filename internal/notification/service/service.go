// Package service is the producer-facing notification API: enqueue single
// and bulk notifications, cancel, retry, and report delivery stats. The
// HTTP layer is a thin shell over this package.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
	"github.com/sharif418/edupro-notify/internal/notification/storage"
)

// Store is the persistence surface the service needs.
type Store interface {
	CreateJob(ctx context.Context, job *domain.Job) error
	GetJob(ctx context.Context, jobID string) (*domain.Job, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	CancelJob(ctx context.Context, jobID string) (bool, error)
	RetryJob(ctx context.Context, jobID string, runAt time.Time) (bool, error)
	Stats(ctx context.Context, start, end time.Time) (*domain.DeliveryStats, error)
	CreateBulkJob(ctx context.Context, bulk *domain.BulkJob) error
	MarkBulkProcessing(ctx context.Context, bulkID string) error
	GetBulkJob(ctx context.Context, bulkID string) (*domain.BulkJob, error)
	ResolveBulkDelivery(ctx context.Context, bulkID string, delivered bool) error
	CreateTemplate(ctx context.Context, tmpl *domain.Template) error
	GetTemplate(ctx context.Context, templateID string) (*domain.Template, error)
	ListTemplates(ctx context.Context, activeOnly bool) ([]domain.Template, error)
}

// WakeupPublisher nudges the worker after an enqueue so due jobs are picked
// up before the next periodic sweep. shared/rabbitmq.Client implements it.
type WakeupPublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Config holds service dependencies
type Config struct {
	Logger *slog.Logger
	Store  Store
	Wakeup WakeupPublisher // optional
}

// Service implements the producer API.
type Service struct {
	logger *slog.Logger
	store  Store
	wakeup WakeupPublisher
	now    func() time.Time
	newID  func() string
}

// NewService creates a new notification service
func NewService(cfg *Config) *Service {
	return &Service{
		logger: cfg.Logger,
		store:  cfg.Store,
		wakeup: cfg.Wakeup,
		now:    time.Now,
		newID:  func() string { return uuid.New().String() },
	}
}

// AddParams describes a single notification to enqueue.
type AddParams struct {
	Channel     domain.Channel
	Priority    domain.Priority
	Recipient   string
	Subject     string
	Content     string
	Payload     domain.Payload
	ScheduledAt time.Time
	MaxAttempts int
}

// AddNotification validates the request, creates a PENDING job, and nudges
// the worker. Returns the new job ID.
func (s *Service) AddNotification(ctx context.Context, params AddParams) (string, error) {
	if !params.Channel.IsValid() {
		return "", fmt.Errorf("invalid channel: %q", params.Channel)
	}
	if params.Recipient == "" {
		return "", fmt.Errorf("recipient is required")
	}
	if params.Content == "" {
		return "", fmt.Errorf("content is required")
	}
	if params.Priority == "" {
		params.Priority = domain.PriorityMedium
	}
	if !params.Priority.IsValid() {
		return "", fmt.Errorf("invalid priority: %q", params.Priority)
	}
	if err := params.Payload.Validate(params.Channel); err != nil {
		return "", err
	}

	now := s.now()
	scheduledAt := params.ScheduledAt
	if scheduledAt.IsZero() {
		scheduledAt = now
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = domain.DefaultMaxAttempts
	}

	rawPayload, err := params.Payload.Encode()
	if err != nil {
		return "", err
	}

	job := &domain.Job{
		ID:          s.newID(),
		Channel:     params.Channel,
		Priority:    params.Priority,
		Recipient:   params.Recipient,
		Subject:     params.Subject,
		Content:     params.Content,
		Payload:     params.Payload,
		RawPayload:  rawPayload,
		ScheduledAt: scheduledAt,
		MaxAttempts: maxAttempts,
		Status:      domain.JobStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", err
	}

	s.logger.Info("Notification enqueued",
		slog.String("job_id", job.ID),
		slog.String("channel", string(job.Channel)),
		slog.String("priority", string(job.Priority)),
	)

	s.publishWakeup(ctx, job.ID)
	return job.ID, nil
}

// SendBulk creates a bulk job, renders the template per recipient, and
// enqueues one notification per recipient. Per-recipient enqueue failures
// are recorded against the bulk counters and never abort the batch.
func (s *Service) SendBulk(ctx context.Context, templateID string, recipients []domain.BulkRecipient) (string, error) {
	if len(recipients) == 0 {
		return "", fmt.Errorf("recipient list is empty")
	}

	tmpl, err := s.store.GetTemplate(ctx, templateID)
	if err != nil {
		return "", err
	}
	if !tmpl.IsActive {
		return "", domain.ErrTemplateInactive
	}

	now := s.now()
	bulk := &domain.BulkJob{
		ID:              s.newID(),
		TemplateID:      tmpl.ID,
		Status:          domain.BulkStatusPending,
		TotalRecipients: len(recipients),
		CreatedAt:       now,
	}
	if err := s.store.CreateBulkJob(ctx, bulk); err != nil {
		return "", err
	}
	if err := s.store.MarkBulkProcessing(ctx, bulk.ID); err != nil {
		return "", err
	}

	enqueued := 0
	for _, recipient := range recipients {
		job := &domain.Job{
			ID:          s.newID(),
			Channel:     tmpl.Channel,
			Priority:    domain.PriorityMedium,
			Recipient:   recipient.Contact,
			Subject:     RenderTemplate(tmpl.Subject, recipient.Variables),
			Content:     RenderTemplate(tmpl.Content, recipient.Variables),
			ScheduledAt: now,
			MaxAttempts: domain.DefaultMaxAttempts,
			Status:      domain.JobStatusPending,
			BulkJobID:   bulk.ID,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		if err := s.store.CreateJob(ctx, job); err != nil {
			s.logger.Error("Failed to enqueue bulk recipient",
				slog.String("bulk_job_id", bulk.ID),
				slog.String("recipient_id", recipient.ID),
				slog.String("error", err.Error()),
			)
			if resolveErr := s.store.ResolveBulkDelivery(ctx, bulk.ID, false); resolveErr != nil {
				s.logger.Error("Failed to record bulk enqueue failure",
					slog.String("bulk_job_id", bulk.ID),
					slog.String("error", resolveErr.Error()),
				)
			}
			continue
		}
		enqueued++
	}

	s.logger.Info("Bulk notification created",
		slog.String("bulk_job_id", bulk.ID),
		slog.String("template_id", tmpl.ID),
		slog.Int("recipients", len(recipients)),
		slog.Int("enqueued", enqueued),
	)

	if enqueued > 0 {
		s.publishWakeup(ctx, bulk.ID)
	}
	return bulk.ID, nil
}

// Cancel prevents future pickup of a PENDING job. It does not interrupt a
// job already mid-delivery.
func (s *Service) Cancel(ctx context.Context, jobID string) (bool, error) {
	cancelled, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		return false, err
	}
	if cancelled {
		s.logger.Info("Notification cancelled",
			slog.String("job_id", jobID),
		)
	}
	return cancelled, nil
}

// Retry re-enqueues a FAILED or CANCELLED job with a fresh attempt budget.
func (s *Service) Retry(ctx context.Context, jobID string) (bool, error) {
	retried, err := s.store.RetryJob(ctx, jobID, s.now())
	if err != nil {
		return false, err
	}
	if retried {
		s.logger.Info("Notification requeued for retry",
			slog.String("job_id", jobID),
		)
		s.publishWakeup(ctx, jobID)
	}
	return retried, nil
}

// Stats aggregates delivery counts over [start, end).
func (s *Service) Stats(ctx context.Context, start, end time.Time) (*domain.DeliveryStats, error) {
	return s.store.Stats(ctx, start, end)
}

// GetJob fetches a single job.
func (s *Service) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// ListJobs lists jobs with filters and keyset pagination.
func (s *Service) ListJobs(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	return s.store.ListJobs(ctx, filter)
}

// GetBulkJob fetches a bulk job with its counters.
func (s *Service) GetBulkJob(ctx context.Context, bulkID string) (*domain.BulkJob, error) {
	return s.store.GetBulkJob(ctx, bulkID)
}

// TemplateParams describes a template to create.
type TemplateParams struct {
	Name      string
	Channel   domain.Channel
	Subject   string
	Content   string
	Variables []string
}

// CreateTemplate validates and stores a notification template.
func (s *Service) CreateTemplate(ctx context.Context, params TemplateParams) (*domain.Template, error) {
	if params.Name == "" {
		return nil, fmt.Errorf("template name is required")
	}
	if !params.Channel.IsValid() {
		return nil, fmt.Errorf("invalid channel: %q", params.Channel)
	}
	if params.Content == "" {
		return nil, fmt.Errorf("template content is required")
	}

	now := s.now()
	tmpl := &domain.Template{
		ID:        s.newID(),
		Name:      params.Name,
		Channel:   params.Channel,
		Subject:   params.Subject,
		Content:   params.Content,
		Variables: params.Variables,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateTemplate(ctx, tmpl); err != nil {
		return nil, err
	}
	return tmpl, nil
}

// GetTemplate fetches a template by ID.
func (s *Service) GetTemplate(ctx context.Context, templateID string) (*domain.Template, error) {
	return s.store.GetTemplate(ctx, templateID)
}

// ListTemplates lists templates.
func (s *Service) ListTemplates(ctx context.Context, activeOnly bool) ([]domain.Template, error) {
	return s.store.ListTemplates(ctx, activeOnly)
}

// publishWakeup is best-effort; the worker's periodic sweep picks up the
// job regardless.
func (s *Service) publishWakeup(ctx context.Context, jobID string) {
	if s.wakeup == nil {
		return
	}

	body, err := json.Marshal(map[string]string{"job_id": jobID})
	if err != nil {
		return
	}

	if err := s.wakeup.PublishWithRetry(ctx, body, "application/json"); err != nil {
		s.logger.Warn("Failed to publish worker wakeup",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}
}
