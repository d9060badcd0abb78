// Package storage persists the notification queue: jobs, bulk fan-out
// counters, and templates.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

const jobColumns = `
	job_id, channel, priority, recipient, subject, content, payload,
	scheduled_at, attempts, max_attempts, status, last_error,
	COALESCE(bulk_job_id::text, '') AS bulk_job_id, created_at, updated_at
`

// Storage handles all database operations for the notification queue
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// CreateJob inserts a new PENDING job
func (s *Storage) CreateJob(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO notification_jobs (
			job_id, channel, priority, recipient, subject, content, payload,
			scheduled_at, attempts, max_attempts, status, last_error,
			bulk_job_id, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10, $11, $12,
			NULLIF($13, '')::uuid, $14, $15
		)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Channel,
		job.Priority,
		job.Recipient,
		job.Subject,
		job.Content,
		job.RawPayload,
		job.ScheduledAt,
		job.Attempts,
		job.MaxAttempts,
		job.Status,
		job.LastError,
		job.BulkJobID,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create notification job: %w", err)
	}

	return nil
}

// GetJob retrieves a job by its ID
func (s *Storage) GetJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs WHERE job_id = $1`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get notification job: %w", err)
	}

	s.decodePayload(&job)
	return &job, nil
}

// ListDue fetches PENDING jobs whose scheduled time has arrived, ordered
// HIGH before MEDIUM before LOW and then by scheduled time. The ordering
// lives in the query so that when more than limit jobs are due, the batch
// keeps the highest-priority ones instead of truncating by scheduled time
// alone.
func (s *Storage) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error) {
	query := `
		SELECT ` + jobColumns + `
		FROM notification_jobs
		WHERE status = $1 AND scheduled_at <= $2
		ORDER BY CASE priority WHEN 'HIGH' THEN 0 WHEN 'MEDIUM' THEN 1 ELSE 2 END,
		         scheduled_at ASC
		LIMIT $3
	`

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, domain.JobStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due jobs: %w", err)
	}

	for i := range jobs {
		s.decodePayload(&jobs[i])
	}
	return jobs, nil
}

// ClaimJob advances a job from PENDING to PROCESSING using a conditional
// update, so two workers never double-process the same job.
func (s *Storage) ClaimJob(ctx context.Context, jobID string) (*domain.Job, error) {
	query := `
		UPDATE notification_jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
		RETURNING ` + jobColumns + `
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusProcessing, jobID, domain.JobStatusPending)
	if err != nil {
		if err == sql.ErrNoRows {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.decodePayload(&job)
	return &job, nil
}

// MarkSent records a successful delivery
func (s *Storage) MarkSent(ctx context.Context, jobID string, attempts int) error {
	query := `
		UPDATE notification_jobs
		SET status = $1,
		    attempts = $2,
		    last_error = '',
		    updated_at = NOW()
		WHERE job_id = $3
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusSent, attempts, jobID); err != nil {
		return fmt.Errorf("failed to mark job sent: %w", err)
	}
	return nil
}

// MarkFailed records a permanently failed delivery
func (s *Storage) MarkFailed(ctx context.Context, jobID string, attempts int, lastError string) error {
	query := `
		UPDATE notification_jobs
		SET status = $1,
		    attempts = $2,
		    last_error = $3,
		    updated_at = NOW()
		WHERE job_id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, attempts, lastError, jobID); err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// RescheduleJob returns a job to PENDING for a later retry
func (s *Storage) RescheduleJob(ctx context.Context, jobID string, attempts int, runAt time.Time, lastError string) error {
	query := `
		UPDATE notification_jobs
		SET status = $1,
		    attempts = $2,
		    scheduled_at = $3,
		    last_error = $4,
		    updated_at = NOW()
		WHERE job_id = $5
	`

	if _, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, attempts, runAt, lastError, jobID); err != nil {
		return fmt.Errorf("failed to reschedule job: %w", err)
	}
	return nil
}

// CancelJob cancels a PENDING job. Returns false if the job was not
// cancellable (already picked up, finished, or missing).
func (s *Storage) CancelJob(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE notification_jobs
		SET status = $1,
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.JobStatusCancelled, jobID, domain.JobStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// RetryJob puts a FAILED or CANCELLED job back on the queue with a fresh
// attempt budget. Returns false if the job was not in a retryable state.
func (s *Storage) RetryJob(ctx context.Context, jobID string, runAt time.Time) (bool, error) {
	query := `
		UPDATE notification_jobs
		SET status = $1,
		    attempts = 0,
		    last_error = '',
		    scheduled_at = $2,
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status IN ($4, $5)
	`

	result, err := s.db.ExecContext(ctx, query,
		domain.JobStatusPending, runAt, jobID, domain.JobStatusFailed, domain.JobStatusCancelled)
	if err != nil {
		return false, fmt.Errorf("failed to retry job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// JobFilter narrows ListJobs results
type JobFilter struct {
	Channel   string
	Status    string
	Recipient string
	PageSize  int
	Cursor    *JobCursor
}

// JobCursor is a keyset pagination cursor over (created_at, job_id)
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs lists jobs with optional filters and keyset pagination. One row
// beyond PageSize is returned so the caller can detect further pages.
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM notification_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Channel != "" {
		query += fmt.Sprintf(" AND channel = $%d", argIdx)
		args = append(args, filter.Channel)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Recipient != "" {
		query += fmt.Sprintf(" AND recipient = $%d", argIdx)
		args = append(args, filter.Recipient)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	for i := range jobs {
		s.decodePayload(&jobs[i])
	}
	return jobs, nil
}

// Stats aggregates job counts by status and channel over a creation window
func (s *Storage) Stats(ctx context.Context, start, end time.Time) (*domain.DeliveryStats, error) {
	query := `
		SELECT status, channel, COUNT(*) AS count
		FROM notification_jobs
		WHERE created_at >= $1 AND created_at < $2
		GROUP BY status, channel
	`

	rows, err := s.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate notification stats: %w", err)
	}
	defer rows.Close()

	stats := &domain.DeliveryStats{
		ByStatus:  make(map[string]int),
		ByChannel: make(map[domain.Channel]int),
	}

	for rows.Next() {
		var (
			status  string
			channel domain.Channel
			count   int
		)
		if err := rows.Scan(&status, &channel, &count); err != nil {
			return nil, fmt.Errorf("failed to scan stats row: %w", err)
		}
		stats.Total += count
		stats.ByStatus[status] += count
		stats.ByChannel[channel] += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stats rows: %w", err)
	}

	return stats, nil
}

// CreateBulkJob inserts a new bulk fan-out record
func (s *Storage) CreateBulkJob(ctx context.Context, bulk *domain.BulkJob) error {
	query := `
		INSERT INTO bulk_notification_jobs (
			bulk_job_id, template_id, status, total_recipients,
			processed_recipients, successful_deliveries, failed_deliveries,
			created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		bulk.ID,
		bulk.TemplateID,
		bulk.Status,
		bulk.TotalRecipients,
		bulk.ProcessedRecipients,
		bulk.SuccessfulDeliveries,
		bulk.FailedDeliveries,
		bulk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create bulk job: %w", err)
	}

	return nil
}

// MarkBulkProcessing advances a bulk job from PENDING to PROCESSING once
// recipient expansion starts.
func (s *Storage) MarkBulkProcessing(ctx context.Context, bulkID string) error {
	query := `
		UPDATE bulk_notification_jobs
		SET status = $1
		WHERE bulk_job_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, domain.BulkStatusProcessing, bulkID, domain.BulkStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark bulk job processing: %w", err)
	}
	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return domain.ErrBulkJobNotFound
	}

	return nil
}

// GetBulkJob retrieves a bulk job by its ID
func (s *Storage) GetBulkJob(ctx context.Context, bulkID string) (*domain.BulkJob, error) {
	query := `
		SELECT bulk_job_id, template_id, status, total_recipients,
		       processed_recipients, successful_deliveries, failed_deliveries,
		       created_at, completed_at
		FROM bulk_notification_jobs
		WHERE bulk_job_id = $1
	`

	var bulk domain.BulkJob
	err := s.db.GetContext(ctx, &bulk, query, bulkID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrBulkJobNotFound
		}
		return nil, fmt.Errorf("failed to get bulk job: %w", err)
	}

	return &bulk, nil
}

// ResolveBulkDelivery records the outcome of one recipient of a bulk job.
// The bulk job flips to COMPLETED when the last recipient resolves,
// regardless of individual outcomes.
func (s *Storage) ResolveBulkDelivery(ctx context.Context, bulkID string, delivered bool) error {
	query := `
		UPDATE bulk_notification_jobs
		SET processed_recipients = processed_recipients + 1,
		    successful_deliveries = successful_deliveries + CASE WHEN $1 THEN 1 ELSE 0 END,
		    failed_deliveries = failed_deliveries + CASE WHEN $1 THEN 0 ELSE 1 END,
		    status = CASE
		        WHEN processed_recipients + 1 >= total_recipients THEN $2
		        ELSE $3
		    END,
		    completed_at = CASE
		        WHEN processed_recipients + 1 >= total_recipients THEN NOW()
		        ELSE completed_at
		    END
		WHERE bulk_job_id = $4
	`

	result, err := s.db.ExecContext(ctx, query,
		delivered, domain.BulkStatusCompleted, domain.BulkStatusProcessing, bulkID)
	if err != nil {
		return fmt.Errorf("failed to resolve bulk delivery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return domain.ErrBulkJobNotFound
	}
	return nil
}

// CreateTemplate inserts a new notification template
func (s *Storage) CreateTemplate(ctx context.Context, tmpl *domain.Template) error {
	variables, err := json.Marshal(tmpl.Variables)
	if err != nil {
		return fmt.Errorf("failed to encode template variables: %w", err)
	}

	query := `
		INSERT INTO notification_templates (
			template_id, name, channel, subject, content, variables,
			is_active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = s.db.ExecContext(
		ctx,
		query,
		tmpl.ID,
		tmpl.Name,
		tmpl.Channel,
		tmpl.Subject,
		tmpl.Content,
		variables,
		tmpl.IsActive,
		tmpl.CreatedAt,
		tmpl.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create template: %w", err)
	}

	return nil
}

type templateRow struct {
	domain.Template
	VariablesJSON []byte `db:"variables"`
}

func (r *templateRow) toTemplate() (*domain.Template, error) {
	tmpl := r.Template
	if len(r.VariablesJSON) > 0 {
		if err := json.Unmarshal(r.VariablesJSON, &tmpl.Variables); err != nil {
			return nil, fmt.Errorf("failed to decode template variables: %w", err)
		}
	}
	return &tmpl, nil
}

// GetTemplate retrieves a template by its ID
func (s *Storage) GetTemplate(ctx context.Context, templateID string) (*domain.Template, error) {
	query := `
		SELECT template_id, name, channel, subject, content, variables,
		       is_active, created_at, updated_at
		FROM notification_templates
		WHERE template_id = $1
	`

	var row templateRow
	err := s.db.GetContext(ctx, &row, query, templateID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("failed to get template: %w", err)
	}

	return row.toTemplate()
}

// ListTemplates lists templates, optionally restricted to active ones
func (s *Storage) ListTemplates(ctx context.Context, activeOnly bool) ([]domain.Template, error) {
	query := `
		SELECT template_id, name, channel, subject, content, variables,
		       is_active, created_at, updated_at
		FROM notification_templates
	`
	args := []interface{}{}
	if activeOnly {
		query += " WHERE is_active = $1"
		args = append(args, true)
	}
	query += " ORDER BY name ASC"

	var rows []templateRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	templates := make([]domain.Template, 0, len(rows))
	for i := range rows {
		tmpl, err := rows[i].toTemplate()
		if err != nil {
			return nil, err
		}
		templates = append(templates, *tmpl)
	}
	return templates, nil
}

// decodePayload parses the stored payload in place. A corrupt payload is
// left empty; channel dispatch re-validates and fails the job properly.
func (s *Storage) decodePayload(job *domain.Job) {
	payload, err := domain.DecodePayload(job.RawPayload)
	if err != nil {
		s.logger.Warn("Failed to decode job payload",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	job.Payload = payload
}
