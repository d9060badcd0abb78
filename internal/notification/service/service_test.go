package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
	"github.com/sharif418/edupro-notify/internal/notification/storage"
)

type memStore struct {
	jobs      map[string]*domain.Job
	bulks     map[string]*domain.BulkJob
	templates map[string]*domain.Template

	bulkStatusLog []string
	createJobErr  func(job *domain.Job) error
}

func newMemStore() *memStore {
	return &memStore{
		jobs:      make(map[string]*domain.Job),
		bulks:     make(map[string]*domain.BulkJob),
		templates: make(map[string]*domain.Template),
	}
}

func (m *memStore) CreateJob(_ context.Context, job *domain.Job) error {
	if m.createJobErr != nil {
		if err := m.createJobErr(job); err != nil {
			return err
		}
	}
	copied := *job
	m.jobs[job.ID] = &copied
	return nil
}

func (m *memStore) GetJob(_ context.Context, jobID string) (*domain.Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (m *memStore) ListJobs(_ context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	var out []domain.Job
	for _, job := range m.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		out = append(out, *job)
	}
	return out, nil
}

func (m *memStore) CancelJob(_ context.Context, jobID string) (bool, error) {
	job, ok := m.jobs[jobID]
	if !ok || job.Status != domain.JobStatusPending {
		return false, nil
	}
	job.Status = domain.JobStatusCancelled
	return true, nil
}

func (m *memStore) RetryJob(_ context.Context, jobID string, runAt time.Time) (bool, error) {
	job, ok := m.jobs[jobID]
	if !ok || (job.Status != domain.JobStatusFailed && job.Status != domain.JobStatusCancelled) {
		return false, nil
	}
	job.Status = domain.JobStatusPending
	job.Attempts = 0
	job.ScheduledAt = runAt
	return true, nil
}

func (m *memStore) Stats(_ context.Context, _, _ time.Time) (*domain.DeliveryStats, error) {
	stats := &domain.DeliveryStats{
		ByStatus:  make(map[string]int),
		ByChannel: make(map[domain.Channel]int),
	}
	for _, job := range m.jobs {
		stats.Total++
		stats.ByStatus[job.Status]++
		stats.ByChannel[job.Channel]++
	}
	return stats, nil
}

func (m *memStore) CreateBulkJob(_ context.Context, bulk *domain.BulkJob) error {
	copied := *bulk
	m.bulks[bulk.ID] = &copied
	m.bulkStatusLog = append(m.bulkStatusLog, bulk.Status)
	return nil
}

func (m *memStore) MarkBulkProcessing(_ context.Context, bulkID string) error {
	bulk, ok := m.bulks[bulkID]
	if !ok {
		return domain.ErrBulkJobNotFound
	}
	bulk.Status = domain.BulkStatusProcessing
	m.bulkStatusLog = append(m.bulkStatusLog, bulk.Status)
	return nil
}

func (m *memStore) GetBulkJob(_ context.Context, bulkID string) (*domain.BulkJob, error) {
	bulk, ok := m.bulks[bulkID]
	if !ok {
		return nil, domain.ErrBulkJobNotFound
	}
	copied := *bulk
	return &copied, nil
}

func (m *memStore) ResolveBulkDelivery(_ context.Context, bulkID string, delivered bool) error {
	bulk, ok := m.bulks[bulkID]
	if !ok {
		return domain.ErrBulkJobNotFound
	}
	bulk.ProcessedRecipients++
	if delivered {
		bulk.SuccessfulDeliveries++
	} else {
		bulk.FailedDeliveries++
	}
	if bulk.ProcessedRecipients >= bulk.TotalRecipients {
		bulk.Status = domain.BulkStatusCompleted
		done := time.Now()
		bulk.CompletedAt = &done
	}
	return nil
}

func (m *memStore) CreateTemplate(_ context.Context, tmpl *domain.Template) error {
	copied := *tmpl
	m.templates[tmpl.ID] = &copied
	return nil
}

func (m *memStore) GetTemplate(_ context.Context, templateID string) (*domain.Template, error) {
	tmpl, ok := m.templates[templateID]
	if !ok {
		return nil, domain.ErrTemplateNotFound
	}
	copied := *tmpl
	return &copied, nil
}

func (m *memStore) ListTemplates(_ context.Context, activeOnly bool) ([]domain.Template, error) {
	var out []domain.Template
	for _, tmpl := range m.templates {
		if activeOnly && !tmpl.IsActive {
			continue
		}
		out = append(out, *tmpl)
	}
	return out, nil
}

type recordingPublisher struct {
	published [][]byte
	err       error
}

func (p *recordingPublisher) PublishWithRetry(_ context.Context, body []byte, _ string) error {
	p.published = append(p.published, body)
	return p.err
}

func newTestService(store Store, wakeup WakeupPublisher) *Service {
	svc := NewService(&Config{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Store:  store,
		Wakeup: wakeup,
	})
	svc.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	}
	seq := 0
	svc.newID = func() string {
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return svc
}

func TestService_AddNotificationDefaults(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := newTestService(store, pub)

	jobID, err := svc.AddNotification(context.Background(), AddParams{
		Channel:   domain.ChannelEmail,
		Recipient: "teacher@school.edu",
		Subject:   "Exam schedule",
		Content:   "The exam schedule was published.",
	})
	require.NoError(t, err)

	job := store.jobs[jobID]
	require.NotNil(t, job)
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, domain.PriorityMedium, job.Priority, "priority defaults to MEDIUM")
	assert.Equal(t, domain.DefaultMaxAttempts, job.MaxAttempts)
	assert.Equal(t, svc.now(), job.ScheduledAt, "unscheduled jobs are due immediately")
	assert.Len(t, pub.published, 1, "enqueue publishes a worker wakeup")
}

func TestService_AddNotificationValidation(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	ctx := context.Background()

	cases := []struct {
		name   string
		params AddParams
	}{
		{"invalid channel", AddParams{Channel: "CARRIER_PIGEON", Recipient: "a", Content: "b"}},
		{"missing recipient", AddParams{Channel: domain.ChannelEmail, Content: "b"}},
		{"missing content", AddParams{Channel: domain.ChannelEmail, Recipient: "a"}},
		{"invalid priority", AddParams{Channel: domain.ChannelEmail, Recipient: "a", Content: "b", Priority: "URGENT"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.AddNotification(ctx, tc.params)
			assert.Error(t, err)
		})
	}
}

func TestService_AddNotificationPushRequiresSubscription(t *testing.T) {
	svc := newTestService(newMemStore(), nil)

	_, err := svc.AddNotification(context.Background(), AddParams{
		Channel:   domain.ChannelPush,
		Recipient: "student-42",
		Content:   "Homework due tomorrow",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidPayload)
}

func TestService_AddNotificationWakeupFailureIsNotFatal(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc := newTestService(store, pub)

	jobID, err := svc.AddNotification(context.Background(), AddParams{
		Channel:   domain.ChannelInApp,
		Recipient: "parent-7",
		Content:   "Fee reminder",
	})
	require.NoError(t, err, "a wakeup publish failure must not fail the enqueue")
	assert.Contains(t, store.jobs, jobID)
}

func seedTemplate(store *memStore, id string, active bool) {
	store.templates[id] = &domain.Template{
		ID:       id,
		Name:     "attendance-alert",
		Channel:  domain.ChannelEmail,
		Subject:  "Attendance for {{studentName}}",
		Content:  "Dear {{parentName}}, {{studentName}} was absent today.",
		IsActive: active,
	}
}

func TestService_SendBulkRendersPerRecipient(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	seedTemplate(store, "tpl-1", true)

	recipients := []domain.BulkRecipient{
		{ID: "r1", Contact: "anna@parents.example", Variables: map[string]string{"studentName": "Liam", "parentName": "Anna"}},
		{ID: "r2", Contact: "noor@parents.example", Variables: map[string]string{"studentName": "Maya"}},
	}

	bulkID, err := svc.SendBulk(context.Background(), "tpl-1", recipients)
	require.NoError(t, err)

	bulk := store.bulks[bulkID]
	require.NotNil(t, bulk)
	assert.Equal(t, domain.BulkStatusProcessing, bulk.Status)
	assert.Equal(t, []string{domain.BulkStatusPending, domain.BulkStatusProcessing}, store.bulkStatusLog,
		"bulk jobs are created PENDING and move to PROCESSING when expansion starts")
	assert.Equal(t, 2, bulk.TotalRecipients)

	var subjects, contents []string
	for _, job := range store.jobs {
		assert.Equal(t, bulkID, job.BulkJobID)
		assert.Equal(t, domain.ChannelEmail, job.Channel)
		subjects = append(subjects, job.Subject)
		contents = append(contents, job.Content)
	}
	assert.Contains(t, subjects, "Attendance for Liam")
	assert.Contains(t, contents, "Dear Anna, Liam was absent today.")
	assert.Contains(t, contents, "Dear {{parentName}}, Maya was absent today.",
		"unresolved placeholders stay literal")
}

func TestService_SendBulkEnqueueFailuresDoNotAbort(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	seedTemplate(store, "tpl-1", true)

	failing := map[string]bool{"bad-1@x": true, "bad-2@x": true}
	store.createJobErr = func(job *domain.Job) error {
		if failing[job.Recipient] {
			return errors.New("insert failed")
		}
		return nil
	}

	recipients := []domain.BulkRecipient{
		{ID: "r1", Contact: "ok-1@x"},
		{ID: "r2", Contact: "bad-1@x"},
		{ID: "r3", Contact: "ok-2@x"},
		{ID: "r4", Contact: "bad-2@x"},
		{ID: "r5", Contact: "ok-3@x"},
	}

	bulkID, err := svc.SendBulk(context.Background(), "tpl-1", recipients)
	require.NoError(t, err)

	bulk := store.bulks[bulkID]
	assert.Equal(t, 5, bulk.TotalRecipients)
	assert.Equal(t, 2, bulk.ProcessedRecipients, "only enqueue failures are processed so far")
	assert.Equal(t, 2, bulk.FailedDeliveries)
	assert.Len(t, store.jobs, 3)

	// The worker resolves the three delivered jobs; the batch then completes.
	for i := 0; i < 3; i++ {
		require.NoError(t, store.ResolveBulkDelivery(context.Background(), bulkID, true))
	}
	bulk = store.bulks[bulkID]
	assert.Equal(t, domain.BulkStatusCompleted, bulk.Status)
	assert.Equal(t, 5, bulk.ProcessedRecipients)
	assert.Equal(t, 3, bulk.SuccessfulDeliveries)
	assert.Equal(t, 2, bulk.FailedDeliveries)
	assert.NotNil(t, bulk.CompletedAt)
}

func TestService_SendBulkTemplateErrors(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)
	seedTemplate(store, "tpl-inactive", false)

	recipients := []domain.BulkRecipient{{ID: "r1", Contact: "a@x"}}

	_, err := svc.SendBulk(context.Background(), "tpl-missing", recipients)
	assert.ErrorIs(t, err, domain.ErrTemplateNotFound)

	_, err = svc.SendBulk(context.Background(), "tpl-inactive", recipients)
	assert.ErrorIs(t, err, domain.ErrTemplateInactive)

	_, err = svc.SendBulk(context.Background(), "tpl-inactive", nil)
	assert.Error(t, err, "empty recipient list is rejected")
}

func TestService_CancelOnlyPendingJobs(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)

	store.jobs["pending"] = &domain.Job{ID: "pending", Status: domain.JobStatusPending}
	store.jobs["sent"] = &domain.Job{ID: "sent", Status: domain.JobStatusSent}

	cancelled, err := svc.Cancel(context.Background(), "pending")
	require.NoError(t, err)
	assert.True(t, cancelled)
	assert.Equal(t, domain.JobStatusCancelled, store.jobs["pending"].Status)

	cancelled, err = svc.Cancel(context.Background(), "sent")
	require.NoError(t, err)
	assert.False(t, cancelled, "delivered jobs cannot be cancelled")
}

func TestService_RetryResetsAttempts(t *testing.T) {
	store := newMemStore()
	pub := &recordingPublisher{}
	svc := newTestService(store, pub)

	store.jobs["failed"] = &domain.Job{
		ID:       "failed",
		Status:   domain.JobStatusFailed,
		Attempts: 3,
	}

	retried, err := svc.Retry(context.Background(), "failed")
	require.NoError(t, err)
	assert.True(t, retried)

	job := store.jobs["failed"]
	assert.Equal(t, domain.JobStatusPending, job.Status)
	assert.Equal(t, 0, job.Attempts, "retry grants a fresh attempt budget")
	assert.Equal(t, svc.now(), job.ScheduledAt)
	assert.Len(t, pub.published, 1)

	store.jobs["sent"] = &domain.Job{ID: "sent", Status: domain.JobStatusSent}
	retried, err = svc.Retry(context.Background(), "sent")
	require.NoError(t, err)
	assert.False(t, retried, "only FAILED and CANCELLED jobs are retryable")
}

func TestService_CreateTemplate(t *testing.T) {
	store := newMemStore()
	svc := newTestService(store, nil)

	tmpl, err := svc.CreateTemplate(context.Background(), TemplateParams{
		Name:      "grade-posted",
		Channel:   domain.ChannelInApp,
		Subject:   "New grade",
		Content:   "A grade for {{subject}} was posted.",
		Variables: []string{"subject"},
	})
	require.NoError(t, err)
	assert.True(t, tmpl.IsActive, "new templates are active")
	assert.Contains(t, store.templates, tmpl.ID)

	_, err = svc.CreateTemplate(context.Background(), TemplateParams{Channel: domain.ChannelInApp, Content: "x"})
	assert.Error(t, err, "name is required")

	_, err = svc.CreateTemplate(context.Background(), TemplateParams{Name: "x", Channel: "FAX", Content: "y"})
	assert.Error(t, err, "channel must be valid")
}
