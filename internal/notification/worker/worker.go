// Package worker implements the notification delivery loop: a periodic
// sweep over due PENDING jobs, channel dispatch with a per-job failure
// boundary, and exponential backoff on transient failures.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
	"github.com/sharif418/edupro-notify/internal/notification/sender"
	"github.com/sharif418/edupro-notify/shared/rabbitmq"
)

const (
	defaultSweepInterval = 30 * time.Second
	defaultSendTimeout   = 30 * time.Second
	defaultBatchSize     = 100
	defaultPrefetchCount = 16
)

// Store is the persistence surface the worker needs.
type Store interface {
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.Job, error)
	ClaimJob(ctx context.Context, jobID string) (*domain.Job, error)
	MarkSent(ctx context.Context, jobID string, attempts int) error
	MarkFailed(ctx context.Context, jobID string, attempts int, lastError string) error
	RescheduleJob(ctx context.Context, jobID string, attempts int, runAt time.Time, lastError string) error
	ResolveBulkDelivery(ctx context.Context, bulkID string, delivered bool) error
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         Store
	Senders       *sender.Registry
	RabbitClient  *rabbitmq.Client // optional wakeup source
	SweepInterval time.Duration
	SendTimeout   time.Duration
	BatchSize     int
	PrefetchCount int
}

// Worker represents the background notification delivery worker
type Worker struct {
	logger        *slog.Logger
	store         Store
	senders       *sender.Registry
	rabbitClient  *rabbitmq.Client
	sweepInterval time.Duration
	sendTimeout   time.Duration
	batchSize     int
	prefetchCount int
	workerID      string

	// sweeping guards against overlapping sweeps; a tick arriving while a
	// sweep is still running is skipped, not queued.
	sweeping atomic.Bool

	now      func() time.Time
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = defaultSweepInterval
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = defaultSendTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	prefetchCount := cfg.PrefetchCount
	if prefetchCount <= 0 {
		prefetchCount = defaultPrefetchCount
	}

	return &Worker{
		logger:        cfg.Logger,
		store:         cfg.Store,
		senders:       cfg.Senders,
		rabbitClient:  cfg.RabbitClient,
		sweepInterval: sweepInterval,
		sendTimeout:   sendTimeout,
		batchSize:     batchSize,
		prefetchCount: prefetchCount,
		workerID:      fmt.Sprintf("notification-worker-%s", uuid.New().String()[:8]),
		now:           time.Now,
		stopChan:      make(chan struct{}),
	}
}

// Start runs the worker until the context is canceled. An immediate sweep
// runs on startup so jobs queued while the worker was down are not stuck
// waiting for the first tick.
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker",
		slog.String("worker_id", w.workerID),
		slog.Duration("sweep_interval", w.sweepInterval),
		slog.Duration("send_timeout", w.sendTimeout),
	)

	if w.rabbitClient != nil {
		deliveries, err := w.setupWakeupConsumer()
		if err != nil {
			return fmt.Errorf("failed to set up wakeup consumer: %w", err)
		}
		w.wg.Add(1)
		go w.consumeWakeups(ctx, deliveries)
	}

	w.Sweep(ctx)

	w.wg.Add(1)
	go w.run(ctx)

	<-ctx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping notification worker...")
	close(w.stopChan)
	w.wg.Wait()
	w.logger.Info("Notification worker stopped")
}

// run fires the periodic sweep.
func (w *Worker) run(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}
