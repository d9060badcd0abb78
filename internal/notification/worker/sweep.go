package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
	"github.com/sharif418/edupro-notify/internal/notification/sender"
)

// Sweep fetches all due PENDING jobs and processes them sequentially in
// priority order. Returns the number of jobs processed; an overlapping
// sweep returns 0 without doing any work.
func (w *Worker) Sweep(ctx context.Context) int {
	if !w.sweeping.CompareAndSwap(false, true) {
		w.logger.Debug("Sweep already in progress, skipping tick")
		return 0
	}
	defer w.sweeping.Store(false)

	jobs, err := w.store.ListDue(ctx, w.now(), w.batchSize)
	if err != nil {
		w.logger.Error("Failed to list due jobs",
			slog.String("error", err.Error()),
		)
		return 0
	}
	if len(jobs) == 0 {
		return 0
	}

	sortDue(jobs)

	processed := 0
	for i := range jobs {
		select {
		case <-ctx.Done():
			w.logger.Info("Sweep interrupted - context canceled",
				slog.Int("processed", processed),
				slog.Int("remaining", len(jobs)-processed),
			)
			return processed
		case <-w.stopChan:
			return processed
		default:
		}

		w.processJob(ctx, jobs[i].ID)
		processed++
	}

	w.logger.Info("Sweep completed",
		slog.String("worker_id", w.workerID),
		slog.Int("processed", processed),
	)
	return processed
}

// sortDue orders jobs HIGH before MEDIUM before LOW, then by scheduled
// time ascending.
func sortDue(jobs []domain.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		ri, rj := jobs[i].Priority.Rank(), jobs[j].Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return jobs[i].ScheduledAt.Before(jobs[j].ScheduledAt)
	})
}

// processJob claims one job and drives it to its next state: SENT,
// back to PENDING with backoff, or FAILED.
func (w *Worker) processJob(ctx context.Context, jobID string) {
	job, err := w.store.ClaimJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			w.logger.Debug("Job already claimed, skipping",
				slog.String("job_id", jobID),
			)
			return
		}
		w.logger.Error("Failed to claim job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return
	}

	result := w.dispatch(ctx, job)

	if result.Success {
		if err := w.store.MarkSent(ctx, job.ID, job.Attempts+1); err != nil {
			w.logger.Error("Failed to mark job sent",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		w.logger.Info("Notification delivered",
			slog.String("job_id", job.ID),
			slog.String("channel", string(job.Channel)),
		)
		w.resolveBulk(ctx, job, true)
		return
	}

	attempts := job.Attempts + 1

	if result.Permanent || attempts >= job.MaxAttempts {
		if err := w.store.MarkFailed(ctx, job.ID, attempts, result.Error); err != nil {
			w.logger.Error("Failed to mark job failed",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
		w.logger.Warn("Notification failed permanently",
			slog.String("job_id", job.ID),
			slog.String("channel", string(job.Channel)),
			slog.Int("attempts", attempts),
			slog.Bool("permanent_error", result.Permanent),
			slog.String("error", result.Error),
		)
		w.resolveBulk(ctx, job, false)
		return
	}

	runAt := w.now().Add(domain.BackoffDelay(attempts))
	if err := w.store.RescheduleJob(ctx, job.ID, attempts, runAt, result.Error); err != nil {
		w.logger.Error("Failed to reschedule job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	w.logger.Info("Notification delivery failed, will retry",
		slog.String("job_id", job.ID),
		slog.String("channel", string(job.Channel)),
		slog.Int("attempts", attempts),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Time("next_attempt_at", runAt),
		slog.String("error", result.Error),
	)
}

// dispatch hands the job to its channel sender under the per-job timeout.
// A panicking sender is converted into a failure result so one channel
// cannot abort the sweep.
func (w *Worker) dispatch(ctx context.Context, job *domain.Job) (result sender.Result) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Sender panicked",
				slog.String("job_id", job.ID),
				slog.String("channel", string(job.Channel)),
				slog.Any("panic", r),
			)
			result = sender.Result{Error: fmt.Sprintf("sender panic: %v", r)}
		}
	}()

	channelSender, ok := w.senders.For(job.Channel)
	if !ok {
		return sender.FailedPermanently(fmt.Errorf("no sender registered for channel %s", job.Channel))
	}

	sendCtx, cancel := context.WithTimeout(ctx, w.sendTimeout)
	defer cancel()

	return channelSender.Deliver(sendCtx, job)
}

// resolveBulk records a terminal outcome against the parent bulk job, if any.
func (w *Worker) resolveBulk(ctx context.Context, job *domain.Job, delivered bool) {
	if job.BulkJobID == "" {
		return
	}
	if err := w.store.ResolveBulkDelivery(ctx, job.BulkJobID, delivered); err != nil {
		w.logger.Error("Failed to update bulk job counters",
			slog.String("job_id", job.ID),
			slog.String("bulk_job_id", job.BulkJobID),
			slog.String("error", err.Error()),
		)
	}
}
