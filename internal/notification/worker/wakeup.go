package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// setupWakeupConsumer configures QoS and starts consuming wakeup messages
// published by the API service on enqueue.
func (w *Worker) setupWakeupConsumer() (<-chan amqp.Delivery, error) {
	channel := w.rabbitClient.GetChannel()
	if channel == nil {
		return nil, fmt.Errorf("rabbitmq channel is nil")
	}

	if err := channel.Qos(w.prefetchCount, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	deliveries, err := w.rabbitClient.Consume(w.workerID)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("Wakeup consumer started",
		slog.String("worker_id", w.workerID),
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// consumeWakeups triggers a sweep whenever the API signals new work. The
// message only carries the job ID for tracing; the sweep itself fetches
// everything due, and the periodic tick remains authoritative if a wakeup
// is lost.
func (w *Worker) consumeWakeups(ctx context.Context, deliveries <-chan amqp.Delivery) {
	defer w.wg.Done()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Wakeup consumer stopped - context canceled")
			return
		case <-w.stopChan:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				w.logger.Warn("Wakeup delivery channel closed")
				return
			}

			var msg struct {
				JobID string `json:"job_id"`
			}
			if err := json.Unmarshal(delivery.Body, &msg); err != nil {
				w.logger.Error("Failed to parse wakeup message",
					slog.String("error", err.Error()),
					slog.String("body", string(delivery.Body)),
				)
			} else {
				w.logger.Debug("Wakeup received",
					slog.String("job_id", msg.JobID),
				)
			}

			// Wakeups are advisory; ack regardless of parse outcome.
			if err := delivery.Ack(false); err != nil {
				w.logger.Error("Failed to ACK wakeup message",
					slog.String("error", err.Error()),
				)
			}

			w.Sweep(ctx)
		}
	}
}
