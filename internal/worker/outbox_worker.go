package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/datingapp/internal/domain"
	"github.com/aryan0dhankhar/datingapp/internal/observability/metrics"
)

// OutboxWorker periodically publishes recorded domain events to the broker.
// Delivery is at least once: an event is marked only after the broker accepted it.
type OutboxWorker struct {
	outbox    domain.OutboxRepository
	publisher domain.EventPublisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(
	outbox domain.OutboxRepository,
	publisher domain.EventPublisher,
	logger *slog.Logger,
	interval time.Duration,
	batchSize int,
) *OutboxWorker {
	if logger == nil {
		logger = slog.Default()
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &OutboxWorker{
		outbox:    outbox,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start runs the publish loop until ctx is cancelled
func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("outbox worker started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("outbox worker stopped")
			return
		case <-ticker.C:
			w.PublishBatch(ctx)
		}
	}
}

// PublishBatch publishes one batch of pending events and returns how many went out.
// It stops at the first broker failure so ordering per key is kept.
func (w *OutboxWorker) PublishBatch(ctx context.Context) int {
	events, err := w.outbox.FetchUnpublished(ctx, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch outbox events", slog.String("error", err.Error()))
		return 0
	}
	metrics.SetOutboxBacklog(len(events))

	published := 0
	for _, ev := range events {
		logger := w.logger.With(slog.String("event_id", ev.ID), slog.String("topic", ev.Topic))

		if err := w.publisher.Publish(ctx, ev.Topic, []byte(ev.Key), ev.Payload); err != nil {
			metrics.ObserveOutboxPublish("error")
			logger.Warn("failed to publish event", slog.String("error", err.Error()))
			return published
		}
		if err := w.outbox.MarkPublished(ctx, ev.ID); err != nil {
			logger.Error("failed to mark event published", slog.String("error", err.Error()))
			return published
		}
		metrics.ObserveOutboxPublish("success")
		published++
	}
	if published > 0 {
		w.logger.Debug("outbox batch published", slog.Int("count", published))
	}
	return published
}
