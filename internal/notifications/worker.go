package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/shopvibe/shopvibe-backend/pkg/config"
	"github.com/shopvibe/shopvibe-backend/pkg/db/models"
	"github.com/shopvibe/shopvibe-backend/pkg/logger"
	"github.com/shopvibe/shopvibe-backend/pkg/metrics"
	"github.com/shopvibe/shopvibe-backend/pkg/outbox"
)

const receiptConsumer = "order-receipts"

type outboxStore interface {
	FetchUnpublished(limit int, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

type idempotencyGuard interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, eventID string) (bool, error)
	Delete(ctx context.Context, consumer, eventID string) error
}

// Worker polls the outbox and hands events to the dispatcher. Each event is
// retried up to the configured attempt limit; a cross-process idempotency
// guard keeps duplicate deliveries out when multiple workers run.
type Worker struct {
	store      outboxStore
	dispatcher *Dispatcher
	guard      idempotencyGuard
	cfg        config.OutboxConfig
	logg       *logger.Logger
	metrics    *metrics.OrderMetrics
}

// NewWorker wires the polling worker. The guard, logger and metrics are optional.
func NewWorker(
	store outboxStore,
	dispatcher *Dispatcher,
	guard idempotencyGuard,
	cfg config.OutboxConfig,
	logg *logger.Logger,
	orderMetrics *metrics.OrderMetrics,
) (*Worker, error) {
	if store == nil {
		return nil, fmt.Errorf("outbox store required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher required")
	}
	return &Worker{
		store:      store,
		dispatcher: dispatcher,
		guard:      guard,
		cfg:        cfg,
		logg:       logg,
		metrics:    orderMetrics,
	}, nil
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if _, err := w.ProcessBatch(ctx); err != nil {
			if w.logg != nil {
				w.logg.Error(ctx, "outbox poll failed", err)
			}
		}
	}
}

// ProcessBatch drains one batch of unpublished events and returns how many
// were completed.
func (w *Worker) ProcessBatch(ctx context.Context) (int, error) {
	events, err := w.store.FetchUnpublished(w.cfg.BatchSize, w.cfg.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("fetch unpublished events: %w", err)
	}
	w.metrics.SetOutboxLag(len(events))

	processed := 0
	for _, event := range events {
		if w.processOne(ctx, event) {
			processed++
		}
	}
	return processed, nil
}

func (w *Worker) processOne(ctx context.Context, event models.OutboxEvent) bool {
	eventID := consumerEventID(event)

	if w.guard != nil {
		already, err := w.guard.CheckAndMarkProcessed(ctx, receiptConsumer, eventID)
		if err != nil {
			if w.logg != nil {
				w.logg.Error(ctx, "idempotency check failed", err)
			}
			return false
		}
		if already {
			// Another worker delivered it; just settle the row.
			if err := w.store.MarkPublished(event.ID); err != nil && w.logg != nil {
				w.logg.Error(ctx, "marking duplicate event published failed", err)
			}
			return true
		}
	}

	if err := w.dispatcher.Dispatch(ctx, event); err != nil {
		if markErr := w.store.MarkFailed(event.ID, err); markErr != nil && w.logg != nil {
			w.logg.Error(ctx, "marking event failed errored", markErr)
		}
		if w.guard != nil {
			_ = w.guard.Delete(ctx, receiptConsumer, eventID)
		}
		return false
	}

	if err := w.store.MarkPublished(event.ID); err != nil {
		if w.logg != nil {
			w.logg.Error(ctx, "marking event published failed", err)
		}
		return false
	}
	return true
}

func consumerEventID(event models.OutboxEvent) string {
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err == nil && envelope.EventID != "" {
		return envelope.EventID
	}
	return event.ID.String()
}
