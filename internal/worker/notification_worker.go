package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/coopdesk/internal/domain"
	"github.com/spec-kit/coopdesk/internal/events"
	"github.com/spec-kit/coopdesk/internal/observability"
	"github.com/spec-kit/coopdesk/internal/repository"
)

const (
	defaultOutboxPollInterval = 5 * time.Second
	defaultOutboxBatchSize    = 50
	defaultOutboxMaxAttempts  = 5
	defaultOutboxEventTimeout = 30 * time.Second
)

// NotificationWorkerConfig tunes outbox polling.
type NotificationWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	EventTimeout time.Duration
	// ClaimLease is how long a claimed event may stay in processing before
	// another poll may claim it again. It defaults to the time a whole batch
	// needs when every event hits EventTimeout.
	ClaimLease time.Duration
}

// NotificationWorker drains the notification outbox into the event dispatcher.
// Delivery is at-least-once; subscribers dedupe on the event's dedup key.
type NotificationWorker struct {
	Outbox     repository.OutboxRepository
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     NotificationWorkerConfig
	Now        func() time.Time
}

// NewNotificationWorker builds a worker, filling zero config values with defaults.
func NewNotificationWorker(outbox repository.OutboxRepository, dispatcher events.Dispatcher, cfg NotificationWorkerConfig) *NotificationWorker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultOutboxPollInterval
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultOutboxBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultOutboxMaxAttempts
	}
	if cfg.EventTimeout <= 0 {
		cfg.EventTimeout = defaultOutboxEventTimeout
	}
	if cfg.ClaimLease <= 0 {
		cfg.ClaimLease = time.Duration(cfg.BatchSize)*cfg.EventTimeout + cfg.PollInterval
	}
	return &NotificationWorker{
		Outbox:     outbox,
		Dispatcher: dispatcher,
		Logger:     zap.NewNop(),
		Config:     cfg,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Start polls until ctx is cancelled.
func (w *NotificationWorker) Start(ctx context.Context) {
	for {
		if _, err := w.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger().Error("notification worker run failed", zap.Error(err))
		}
		if err := sleepWithContext(ctx, w.Config.PollInterval); err != nil {
			return
		}
	}
}

// RunOnce claims one batch and delivers it. It returns the number of events delivered.
func (w *NotificationWorker) RunOnce(ctx context.Context) (int, error) {
	if w == nil || w.Outbox == nil || w.Dispatcher == nil {
		return 0, fmt.Errorf("notification worker is not configured")
	}
	batch, err := w.Outbox.Claim(ctx, w.Now(), w.Config.ClaimLease, w.Config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("claim outbox: %w", err)
	}

	delivered := 0
	for _, row := range batch {
		if err := w.deliver(ctx, row); err != nil {
			w.Metrics.Inc(observability.CounterOutboxFailed)
			w.logger().Warn("outbox delivery failed",
				zap.String("outbox_id", row.ID),
				zap.String("dedup_key", row.DedupKey),
				zap.Int("attempts", row.Attempts),
				zap.Error(err))
			if markErr := w.Outbox.MarkFailed(ctx, row.ID, err.Error(), w.Config.MaxAttempts); markErr != nil {
				w.logger().Error("mark outbox failed", zap.String("outbox_id", row.ID), zap.Error(markErr))
			}
			continue
		}
		if err := w.Outbox.MarkDone(ctx, row.ID, w.Now()); err != nil {
			w.logger().Error("mark outbox done", zap.String("outbox_id", row.ID), zap.Error(err))
			continue
		}
		w.Metrics.Inc(observability.CounterOutboxDelivered)
		delivered++
	}
	return delivered, nil
}

func (w *NotificationWorker) deliver(ctx context.Context, row domain.OutboxEvent) error {
	event, err := events.FromOutbox(row)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithTimeout(ctx, w.Config.EventTimeout)
	defer cancel()
	return w.Dispatcher.Publish(runCtx, event)
}

func (w *NotificationWorker) logger() *zap.Logger {
	if w.Logger == nil {
		return zap.NewNop()
	}
	return w.Logger
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
