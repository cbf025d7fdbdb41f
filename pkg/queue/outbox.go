package queue

import (
	"context"
	"log/slog"
	"time"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/observability"
)

type OutboxStore interface {
	FetchDueOutbox(ctx context.Context, now time.Time, limit int) ([]OutboxMessage, error)
	DeleteOutbox(ctx context.Context, id string) error
}

// ReadyPublisher announces that a job may be claimed.
type ReadyPublisher interface {
	PublishReady(ctx context.Context, routingKey, jobID string) error
}

// Relay moves due outbox rows to the broker. A row is deleted only after it
// was published; a crash in between publishes the hint twice, which workers
// tolerate since a hint never carries the job itself.
type Relay struct {
	store  OutboxStore
	pub    ReadyPublisher
	logger *slog.Logger
	batch  int
	now    func() time.Time
}

func NewRelay(store OutboxStore, pub ReadyPublisher, batch int, logger *slog.Logger) *Relay {
	return &Relay{store: store, pub: pub, logger: logger, batch: batch, now: time.Now}
}

// RunOnce relays one batch and returns how many rows were published.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	msgs, err := r.store.FetchDueOutbox(ctx, r.now().UTC(), r.batch)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, m := range msgs {
		if err := r.pub.PublishReady(ctx, m.RoutingKey, m.JobID); err != nil {
			r.logger.Error("failed to publish job from outbox", "error", err, "job_id", m.JobID)
			continue
		}
		if err := r.store.DeleteOutbox(ctx, m.ID); err != nil {
			r.logger.Error("failed to delete outbox message after publish", "error", err, "outbox_id", m.ID)
			continue
		}
		published++
		observability.OutboxPublished.Inc()
		r.logger.Debug("published job from outbox", "job_id", m.JobID, "routing_key", m.RoutingKey)
	}
	return published, nil
}

// Run relays on every tick until ctx is cancelled.
func (r *Relay) Run(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.RunOnce(ctx); err != nil {
				r.logger.Error("failed to fetch outbox messages", "error", err)
			}
		}
	}
}
