package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/coursepay/internal/infrastructure/redis"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/rs/zerolog"
)

// Publisher delivers an outbox entry to the message stream.
type Publisher interface {
	Publish(ctx context.Context, e *outbox.Entry) error
}

// OutboxRelay moves committed outbox rows to the payments stream.
type OutboxRelay struct {
	txManager  service.TransactionManager
	outboxRepo outbox.Repository
	publisher  Publisher
	batchSize  int
	metrics    *observability.Metrics
	logger     zerolog.Logger
}

func NewOutboxRelay(
	txManager service.TransactionManager,
	outboxRepo outbox.Repository,
	publisher Publisher,
	batchSize int,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *OutboxRelay {
	return &OutboxRelay{
		txManager:  txManager,
		outboxRepo: outboxRepo,
		publisher:  publisher,
		batchSize:  batchSize,
		metrics:    metrics,
		logger:     logger.With().Str("component", "outbox_relay").Logger(),
	}
}

// Run relays on every tick until ctx is done.
func (r *OutboxRelay) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if _, err := r.RelayOnce(ctx); err != nil {
			r.logger.Error().Err(err).Msg("outbox relay error")
		}
	}
}

// RelayOnce publishes one batch of pending entries and returns how many were
// published. Rows stay locked for the duration so concurrent relays skip them.
func (r *OutboxRelay) RelayOnce(ctx context.Context) (int, error) {
	published := 0
	err := r.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		entries, err := r.outboxRepo.GetPending(txCtx, r.batchSize)
		if err != nil {
			return fmt.Errorf("failed to get pending entries: %w", err)
		}

		for _, entry := range entries {
			if err := r.publisher.Publish(ctx, entry); err != nil {
				r.logger.Error().Err(err).
					Str("outbox_id", entry.ID.String()).
					Int("retry_count", entry.RetryCount).
					Msg("failed to publish outbox entry")
				r.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.PaymentStream, "publish_failed").Inc()
				if err := r.outboxRepo.MarkFailed(txCtx, entry.ID); err != nil {
					return fmt.Errorf("failed to mark entry %s failed: %w", entry.ID, err)
				}
				continue
			}
			if err := r.outboxRepo.MarkPublished(txCtx, entry.ID); err != nil {
				return fmt.Errorf("failed to mark entry %s published: %w", entry.ID, err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return published, err
	}

	if pending, err := r.outboxRepo.CountPending(ctx); err == nil {
		r.metrics.OutboxPending.Set(float64(pending))
	}
	return published, nil
}
