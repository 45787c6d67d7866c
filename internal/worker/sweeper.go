package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

type StaleReconciler interface {
	SweepStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

type OrphanReconciler interface {
	ReconcileOrphans(ctx context.Context, limit int) (int, error)
}

type IdempotencyCleaner interface {
	Cleanup(ctx context.Context) (int64, error)
}

// Sweeper is the server-side safety net: it polls the processor for attempts
// nobody reconciled, activates paid attempts that still lack access and drops
// expired idempotency keys.
type Sweeper struct {
	stale      StaleReconciler
	orphans    OrphanReconciler
	keys       IdempotencyCleaner
	staleAfter time.Duration
	batchSize  int
	logger     zerolog.Logger
}

func NewSweeper(
	stale StaleReconciler,
	orphans OrphanReconciler,
	keys IdempotencyCleaner,
	staleAfter time.Duration,
	batchSize int,
	logger zerolog.Logger,
) *Sweeper {
	return &Sweeper{
		stale:      stale,
		orphans:    orphans,
		keys:       keys,
		staleAfter: staleAfter,
		batchSize:  batchSize,
		logger:     logger.With().Str("component", "sweeper").Logger(),
	}
}

func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		s.SweepOnce(ctx)
	}
}

// SweepOnce runs every pass once. A failing pass does not stop the others.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	settled, err := s.stale.SweepStalePending(ctx, s.staleAfter, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("stale pending sweep failed")
	}
	if settled > 0 {
		s.logger.Info().Int("settled", settled).Msg("settled stale pending attempts")
	}

	activated, err := s.orphans.ReconcileOrphans(ctx, s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("orphan activation sweep failed")
	}
	if activated > 0 {
		s.logger.Warn().Int("activated", activated).Msg("activated paid attempts that had no enrollment")
	}

	if s.keys == nil {
		return
	}
	removed, err := s.keys.Cleanup(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("idempotency key cleanup failed")
		return
	}
	if removed > 0 {
		s.logger.Debug().Int64("removed", removed).Msg("expired idempotency keys removed")
	}
}
