package worker

import (
	"context"
	"errors"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/coursepay/internal/infrastructure/redis"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Source is a consumer-group view of the payments stream.
type Source interface {
	Read(ctx context.Context) ([]infraRedis.Message, error)
	ReclaimIdle(ctx context.Context, minIdle time.Duration) ([]infraRedis.Message, error)
	Ack(ctx context.Context, messageID string) error
}

type DeadLetterer interface {
	PublishToDLQ(ctx context.Context, msg infraRedis.Message, reason string) error
}

// Locker takes a cross-process lock; ok is false when someone else holds it.
type Locker interface {
	TryLock(ctx context.Context, key string) (release func(context.Context) error, ok bool, err error)
}

type Activator interface {
	Activate(ctx context.Context, attemptID uuid.UUID) (service.Activation, error)
}

// Message handling results, used as metric labels.
const (
	resultActivated    = "activated"
	resultNoop         = "noop"
	resultSkipped      = "skipped"
	resultLocked       = "locked"
	resultRetry        = "retry"
	resultDeadLettered = "dead_lettered"
)

// ActivationConsumer re-runs the Activator for every payment.paid message.
// Messages that fail transiently stay unacknowledged and are reclaimed once
// they have been idle for reclaimAfter.
type ActivationConsumer struct {
	source       Source
	dlq          DeadLetterer
	locker       Locker
	activator    Activator
	reclaimAfter time.Duration
	metrics      *observability.Metrics
	logger       zerolog.Logger
}

func NewActivationConsumer(
	source Source,
	dlq DeadLetterer,
	locker Locker,
	activator Activator,
	reclaimAfter time.Duration,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ActivationConsumer {
	return &ActivationConsumer{
		source:       source,
		dlq:          dlq,
		locker:       locker,
		activator:    activator,
		reclaimAfter: reclaimAfter,
		metrics:      metrics,
		logger:       logger.With().Str("component", "activation_consumer").Logger(),
	}
}

// Run consumes until ctx is done.
func (c *ActivationConsumer) Run(ctx context.Context) error {
	lastReclaim := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := c.source.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error().Err(err).Msg("failed to read from stream")
			sleep(ctx, time.Second)
			continue
		}

		if time.Since(lastReclaim) >= c.reclaimAfter {
			reclaimed, err := c.source.ReclaimIdle(ctx, c.reclaimAfter)
			if err != nil {
				c.logger.Error().Err(err).Msg("failed to reclaim idle messages")
			}
			msgs = append(msgs, reclaimed...)
			lastReclaim = time.Now()
		}

		for _, msg := range msgs {
			c.Handle(ctx, msg)
		}
	}
}

// Handle processes one message and returns the result label.
func (c *ActivationConsumer) Handle(ctx context.Context, msg infraRedis.Message) string {
	start := time.Now()
	result := c.handle(ctx, msg)
	c.metrics.WorkerProcessingDuration.WithLabelValues(infraRedis.PaymentStream).Observe(time.Since(start).Seconds())
	c.metrics.WorkerMessagesProcessed.WithLabelValues(infraRedis.PaymentStream, result).Inc()
	return result
}

func (c *ActivationConsumer) handle(ctx context.Context, msg infraRedis.Message) string {
	log := c.logger.With().Str("message_id", msg.ID).Str("attempt_id", msg.AttemptID).Logger()

	if msg.EventType != payment.EventPaid {
		c.ack(ctx, msg.ID)
		return resultSkipped
	}

	attemptID, err := uuid.Parse(msg.AttemptID)
	if err != nil {
		log.Error().Err(err).Msg("invalid attempt id in stream message")
		return c.deadLetter(ctx, msg, "invalid attempt id")
	}

	release, ok, err := c.locker.TryLock(ctx, infraRedis.ActivationLockKey(attemptID))
	if err != nil {
		log.Error().Err(err).Msg("failed to acquire activation lock")
		return resultRetry
	}
	if !ok {
		log.Debug().Msg("activation already in progress elsewhere")
		return resultLocked
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("failed to release activation lock")
		}
	}()

	act, err := c.activator.Activate(ctx, attemptID)
	switch {
	case errors.Is(err, domainErrors.ErrPaymentNotPaid), errors.Is(err, domainErrors.ErrPaymentNotFound):
		log.Error().Err(err).Msg("payment.paid message for an attempt that cannot be activated")
		return c.deadLetter(ctx, msg, err.Error())
	case err != nil:
		log.Error().Err(err).Msg("activation failed, leaving message for reclaim")
		return resultRetry
	}

	c.ack(ctx, msg.ID)
	if act.Created {
		return resultActivated
	}
	return resultNoop
}

func (c *ActivationConsumer) deadLetter(ctx context.Context, msg infraRedis.Message, reason string) string {
	if err := c.dlq.PublishToDLQ(ctx, msg, reason); err != nil {
		c.logger.Error().Err(err).Str("message_id", msg.ID).Msg("failed to dead-letter message")
		return resultRetry
	}
	c.ack(ctx, msg.ID)
	return resultDeadLettered
}

func (c *ActivationConsumer) ack(ctx context.Context, id string) {
	if err := c.source.Ack(ctx, id); err != nil {
		c.logger.Error().Err(err).Str("message_id", id).Msg("failed to ack message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
