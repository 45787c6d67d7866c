package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	"github.com/cassiomorais/coursepay/internal/processor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ReconciliationService brings attempts in line with the processor. The
// callback, poll and sweeper entry points all end in settle, which applies
// one guarded transition per charge.
type ReconciliationService struct {
	attemptRepo payment.Repository
	outboxRepo  outbox.Repository
	txManager   TransactionManager
	processors  *processor.Factory
	activator   *EnrollmentService
	metrics     *observability.Metrics
	logger      zerolog.Logger
	now         func() time.Time
}

func NewReconciliationService(
	attemptRepo payment.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	processors *processor.Factory,
	activator *EnrollmentService,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *ReconciliationService {
	return &ReconciliationService{
		attemptRepo: attemptRepo,
		outboxRepo:  outboxRepo,
		txManager:   txManager,
		processors:  processors,
		activator:   activator,
		metrics:     metrics,
		logger:      logger.With().Str("component", "reconciliation").Logger(),
		now:         time.Now,
	}
}

// HandleCallback logs a raw processor callback, authenticates it and applies
// the charge status it carries. Business mismatches (unknown charge, attempt
// already terminal) are not errors. Returned errors are ErrProcessorNotFound,
// ErrInvalidSignature, ErrMalformedEvent, or infrastructure failures the
// processor should retry.
func (s *ReconciliationService) HandleCallback(ctx context.Context, processorName string, req processor.SignedRequest) (ReconcileOutcome, error) {
	ctx, span := observability.Tracer().Start(ctx, "ReconciliationService.HandleCallback",
		trace.WithAttributes(attribute.String("processor", processorName)))
	defer span.End()

	cb := &payment.Callback{
		ID:         uuid.New(),
		Processor:  processorName,
		Signature:  req.Signature(),
		Payload:    req.Payload,
		ReceivedAt: s.now().UTC(),
	}
	if err := s.attemptRepo.LogCallback(ctx, cb); err != nil {
		return "", fmt.Errorf("failed to log callback: %w", err)
	}

	proc, breaker, err := s.processors.Get(processorName)
	if err != nil {
		s.logger.Warn().Str("processor", processorName).Str("callback_id", cb.ID.String()).Msg("callback for unknown processor")
		return "", err
	}

	if err := proc.VerifySignature(req); err != nil {
		s.metrics.CallbacksReceived.WithLabelValues(proc.Name(), "invalid_signature").Inc()
		s.logger.Warn().Err(err).Str("callback_id", cb.ID.String()).Msg("callback rejected")
		return "", err
	}

	event, err := proc.ParseEvent(req.Payload)
	if err != nil {
		s.metrics.CallbacksReceived.WithLabelValues(proc.Name(), "malformed").Inc()
		return "", err
	}
	span.SetAttributes(attribute.String("charge.id", event.ChargeID), attribute.String("event.kind", event.Kind))

	charge := event.Charge
	if charge == nil {
		charge, err = breaker.Execute(func() (*processor.Charge, error) {
			return proc.RetrieveCharge(ctx, event.ChargeID)
		})
		if errors.Is(err, domainErrors.ErrChargeNotFound) {
			s.metrics.CallbacksReceived.WithLabelValues(proc.Name(), string(OutcomeUnknownCharge)).Inc()
			s.logger.Info().Str("charge_id", event.ChargeID).Msg("callback names a charge the processor does not know")
			return OutcomeUnknownCharge, nil
		}
		if err != nil {
			s.metrics.CallbacksReceived.WithLabelValues(proc.Name(), "retrieve_failed").Inc()
			return "", fmt.Errorf("failed to retrieve charge %s: %w", event.ChargeID, processor.Unavailable(err))
		}
	}

	outcome, err := s.settle(ctx, SourceCallback, charge)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.CallbacksReceived.WithLabelValues(proc.Name(), "error").Inc()
		return "", err
	}
	s.metrics.CallbacksReceived.WithLabelValues(proc.Name(), string(outcome)).Inc()
	return outcome, nil
}

// Poll asks the processor for the charge status on behalf of the payer and
// returns the stored attempt after applying it. Only the owner may poll; other
// users get ErrPaymentNotFound. Processor errors leave the stored view as is.
func (s *ReconciliationService) Poll(ctx context.Context, userID, chargeID string) (*PaymentStatus, error) {
	ctx, span := observability.Tracer().Start(ctx, "ReconciliationService.Poll",
		trace.WithAttributes(attribute.String("charge.id", chargeID)))
	defer span.End()

	a, err := s.attemptRepo.GetByChargeID(ctx, chargeID)
	if err != nil {
		return nil, err
	}
	if a.UserID != userID {
		return nil, domainErrors.ErrPaymentNotFound
	}

	if a.Status == payment.StatusPending {
		if err := s.reconcileAttempt(ctx, SourcePoll, a); err != nil {
			return nil, err
		}
		if a, err = s.attemptRepo.GetByID(ctx, a.ID); err != nil {
			return nil, err
		}
	}

	return &PaymentStatus{Attempt: a, Paid: a.IsPaid()}, nil
}

// SweepStalePending polls the processor for pending attempts created before
// now-olderThan. It returns how many attempts reached a terminal status.
func (s *ReconciliationService) SweepStalePending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stale, err := s.attemptRepo.ListStalePending(ctx, s.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list stale attempts: %w", err)
	}

	settled := 0
	var errs []error
	for _, a := range stale {
		if err := s.reconcileAttempt(ctx, SourceSweeper, a); err != nil {
			errs = append(errs, fmt.Errorf("attempt %s: %w", a.ID, err))
			continue
		}
		current, err := s.attemptRepo.GetByID(ctx, a.ID)
		if err == nil && current.Status.IsTerminal() {
			settled++
		}
	}
	return settled, errors.Join(errs...)
}

// reconcileAttempt retrieves the charge of a and settles it. Processor
// failures are logged and swallowed; only store failures are returned.
func (s *ReconciliationService) reconcileAttempt(ctx context.Context, source ReconcileSource, a *payment.Attempt) error {
	proc, breaker, err := s.processors.Get(a.Processor)
	if err != nil {
		return err
	}

	start := time.Now()
	charge, err := breaker.Execute(func() (*processor.Charge, error) {
		return proc.RetrieveCharge(ctx, a.ChargeID)
	})
	s.metrics.ChargeDuration.WithLabelValues(proc.Name(), "retrieve").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Warn().Err(processor.Unavailable(err)).
			Str("charge_id", a.ChargeID).
			Str("source", string(source)).
			Msg("failed to retrieve charge")
		return nil
	}

	_, err = s.settle(ctx, source, charge)
	return err
}

// settle applies a processor charge status to the matching attempt with a
// guarded transition. Only the caller whose transition changed the row
// records events and runs the Activator.
func (s *ReconciliationService) settle(ctx context.Context, source ReconcileSource, charge *processor.Charge) (ReconcileOutcome, error) {
	log := s.logger.With().Str("charge_id", charge.ID).Str("source", string(source)).Logger()

	a, err := s.attemptRepo.GetByChargeID(ctx, charge.ID)
	if errors.Is(err, domainErrors.ErrPaymentNotFound) {
		log.Info().Msg("no attempt for charge")
		s.metrics.ReconciliationsTotal.WithLabelValues(string(source), string(OutcomeUnknownCharge)).Inc()
		return OutcomeUnknownCharge, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get attempt: %w", err)
	}

	now := s.now().UTC()
	var t payment.Transition
	switch charge.Status {
	case processor.ChargeStatusSuccessful:
		if charge.AmountMinor != 0 && charge.AmountMinor != a.Amount.Minor {
			log.Warn().Int64("charged", charge.AmountMinor).Int64("expected", a.Amount.Minor).Msg("charge amount differs from attempt")
		}
		t = payment.MarkPaid(now)
	case processor.ChargeStatusFailed:
		t = payment.MarkFailed(charge.FailureCode, charge.FailureMessage, now)
	case processor.ChargeStatusExpired:
		code, msg := charge.FailureCode, charge.FailureMessage
		if code == "" {
			code, msg = "expired_charge", "charge expired before it was paid"
		}
		t = payment.MarkFailed(code, msg, now)
	default:
		s.metrics.ReconciliationsTotal.WithLabelValues(string(source), string(OutcomePending)).Inc()
		return OutcomePending, nil
	}

	applied := false
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		n, err := s.attemptRepo.Transition(txCtx, a.ID, t)
		if err != nil {
			return fmt.Errorf("failed to transition attempt: %w", err)
		}
		if n == 0 {
			return nil
		}
		applied = true
		return s.recordTransition(txCtx, a, t, source)
	})
	if err != nil {
		return "", err
	}

	if !applied {
		log.Debug().Str("status", string(a.Status)).Msg("attempt already settled")
		s.metrics.ReconciliationsTotal.WithLabelValues(string(source), string(OutcomeNoop)).Inc()
		return OutcomeNoop, nil
	}

	log.Info().Str("attempt_id", a.ID.String()).Str("status", string(t.To)).Msg("attempt settled")
	s.metrics.ReconciliationsTotal.WithLabelValues(string(source), string(OutcomeApplied)).Inc()

	if t.To == payment.StatusPaid {
		// A failure here is left to the outbox consumer and the orphan sweeper.
		if _, err := s.activator.Activate(ctx, a.ID); err != nil {
			log.Error().Err(err).Str("attempt_id", a.ID.String()).Msg("activation after settlement failed")
		}
	}
	return OutcomeApplied, nil
}

// recordTransition writes the audit event and, for paid attempts, the outbox
// entry that lets the worker retry activation.
func (s *ReconciliationService) recordTransition(ctx context.Context, a *payment.Attempt, t payment.Transition, source ReconcileSource) error {
	data := map[string]any{"charge_id": a.ChargeID, "source": string(source)}
	eventType := payment.EventPaid
	if t.To == payment.StatusFailed {
		eventType = payment.EventFailed
		if t.FailureCode != nil {
			data["failure_code"] = *t.FailureCode
		}
		if t.FailureMessage != nil {
			data["failure_message"] = *t.FailureMessage
		}
	}

	if err := s.attemptRepo.AddEvent(ctx, payment.NewEvent(a.ID, eventType, data)); err != nil {
		return fmt.Errorf("failed to add attempt event: %w", err)
	}
	if t.To != payment.StatusPaid {
		return nil
	}
	if err := s.outboxRepo.Insert(ctx, paidEntry(a)); err != nil {
		return fmt.Errorf("failed to insert outbox entry: %w", err)
	}
	return nil
}

func paidEntry(a *payment.Attempt) *outbox.Entry {
	return outbox.NewEntry(payment.AggregateType, a.ID, payment.EventPaid, map[string]any{
		"attempt_id": a.ID.String(),
		"charge_id":  a.ChargeID,
		"user_id":    a.UserID,
		"course_id":  a.CourseID.String(),
	})
}
