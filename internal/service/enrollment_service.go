package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	"github.com/cassiomorais/coursepay/pkg/retry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// EnrollmentService is the Activator: the only code path that turns a paid
// attempt into course access.
type EnrollmentService struct {
	attemptRepo    payment.Repository
	enrollmentRepo enrollment.Repository
	promotionRepo  promotion.Repository
	txManager      TransactionManager
	retryConfig    retry.Config
	metrics        *observability.Metrics
	logger         zerolog.Logger
}

func NewEnrollmentService(
	attemptRepo payment.Repository,
	enrollmentRepo enrollment.Repository,
	promotionRepo promotion.Repository,
	txManager TransactionManager,
	retryConfig retry.Config,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *EnrollmentService {
	return &EnrollmentService{
		attemptRepo:    attemptRepo,
		enrollmentRepo: enrollmentRepo,
		promotionRepo:  promotionRepo,
		txManager:      txManager,
		retryConfig:    retryConfig,
		metrics:        metrics,
		logger:         logger.With().Str("component", "activator").Logger(),
	}
}

// Activate grants access for a paid attempt in its own transaction, retrying
// transient failures. Calling it again for the same attempt, or for another
// paid attempt of the same (user, course), is a no-op.
func (s *EnrollmentService) Activate(ctx context.Context, attemptID uuid.UUID) (Activation, error) {
	ctx, span := observability.Tracer().Start(ctx, "EnrollmentService.Activate",
		trace.WithAttributes(attribute.String("attempt.id", attemptID.String())))
	defer span.End()

	cfg := s.retryConfig
	cfg.RetryIf = retryableActivation
	cfg.OnRetry = func(n uint, err error) {
		s.logger.Warn().Err(err).
			Str("attempt_id", attemptID.String()).
			Uint("retry", n+1).
			Msg("activation failed, retrying")
	}

	act, err := retry.DoWithResult(ctx, cfg, func() (Activation, error) {
		var act Activation
		err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			a, err := s.attemptRepo.GetByID(txCtx, attemptID)
			if err != nil {
				return err
			}
			act, err = s.activate(txCtx, a)
			return err
		})
		return act, err
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.ActivationsTotal.WithLabelValues("error").Inc()
		if retryableActivation(err) {
			s.deferActivation(ctx, attemptID, err)
		}
		return Activation{}, err
	}

	s.record(act)
	span.SetAttributes(attribute.Bool("enrollment.created", act.Created))
	return act, nil
}

// activate runs inside the caller's transaction and does not retry.
func (s *EnrollmentService) activate(ctx context.Context, a *payment.Attempt) (Activation, error) {
	if !a.IsPaid() {
		return Activation{}, domainErrors.ErrPaymentNotPaid
	}

	var (
		promo *promotion.Promotion
		used  int
	)
	if a.PromotionID != nil {
		p, err := s.promotionRepo.Lock(ctx, *a.PromotionID)
		switch {
		case errors.Is(err, domainErrors.ErrPromotionNotFound):
			// Promotion removed after checkout; the payment still buys access.
		case err != nil:
			return Activation{}, fmt.Errorf("failed to lock promotion: %w", err)
		default:
			promo = p
			if used, err = s.enrollmentRepo.CountByPromotion(ctx, p.ID); err != nil {
				return Activation{}, fmt.Errorf("failed to count promotion usage: %w", err)
			}
		}
	}

	e := enrollment.NewActive(a.UserID, a.CourseID, a.PromotionID, &a.ID)
	created, err := s.enrollmentRepo.Activate(ctx, e)
	if err != nil {
		return Activation{}, fmt.Errorf("failed to activate enrollment: %w", err)
	}
	if !created {
		return Activation{}, nil
	}

	act := Activation{Enrollment: e, Created: true}
	if err := s.attemptRepo.AddEvent(ctx, payment.NewEvent(a.ID, payment.EventEnrollmentActivated, map[string]any{
		"enrollment_id": e.ID.String(),
		"user_id":       a.UserID,
		"course_id":     a.CourseID.String(),
	})); err != nil {
		return Activation{}, fmt.Errorf("failed to add activation event: %w", err)
	}

	// The checkout-time check is advisory; the locked count decides.
	if promo != nil && promo.Exhausted(used) {
		act.OverRedeemed = true
		act.PromotionCode = promo.Code
		if err := s.attemptRepo.AddEvent(ctx, payment.NewEvent(a.ID, payment.EventPromotionOverRedeemed, map[string]any{
			"promotion_id": promo.ID.String(),
			"code":         promo.Code,
			"used":         used,
			"max_uses":     *promo.MaxUses,
		})); err != nil {
			return Activation{}, fmt.Errorf("failed to add over-redemption event: %w", err)
		}
	}
	return act, nil
}

func (s *EnrollmentService) record(act Activation) {
	if !act.Created {
		s.metrics.ActivationsTotal.WithLabelValues("noop").Inc()
		return
	}
	s.metrics.ActivationsTotal.WithLabelValues("created").Inc()
	s.logger.Info().
		Str("attempt_id", act.Enrollment.AttemptID.String()).
		Str("user_id", act.Enrollment.UserID).
		Str("course_id", act.Enrollment.CourseID.String()).
		Msg("enrollment activated")

	if act.OverRedeemed {
		s.metrics.PromotionOverRedemptions.WithLabelValues(act.PromotionCode).Inc()
		s.logger.Warn().
			Str("code", act.PromotionCode).
			Str("attempt_id", act.Enrollment.AttemptID.String()).
			Msg("promotion redeemed past its usage cap")
	}
}

// deferActivation leaves an audit trail for a paid attempt that is still
// without access. The worker and the orphan sweeper pick it up later.
func (s *EnrollmentService) deferActivation(ctx context.Context, attemptID uuid.UUID, cause error) {
	s.logger.Error().Err(cause).Str("attempt_id", attemptID.String()).Msg("activation deferred")
	event := payment.NewEvent(attemptID, payment.EventActivationDeferred, map[string]any{"error": cause.Error()})
	if err := s.attemptRepo.AddEvent(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Error().Err(err).Str("attempt_id", attemptID.String()).Msg("failed to record deferred activation")
	}
}

// Status returns the enrollment for (user, course) or ErrEnrollmentNotFound.
func (s *EnrollmentService) Status(ctx context.Context, userID string, courseID uuid.UUID) (*enrollment.Enrollment, error) {
	return s.enrollmentRepo.Get(ctx, userID, courseID)
}

// ReconcileOrphans re-runs activation for paid attempts that have no
// enrollment. It returns how many enrollments were created.
func (s *EnrollmentService) ReconcileOrphans(ctx context.Context, limit int) (int, error) {
	orphans, err := s.attemptRepo.ListPaidWithoutEnrollment(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("failed to list orphaned attempts: %w", err)
	}

	created := 0
	var errs []error
	for _, a := range orphans {
		act, err := s.Activate(ctx, a.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("attempt %s: %w", a.ID, err))
			continue
		}
		if act.Created {
			created++
		}
	}
	return created, errors.Join(errs...)
}

// retryableActivation excludes outcomes that another attempt cannot change.
func retryableActivation(err error) bool {
	return !errors.Is(err, domainErrors.ErrPaymentNotPaid) &&
		!errors.Is(err, domainErrors.ErrPaymentNotFound) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded)
}
