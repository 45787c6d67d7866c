package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cassiomorais/coursepay/internal/domain/course"
	"github.com/cassiomorais/coursepay/internal/domain/enrollment"
	domainErrors "github.com/cassiomorais/coursepay/internal/domain/errors"
	"github.com/cassiomorais/coursepay/internal/domain/outbox"
	"github.com/cassiomorais/coursepay/internal/domain/payment"
	"github.com/cassiomorais/coursepay/internal/domain/promotion"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	"github.com/cassiomorais/coursepay/internal/processor"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CheckoutOptions carries the processor selection and client-facing timings.
type CheckoutOptions struct {
	Processor      string
	MinChargeMinor int64
	PollInterval   time.Duration
	Countdown      time.Duration
}

// CheckoutService is the charge initiator.
type CheckoutService struct {
	courseRepo     course.Repository
	attemptRepo    payment.Repository
	enrollmentRepo enrollment.Repository
	outboxRepo     outbox.Repository
	txManager      TransactionManager
	promotions     *PromotionService
	activator      *EnrollmentService
	processors     *processor.Factory
	opts           CheckoutOptions
	metrics        *observability.Metrics
	logger         zerolog.Logger
	now            func() time.Time
}

func NewCheckoutService(
	courseRepo course.Repository,
	attemptRepo payment.Repository,
	enrollmentRepo enrollment.Repository,
	outboxRepo outbox.Repository,
	txManager TransactionManager,
	promotions *PromotionService,
	activator *EnrollmentService,
	processors *processor.Factory,
	opts CheckoutOptions,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) *CheckoutService {
	return &CheckoutService{
		courseRepo:     courseRepo,
		attemptRepo:    attemptRepo,
		enrollmentRepo: enrollmentRepo,
		outboxRepo:     outboxRepo,
		txManager:      txManager,
		promotions:     promotions,
		activator:      activator,
		processors:     processors,
		opts:           opts,
		metrics:        metrics,
		logger:         logger.With().Str("component", "checkout").Logger(),
		now:            time.Now,
	}
}

// Initiate prices the course, creates the processor charge and records the
// attempt. A card charge that captures synchronously is activated in the same
// transaction that records it. A charge the processor declined is recorded as
// failed and returned as a *DeclineError.
func (s *CheckoutService) Initiate(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := observability.Tracer().Start(ctx, "CheckoutService.Initiate", trace.WithAttributes(
		attribute.String("course.id", req.CourseID.String()),
		attribute.String("payment.method", string(req.Method)),
	))
	defer span.End()

	resp, err := s.initiate(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.metrics.CheckoutRejections.WithLabelValues(rejectionReason(err)).Inc()
		return nil, err
	}
	span.SetAttributes(attribute.String("charge.id", resp.Attempt.ChargeID))
	return resp, nil
}

func (s *CheckoutService) initiate(ctx context.Context, req CheckoutRequest) (*CheckoutResponse, error) {
	if err := validateCheckout(req); err != nil {
		return nil, err
	}

	c, err := s.courseRepo.GetByID(ctx, req.CourseID)
	if err != nil {
		return nil, err
	}

	existing, err := s.enrollmentRepo.Get(ctx, req.UserID, c.ID)
	switch {
	case err == nil && existing.Status.GrantsAccess():
		return nil, domainErrors.ErrAlreadyEnrolled
	case err != nil && !errors.Is(err, domainErrors.ErrEnrollmentNotFound):
		return nil, fmt.Errorf("failed to get enrollment: %w", err)
	}

	amount := c.PriceMinor
	var quote *promotion.Quote
	if strings.TrimSpace(req.PromoCode) != "" {
		q, err := s.promotions.Check(ctx, req.PromoCode, c.PriceMinor)
		if err != nil {
			return nil, err
		}
		quote = &q
		amount = q.FinalMinor
	}

	if amount <= 0 || amount < s.opts.MinChargeMinor {
		return nil, domainErrors.NewDomainError(
			"below_minimum_charge",
			fmt.Sprintf("final amount %s is below the minimum charge of %s",
				payment.Amount{Minor: amount, Currency: c.Currency},
				payment.Amount{Minor: s.opts.MinChargeMinor, Currency: c.Currency}),
			domainErrors.ErrBelowMinimumCharge,
		)
	}

	proc, breaker, err := s.processors.Get(s.opts.Processor)
	if err != nil {
		return nil, err
	}

	attemptID := uuid.New()
	start := time.Now()
	charge, err := breaker.Execute(func() (*processor.Charge, error) {
		return proc.CreateCharge(ctx, processor.CreateChargeRequest{
			Reference:   attemptID.String(),
			Method:      processor.Method(req.Method),
			Token:       req.Token,
			CardBrand:   req.CardBrand,
			SourceID:    req.SourceID,
			AmountMinor: amount,
			Currency:    c.Currency,
			Description: c.Title,
			PayerEmail:  req.PayerEmail,
		})
	})
	s.metrics.ChargeDuration.WithLabelValues(proc.Name(), "create").Observe(time.Since(start).Seconds())
	if err != nil {
		s.metrics.ChargesTotal.WithLabelValues(proc.Name(), string(req.Method), "error").Inc()
		return nil, processor.Unavailable(err)
	}
	s.metrics.ChargesTotal.WithLabelValues(proc.Name(), string(req.Method), string(charge.Status)).Inc()

	params := payment.NewAttemptParams{
		Processor: proc.Name(),
		UserID:    req.UserID,
		CourseID:  c.ID,
		Method:    req.Method,
		ChargeID:  charge.ID,
		Amount:    payment.Amount{Minor: amount, Currency: c.Currency},
	}
	if quote != nil {
		params.PromotionID = &quote.PromotionID
	}
	if req.SourceID != "" {
		params.SourceID = &req.SourceID
	}
	attempt, err := payment.NewAttempt(params)
	if err != nil {
		return nil, err
	}
	attempt.ID = attemptID

	now := s.now().UTC()
	switch charge.Status {
	case processor.ChargeStatusSuccessful:
		_, err = attempt.Apply(payment.MarkPaid(now))
	case processor.ChargeStatusFailed, processor.ChargeStatusExpired:
		_, err = attempt.Apply(payment.MarkFailed(charge.FailureCode, charge.FailureMessage, now))
	}
	if err != nil {
		return nil, err
	}

	enrolled, err := s.record(ctx, attempt)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("attempt_id", attempt.ID.String()).
		Str("charge_id", attempt.ChargeID).
		Str("status", string(attempt.Status)).
		Msg("charge created")

	if attempt.Status == payment.StatusFailed {
		return nil, domainErrors.NewDeclineError(charge.FailureCode, charge.FailureMessage)
	}

	resp := &CheckoutResponse{
		Attempt:           attempt,
		Quote:             quote,
		Enrolled:          enrolled,
		ScannableImageURI: charge.ScannableImageURI,
		AuthorizeURI:      charge.AuthorizeURI,
	}
	if attempt.Status == payment.StatusPending {
		resp.PollInterval = s.opts.PollInterval
		expiresAt := now.Add(s.opts.Countdown)
		if charge.ExpiresAt != nil && charge.ExpiresAt.Before(expiresAt) {
			expiresAt = *charge.ExpiresAt
		}
		resp.ExpiresAt = &expiresAt
	}
	return resp, nil
}

// record persists the attempt. A paid attempt is activated inside the same
// transaction; if that transaction fails the attempt is recorded on its own so
// a captured charge is never lost, and activation is left to the worker.
func (s *CheckoutService) record(ctx context.Context, a *payment.Attempt) (bool, error) {
	var act Activation
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.insert(txCtx, a); err != nil {
			return err
		}
		if !a.IsPaid() {
			return nil
		}
		var err error
		act, err = s.activator.activate(txCtx, a)
		return err
	})
	if err == nil {
		if a.IsPaid() {
			s.activator.record(act)
		}
		return act.Created, nil
	}
	if !a.IsPaid() || errors.Is(err, domainErrors.ErrDuplicateCharge) {
		return false, err
	}

	cause := err
	s.logger.Error().Err(cause).Str("charge_id", a.ChargeID).Msg("inline activation failed, recording paid attempt alone")
	s.metrics.ActivationsTotal.WithLabelValues("error").Inc()
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.insert(txCtx, a); err != nil {
			return err
		}
		return s.attemptRepo.AddEvent(txCtx, payment.NewEvent(a.ID, payment.EventActivationDeferred, map[string]any{
			"error": cause.Error(),
		}))
	})
	if err != nil {
		return false, fmt.Errorf("failed to record paid attempt %s: %w", a.ChargeID, err)
	}
	return false, nil
}

func (s *CheckoutService) insert(ctx context.Context, a *payment.Attempt) error {
	if err := s.attemptRepo.Create(ctx, a); err != nil {
		return fmt.Errorf("failed to create attempt: %w", err)
	}

	data := map[string]any{
		"charge_id": a.ChargeID,
		"method":    string(a.Method),
		"amount":    a.Amount.Minor,
		"currency":  a.Amount.Currency,
	}
	if err := s.attemptRepo.AddEvent(ctx, payment.NewEvent(a.ID, payment.EventCreated, data)); err != nil {
		return fmt.Errorf("failed to add attempt event: %w", err)
	}

	switch a.Status {
	case payment.StatusPaid:
		data = map[string]any{"charge_id": a.ChargeID, "source": string(SourceCheckout)}
		if err := s.attemptRepo.AddEvent(ctx, payment.NewEvent(a.ID, payment.EventPaid, data)); err != nil {
			return fmt.Errorf("failed to add attempt event: %w", err)
		}
		if err := s.outboxRepo.Insert(ctx, paidEntry(a)); err != nil {
			return fmt.Errorf("failed to insert outbox entry: %w", err)
		}
	case payment.StatusFailed:
		data = map[string]any{"charge_id": a.ChargeID, "source": string(SourceCheckout)}
		if a.FailureCode != nil {
			data["failure_code"] = *a.FailureCode
		}
		if a.FailureMessage != nil {
			data["failure_message"] = *a.FailureMessage
		}
		if err := s.attemptRepo.AddEvent(ctx, payment.NewEvent(a.ID, payment.EventFailed, data)); err != nil {
			return fmt.Errorf("failed to add attempt event: %w", err)
		}
	}
	return nil
}

func validateCheckout(req CheckoutRequest) error {
	if req.UserID == "" {
		return domainErrors.ErrUnauthorized
	}
	if !req.Method.Valid() {
		return domainErrors.ErrInvalidPaymentMethod
	}
	if req.Method == payment.MethodCard && strings.TrimSpace(req.Token) == "" {
		return domainErrors.NewValidationError("token", "is required for card payments")
	}
	if req.Method == payment.MethodScan && strings.TrimSpace(req.SourceID) == "" {
		return domainErrors.NewValidationError("source_id", "is required for scan payments")
	}
	return nil
}

func rejectionReason(err error) string {
	var validationErr *domainErrors.ValidationError
	switch {
	case errors.As(err, &validationErr):
		return "validation"
	case errors.Is(err, domainErrors.ErrCourseNotFound):
		return "course_not_found"
	case errors.Is(err, domainErrors.ErrAlreadyEnrolled):
		return "already_enrolled"
	case errors.Is(err, domainErrors.ErrPromotionNotFound):
		return "promotion_not_found"
	case errors.Is(err, domainErrors.ErrPromotionExhausted):
		return "promotion_exhausted"
	case errors.Is(err, domainErrors.ErrPromotionMinimumNotMet):
		return "promotion_minimum_not_met"
	case errors.Is(err, domainErrors.ErrBelowMinimumCharge):
		return "below_minimum_charge"
	case errors.Is(err, domainErrors.ErrChargeDeclined):
		return "declined"
	case errors.Is(err, domainErrors.ErrProcessorUnavailable):
		return "processor_unavailable"
	default:
		return "error"
	}
}
