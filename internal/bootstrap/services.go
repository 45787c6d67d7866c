package bootstrap

import (
	"fmt"

	"github.com/cassiomorais/coursepay/internal/infrastructure/config"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	"github.com/cassiomorais/coursepay/internal/processor"
	"github.com/cassiomorais/coursepay/internal/repository/postgres"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/cassiomorais/coursepay/pkg/retry"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// Repositories groups the Postgres adapters shared by every binary.
type Repositories struct {
	Attempts    *postgres.AttemptRepository
	Courses     *postgres.CourseRepository
	Enrollments *postgres.EnrollmentRepository
	Promotions  *postgres.PromotionRepository
	Outbox      *postgres.OutboxRepository
	Idempotency *postgres.IdempotencyRepository
	Tx          *postgres.TxManager
}

type Services struct {
	Processors     *processor.Factory
	Promotions     *service.PromotionService
	Enrollments    *service.EnrollmentService
	Reconciliation *service.ReconciliationService
	Checkout       *service.CheckoutService
}

func (a *App) Repositories() *Repositories {
	return &Repositories{
		Attempts:    postgres.NewAttemptRepository(a.Pool),
		Courses:     postgres.NewCourseRepository(a.Pool),
		Enrollments: postgres.NewEnrollmentRepository(a.Pool),
		Promotions:  postgres.NewPromotionRepository(a.Pool),
		Outbox:      postgres.NewOutboxRepository(a.Pool),
		Idempotency: postgres.NewIdempotencyRepository(a.Pool),
		Tx:          postgres.NewTxManager(a.Pool),
	}
}

func (a *App) Services(repos *Repositories) (*Services, error) {
	factory, err := NewProcessorFactory(&a.Config.Processor, a.Metrics, a.Logger)
	if err != nil {
		return nil, err
	}

	cfg := a.Config
	promotions := service.NewPromotionService(repos.Promotions, repos.Enrollments)
	enrollments := service.NewEnrollmentService(
		repos.Attempts, repos.Enrollments, repos.Promotions, repos.Tx,
		retry.Config{
			MaxAttempts:  cfg.Reconcile.ActivationAttempts,
			InitialDelay: cfg.Reconcile.ActivationDelay,
			MaxDelay:     cfg.Reconcile.ActivationDelay * 8,
		},
		a.Metrics, a.Logger,
	)
	reconciliation := service.NewReconciliationService(
		repos.Attempts, repos.Outbox, repos.Tx, factory, enrollments, a.Metrics, a.Logger,
	)
	checkout := service.NewCheckoutService(
		repos.Courses, repos.Attempts, repos.Enrollments, repos.Outbox, repos.Tx,
		promotions, enrollments, factory,
		service.CheckoutOptions{
			Processor:      cfg.Processor.Name,
			MinChargeMinor: cfg.Processor.MinChargeMinor,
			PollInterval:   cfg.Checkout.PollInterval,
			Countdown:      cfg.Checkout.Countdown,
		},
		a.Metrics, a.Logger,
	)

	return &Services{
		Processors:     factory,
		Promotions:     promotions,
		Enrollments:    enrollments,
		Reconciliation: reconciliation,
		Checkout:       checkout,
	}, nil
}

// NewProcessorFactory registers the configured processor behind a circuit
// breaker whose state is exported as a gauge.
func NewProcessorFactory(cfg *config.ProcessorConfig, metrics *observability.Metrics, logger zerolog.Logger) (*processor.Factory, error) {
	factory := processor.NewFactory(processor.WithStateChange(func(name string, from, to gobreaker.State) {
		metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		logger.Warn().
			Str("processor", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("Circuit breaker state changed")
	}))

	switch cfg.Name {
	case config.MockProcessor:
		factory.Register(processor.NewMockProcessor(
			config.MockProcessor,
			processor.WithWebhookSecret(cfg.WebhookSecret),
			processor.WithScanExpiry(cfg.ScanExpiry),
		))
	case processor.MercadoPagoName:
		mp, err := processor.NewMercadoPago(processor.MercadoPagoConfig{
			AccessToken:     cfg.AccessToken,
			WebhookSecret:   cfg.WebhookSecret,
			NotificationURL: cfg.NotificationURL,
			ScanExpiry:      cfg.ScanExpiry,
			RequestTimeout:  cfg.RequestTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("init processor: %w", err)
		}
		factory.Register(mp)
	default:
		return nil, fmt.Errorf("unknown processor %q", cfg.Name)
	}
	return factory, nil
}
