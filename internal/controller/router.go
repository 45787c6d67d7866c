package controller

import (
	"time"

	"github.com/cassiomorais/coursepay/internal/infrastructure/config"
	"github.com/cassiomorais/coursepay/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/coursepay/internal/middleware"
	"github.com/cassiomorais/coursepay/internal/service"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type RouterDeps struct {
	Health          *HealthController
	Checkout        *service.CheckoutService
	Promotions      *service.PromotionService
	Enrollments     *service.EnrollmentService
	Reconciliation  *service.ReconciliationService
	IdempotencyRepo customMW.IdempotencyStore
	IdempotencyLock customMW.KeyLocker
	IdempotencyTTL  time.Duration
	Metrics         *observability.Metrics
	JWTSecret       string
	PollRateLimit   int
	CORSConfig      config.CORSConfig
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(customMW.SecurityHeaders())
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSConfig.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: deps.CORSConfig.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.Metrics(deps.Metrics))

	checkoutH := NewCheckoutController(deps.Checkout)
	promotionH := NewPromotionController(deps.Promotions)
	paymentH := NewPaymentController(deps.Reconciliation)
	enrollmentH := NewEnrollmentController(deps.Enrollments)
	webhookH := NewWebhookController(deps.Reconciliation)

	if deps.Health != nil {
		r.Get("/health", deps.Health.Health)
		r.Get("/health/live", deps.Health.Liveness)
		r.Get("/health/ready", deps.Health.Readiness)
	}

	r.Handle("/metrics", promhttp.Handler())

	// Processor callbacks are authenticated by signature, not by JWT.
	r.Post("/webhooks/{processor}", webhookH.Handle)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.JWTSecret))

		r.With(customMW.Idempotency(deps.IdempotencyRepo, deps.IdempotencyLock, deps.IdempotencyTTL)).Post("/checkout", checkoutH.Checkout)
		r.Post("/promotions/check", promotionH.Check)
		r.With(customMW.RateLimitByUser(deps.PollRateLimit)).Get("/payments/{chargeID}/status", paymentH.Status)
		r.Get("/courses/{courseID}/enrollment", enrollmentH.Get)
	})

	return r
}
