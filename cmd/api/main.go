package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/coursepay/internal/bootstrap"
	"github.com/cassiomorais/coursepay/internal/controller"
	infraRedis "github.com/cassiomorais/coursepay/internal/infrastructure/redis"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "coursepay-api", "coursepay")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	repos := app.Repositories()
	services, err := app.Services(repos)
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build services")
	}

	router := controller.NewRouter(controller.RouterDeps{
		Health:          controller.NewHealthController(app.Pool, app.Redis),
		Checkout:        services.Checkout,
		Promotions:      services.Promotions,
		Enrollments:     services.Enrollments,
		Reconciliation:  services.Reconciliation,
		IdempotencyRepo: repos.Idempotency,
		IdempotencyLock: infraRedis.NewLocker(app.Redis, app.Config.Worker.LockTTL),
		IdempotencyTTL:  app.Config.Worker.IdempotencyTTL,
		Metrics:         app.Metrics,
		JWTSecret:       app.Config.Auth.JWTSecret,
		PollRateLimit:   app.Config.Server.PollRateLimit,
		CORSConfig:      app.Config.Server.CORS,
	})

	addr := fmt.Sprintf(":%d", app.Config.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  app.Config.Server.ReadTimeout,
		WriteTimeout: app.Config.Server.WriteTimeout,
		IdleTimeout:  app.Config.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), app.Config.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Logger.Info().Msg("Server exited")
}
