package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/coursepay/internal/bootstrap"
	infraRedis "github.com/cassiomorais/coursepay/internal/infrastructure/redis"
	"github.com/cassiomorais/coursepay/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "coursepay-worker", "coursepay_worker")
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

	workerCfg := app.Config.Worker
	reconcileCfg := app.Config.Reconcile
	producer := infraRedis.NewStreamProducer(app.Redis)

	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		workerCfg.ConsumerGroup,
		app.Config.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	relay := worker.NewOutboxRelay(repos.Tx, repos.Outbox, producer, int(workerCfg.BatchSize), app.Metrics, app.Logger)
	activations := worker.NewActivationConsumer(
		consumer,
		producer,
		infraRedis.NewLocker(app.Redis, workerCfg.LockTTL),
		services.Enrollments,
		workerCfg.LockTTL,
		app.Metrics,
		app.Logger,
	)
	sweeper := worker.NewSweeper(
		services.Reconciliation,
		services.Enrollments,
		repos.Idempotency,
		reconcileCfg.StalePendingAfter,
		reconcileCfg.SweepBatchSize,
		app.Logger,
	)

	app.Logger.Info().
		Str("stream", infraRedis.PaymentStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", app.Config.InstanceID).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return relay.Run(gCtx, workerCfg.OutboxPollInterval)
	})
	g.Go(func() error {
		return activations.Run(gCtx)
	})
	g.Go(func() error {
		return sweeper.Run(gCtx, reconcileCfg.SweepInterval)
	})
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
