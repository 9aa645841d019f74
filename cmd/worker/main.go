package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/integrations/internal/bootstrap"
	infraRedis "github.com/cassiomorais/integrations/internal/infrastructure/redis"
	"github.com/cassiomorais/integrations/internal/worker"
	"golang.org/x/sync/errgroup"
)

const idempotencyCleanupSchedule = "@hourly"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "integrations-worker", "integrations_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	svc, err := app.Services()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to wire services")
	}

	workerCfg := app.Config.Worker
	relay := worker.NewAuditRelay(
		svc.TxManager,
		svc.Audit,
		infraRedis.NewAuditPublisher(app.Redis, workerCfg.AuditStream),
		workerCfg.BatchSize,
		app.Logger,
		app.Metrics,
	)

	scheduler := worker.NewScheduler(app.Logger, 10*time.Minute)
	if err := scheduler.Add(ctx, "reconcile-deletions", workerCfg.ReconcileSchedule, func(ctx context.Context) error {
		_, err := svc.Reconciler.Run(ctx)
		return err
	}); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to schedule reconciler")
	}
	if err := scheduler.Add(ctx, "idempotency-cleanup", idempotencyCleanupSchedule, func(ctx context.Context) error {
		n, err := svc.Idempotency.Cleanup(ctx)
		if err == nil && n > 0 {
			app.Logger.Info().Int64("removed", n).Msg("Expired idempotency keys removed")
		}
		return err
	}); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to schedule idempotency cleanup")
	}

	app.Logger.Info().
		Str("stream", workerCfg.AuditStream).
		Str("reconcile_schedule", workerCfg.ReconcileSchedule).
		Str("instance", app.Config.InstanceID).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Audit relay (polls the outbox table and publishes to the Redis stream).
	g.Go(func() error {
		return relay.Run(gCtx, workerCfg.OutboxPollInterval)
	})

	// 2. Cron jobs.
	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	// 3. Wait for shutdown signal.
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

	if err := g.Wait(); err != nil && err != context.Canceled {
		app.Logger.Error().Err(err).Msg("Worker error")
	}
	app.Logger.Info().Msg("Worker exited")
}
