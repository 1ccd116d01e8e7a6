package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/notifications/internal/bootstrap"
	infraRedis "github.com/cassiomorais/notifications/internal/infrastructure/redis"
	"github.com/cassiomorais/notifications/internal/worker"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "notifications-worker", "notifications_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer app.Close()

	// --- Reconciliation engine ---
	processNotificationUC, err := app.NewProcessor()
	if err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to build notification processor")
	}

	// --- Notification stream consumer ---
	workerCfg := app.Config.Worker
	consumerName := app.Config.InstanceID
	if consumerName == "" {
		consumerName = "worker-" + uuid.NewString()
	}
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.NotificationStream,
		workerCfg.ConsumerGroup,
		consumerName,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Fatal().Err(err).Msg("Failed to create consumer group")
	}

	processor := worker.NewProcessor(
		consumer,
		infraRedis.NewStreamProducer(app.Redis),
		processNotificationUC,
		app.Logger,
		app.Metrics,
		workerCfg.ProcessTimeout,
	)

	app.Logger.Info().
		Str("stream", infraRedis.NotificationStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", consumerName).
		Int("max_update_retries", app.Config.Notification.MaxUpdateRetries).
		Msg("Worker started, listening for notifications...")

	// Signal handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Notification processor (reads new messages).
	g.Go(func() error {
		return processor.Run(gCtx)
	})

	// 2. Stale message claimer (recovers messages of crashed consumers).
	g.Go(func() error {
		return processor.RunClaimer(gCtx, workerCfg.ClaimInterval, workerCfg.ClaimMinIdle)
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
