package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"elearning/internal/cache"
	"elearning/internal/config"
	"elearning/internal/jobs"
	"elearning/internal/log"
	"elearning/internal/mail"
	"elearning/internal/queue"
	"elearning/internal/storage"
	"elearning/internal/tasks"
)

func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.NewWithLevel(cfg.Environment, cfg.Worker.LogLevel).
		With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer client.Close()

	processor := tasks.NewProcessor(
		mail.NewRenderer(),
		mail.NewSMTPSender(cfg.Mail, logger),
		avatarRemover(cfg.Storage, logger),
		logger,
	)
	consumer := queue.NewConsumer(
		client,
		cfg.Worker.Stream,
		cfg.Worker.Group,
		cfg.Worker.Consumer,
		cfg.Worker.ClaimInterval,
		logger,
		processor,
	)

	scheduler := jobs.NewScheduler(client, cfg.Worker.Stream, cfg.Worker.StreamMaxLen, cfg.Worker.TrimSchedule, logger)
	if err := scheduler.Start(); err != nil {
		logger.Error().Err(err).Msg("scheduler start failed")
	}
	defer scheduler.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Msg("consumer stopped unexpectedly")
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		logger.Warn().Msg("consumer did not stop in time")
	}
}

// avatarRemover returns nil when object storage is not configured, in which
// case avatar-delete tasks stay pending until a worker that has it claims them.
func avatarRemover(cfg config.StorageConfig, logger zerolog.Logger) tasks.ObjectRemover {
	if cfg.AccessKey == "" {
		return nil
	}
	store, err := storage.NewObjectStore(cfg)
	if err != nil {
		logger.Warn().Err(err).Msg("object store unavailable; avatar cleanup disabled")
		return nil
	}
	return store
}
