package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"elearning/internal/cache"
	"elearning/internal/config"
	"elearning/internal/database"
	"elearning/internal/handlers"
	"elearning/internal/log"
	"elearning/internal/mail"
	"elearning/internal/middleware"
	"elearning/internal/queue"
	"elearning/internal/repository"
	"elearning/internal/security"
	"elearning/internal/server"
	"elearning/internal/service"
	"elearning/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := log.New(cfg.Environment)

	ctx := context.Background()

	dbPool, err := database.Open(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect postgres")
	}

	redisClient, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect redis")
	}

	objectStore, err := storage.NewObjectStore(cfg.Storage)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to init object store")
	}
	if err := objectStore.EnsureBuckets(ctx); err != nil {
		logger.Warn().Err(err).Msg("ensure buckets failed")
	}

	tokens, err := security.NewTokenIssuer(
		cfg.Security.AccessSecret,
		cfg.Security.RefreshSecret,
		cfg.Security.AccessTTL,
		cfg.Security.RefreshTTL,
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("token issuer")
	}
	activation, err := security.NewActivationCodec(cfg.Security.ActivationSecret, cfg.Security.ActivationTTL)
	if err != nil {
		logger.Fatal().Err(err).Msg("activation codec")
	}

	users := repository.NewUserRepository(dbPool)
	sessions := cache.NewSessionCache(redisClient, cfg.Security.RefreshTTL)
	producer := queue.NewProducer(redisClient, cfg.Worker.Stream)

	avatarSecret := cfg.Security.AvatarSecret
	if avatarSecret == "" {
		avatarSecret = cfg.Security.ActivationSecret
	}

	accounts, err := service.NewAccountService(service.AccountDeps{
		Users:         users,
		Sessions:      sessions,
		Tokens:        tokens,
		Activation:    activation,
		Hasher:        security.NewArgon2Hasher(security.DefaultArgon2Params),
		Notifier:      mail.NewStreamNotifier(producer),
		Avatars:       objectStore,
		Tasks:         producer,
		AvatarSecret:  avatarSecret,
		MaxAvatarSize: cfg.Storage.MaxAvatarSize,
		Log:           logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("account service")
	}

	handlerSet := handlers.NewHandlerSet(
		logger,
		cfg,
		accounts,
		middleware.Authenticate(tokens, sessions, users),
		handlers.HealthCheck{Name: "postgres", Check: dbPool.Ping},
		handlers.HealthCheck{Name: "redis", Check: sessions.Ping},
		handlers.HealthCheck{Name: "storage", Check: objectStore.Ping},
	)
	httpServer := server.NewHTTPServer(cfg, logger, handlerSet)

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	waitForShutdown(logger, httpServer, dbPool, redisClient)
}

func waitForShutdown(logger zerolog.Logger, srv *server.HTTPServer, db *pgxpool.Pool, redisClient *redis.Client) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	logger.Info().Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}

	db.Close()
	if err := redisClient.Close(); err != nil {
		logger.Error().Err(err).Msg("redis close error")
	}

	logger.Info().Msg("server exited cleanly")
}
