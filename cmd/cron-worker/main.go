package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mverdugo-dev/tempora-backend/internal/cron"
	"github.com/mverdugo-dev/tempora-backend/internal/syncsession"
	"github.com/mverdugo-dev/tempora-backend/pkg/config"
	"github.com/mverdugo-dev/tempora-backend/pkg/db"
	"github.com/mverdugo-dev/tempora-backend/pkg/instance"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
	"github.com/mverdugo-dev/tempora-backend/pkg/metrics"
	"github.com/mverdugo-dev/tempora-backend/pkg/migrate"
	"github.com/mverdugo-dev/tempora-backend/pkg/outbox"
	"github.com/mverdugo-dev/tempora-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	// The stale-sync watchdog closes sessions through the sync service so
	// the sync lock is released alongside the session row.
	syncLock, err := syncsession.NewRedisLock(redisClient, redisClient.LockKey("sync"), cfg.Sync.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sync lock", err)
		os.Exit(1)
	}
	sessionRepo := syncsession.NewRepository(dbClient.DB())
	sessionService, err := syncsession.NewService(syncsession.ServiceParams{
		Repository: sessionRepo,
		Lock:       syncLock,
		DB:         dbClient,
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync session service", err)
		os.Exit(1)
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:        logg,
		Repository:    outbox.NewRepository(dbClient.DB()),
		RetentionDays: cfg.Outbox.RetentionDays,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create outbox retention job", err)
		os.Exit(1)
	}
	staleSyncJob, err := cron.NewStaleSyncJob(cron.StaleSyncJobParams{
		Logger:     logg,
		Repository: sessionRepo,
		Sessions:   sessionService,
		StaleAfter: cfg.Sync.StaleAfter,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale sync job", err)
		os.Exit(1)
	}

	cronLock, err := syncsession.NewRedisLock(redisClient, redisClient.LockKey("cron-worker"), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(retentionJob, staleSyncJob),
		Lock:     cronLock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
