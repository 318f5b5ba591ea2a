package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"

	"github.com/mverdugo-dev/tempora-backend/internal/syncsession"
	"github.com/mverdugo-dev/tempora-backend/internal/syncworker"
	"github.com/mverdugo-dev/tempora-backend/pkg/config"
	"github.com/mverdugo-dev/tempora-backend/pkg/db"
	"github.com/mverdugo-dev/tempora-backend/pkg/instance"
	"github.com/mverdugo-dev/tempora-backend/pkg/logger"
	"github.com/mverdugo-dev/tempora-backend/pkg/migrate"
	"github.com/mverdugo-dev/tempora-backend/pkg/outbox"
	"github.com/mverdugo-dev/tempora-backend/pkg/redis"
	"github.com/mverdugo-dev/tempora-backend/pkg/ticketing"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "sync-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "sync-worker"

	logg = logger.New(logger.Options{
		ServiceName: "sync-worker",
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

	ticketingClient, err := ticketing.NewClient(
		cfg.Ticketing.BaseURL,
		cfg.Ticketing.APIToken,
		ticketing.WithTimeout(cfg.Ticketing.Timeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create ticketing client", err)
		os.Exit(1)
	}

	syncLock, err := syncsession.NewRedisLock(redisClient, redisClient.LockKey("sync"), cfg.Sync.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create sync lock", err)
		os.Exit(1)
	}
	sessionService, err := syncsession.NewService(syncsession.ServiceParams{
		Repository: syncsession.NewRepository(dbClient.DB()),
		Lock:       syncLock,
		DB:         dbClient,
		Outbox:     outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		Logger:     logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync session service", err)
		os.Exit(1)
	}

	service, err := syncworker.NewService(syncworker.ServiceParams{
		Logger:   logg,
		Feed:     ticketingClient,
		Sessions: sessionService,
		Apply:    applyChange(logg),
		PageSize: cfg.Sync.PageSize,
		Interval: cfg.Sync.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sync worker", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting sync worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "sync worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "sync worker shutting down gracefully")
}

// applyChange is where ingested ticketing changes land. Today they are only
// acknowledged into the audit ledger; downstream projection consumes the
// domain events instead.
func applyChange(logg *logger.Logger) syncworker.ApplyFunc {
	return func(ctx context.Context, change ticketing.Change) error {
		ctx = logg.WithFields(ctx, map[string]any{
			"change_id": change.ID,
			"kind":      change.Kind,
			"operation": change.Operation,
		})
		logg.Info(ctx, "ticketing change acknowledged")
		return nil
	}
}
