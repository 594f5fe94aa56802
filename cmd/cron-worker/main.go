package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/assetdrop-backend/internal/cart"
	"github.com/angelmondragon/assetdrop-backend/internal/cron"
	"github.com/angelmondragon/assetdrop-backend/internal/products"
	"github.com/angelmondragon/assetdrop-backend/pkg/config"
	"github.com/angelmondragon/assetdrop-backend/pkg/db"
	"github.com/angelmondragon/assetdrop-backend/pkg/instance"
	"github.com/angelmondragon/assetdrop-backend/pkg/logger"
	"github.com/angelmondragon/assetdrop-backend/pkg/metrics"
	"github.com/angelmondragon/assetdrop-backend/pkg/migrate"
	"github.com/angelmondragon/assetdrop-backend/pkg/outbox"
	"github.com/angelmondragon/assetdrop-backend/pkg/redis"
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

	// The worker lock lives in redis, so unlike the api it cannot run without it.
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

	registry, err := buildRegistry(cfg, logg, dbClient, redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to register cron jobs", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey("cron-worker:"+envName(cfg.App.Env)), cfg.Cron.Interval)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.ID(),
		"interval":    cfg.Cron.Interval.String(),
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client, redisClient *redis.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)

	catalog, err := products.NewCatalog(products.NewRepository(conn))
	if err != nil {
		return nil, err
	}
	carts, err := cart.NewService(cart.ServiceParams{
		Repo:    cart.NewRepository(conn),
		Tx:      dbClient,
		Catalog: catalog,
		Cache:   redisClient,
		Outbox:  outbox.NewService(outboxRepo, logg),
		Config:  cfg.Cart,
		Logger:  logg,
	})
	if err != nil {
		return nil, err
	}

	abandoned, err := cron.NewAbandonedCartJob(cron.AbandonedCartJobParams{
		Logger:     logg,
		Carts:      carts,
		BatchSize:  cfg.Cron.AbandonBatchSize,
		MaxBatches: cfg.Cron.AbandonMaxBatches,
	})
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: outboxRepo,
		Retention:  time.Duration(cfg.Outbox.RetentionDays) * 24 * time.Hour,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(abandoned, retention)
}

func envName(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
