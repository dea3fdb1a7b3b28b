package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/fueltax-backend/internal/cron"
	"github.com/angelmondragon/fueltax-backend/internal/jobs"
	"github.com/angelmondragon/fueltax-backend/internal/quota"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/internal/transcription"
	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/db"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/metrics"
	"github.com/angelmondragon/fueltax-backend/pkg/migrate"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/redis"
)

const lockKeyFormat = "ft:cron-worker:lock:%s"

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

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metricsCollector := metrics.NewCronJobMetrics(promRegistry)

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry, err := buildRegistry(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to build cron jobs", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
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
	})
	logg.Info(ctx, "starting cron worker")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error { return service.Run(groupCtx) })
	group.Go(func() error { return metrics.Serve(groupCtx, cfg.Cron.MetricsAddr, promRegistry) })

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	outboxRepo := outbox.NewRepository(dbClient.DB())
	outboxSvc := outbox.NewService(outboxRepo, logg)

	recovery, err := transcription.NewRecovery(transcription.RecoveryParams{
		DB:          dbClient,
		Jobs:        jobs.NewRepository(dbClient.DB()),
		Receipts:    receipts.NewRepository(dbClient.DB()),
		Outbox:      outboxSvc,
		Lease:       cfg.Worker.LeaseTimeout,
		MaxAttempts: cfg.Worker.MaxAttempts,
		Logger:      logg,
	})
	if err != nil {
		return nil, fmt.Errorf("receipt job recovery: %w", err)
	}
	recoveryJob, err := cron.NewReceiptRecoveryJob(cron.ReceiptRecoveryJobParams{
		Logger:   logg,
		Recovery: recovery,
		Limit:    cfg.Cron.BatchLimit,
	})
	if err != nil {
		return nil, err
	}

	quotaSvc, err := quota.NewService(quota.ServiceParams{
		Repo:   quota.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: outboxSvc,
		Config: cfg.Quota,
		Logger: logg,
	})
	if err != nil {
		return nil, fmt.Errorf("quota service: %w", err)
	}
	trialJob, err := cron.NewTrialExpiryJob(cron.TrialExpiryJobParams{
		Logger: logg,
		Quota:  quotaSvc,
		Limit:  cfg.Cron.BatchLimit,
	})
	if err != nil {
		return nil, err
	}

	retentionJob, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          dbClient,
		Repository:  outboxRepo,
		Retention:   cfg.Cron.OutboxRetentionDays,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}

	return cron.NewRegistry(
		cron.Schedule{Job: recoveryJob, Every: cfg.Cron.RecoveryEvery},
		cron.Schedule{Job: trialJob, Every: cfg.Cron.TrialExpiryEvery},
		cron.Schedule{Job: retentionJob, Every: 24 * time.Hour},
	), nil
}
