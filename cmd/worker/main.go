package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/fueltax-backend/internal/extraction"
	"github.com/angelmondragon/fueltax-backend/internal/jobs"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/internal/transcription"
	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/db"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/instance"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/metrics"
	"github.com/angelmondragon/fueltax-backend/pkg/migrate"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/storage/blobs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.New(logger.Options{
		ServiceName: "worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	blobStore, err := blobs.Open(ctx, cfg, logg)
	if err != nil {
		logg.Error(ctx, "failed to open blob store", err)
		os.Exit(1)
	}
	defer func() {
		if err := blobStore.Close(); err != nil {
			logg.Error(context.Background(), "error closing blob store", err)
		}
	}()

	gemini, err := extraction.NewGemini(ctx, cfg.Gemini)
	if err != nil {
		logg.Error(ctx, "failed to create gemini extractor", err)
		os.Exit(1)
	}
	defer func() {
		if err := gemini.Close(); err != nil {
			logg.Error(context.Background(), "error closing gemini client", err)
		}
	}()

	defaultFuel, err := enums.ParseFuelType(cfg.Refunds.DefaultFuelType)
	if err != nil {
		logg.Error(ctx, "invalid default fuel type", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	jobRepo := jobs.NewRepository(dbClient.DB())
	receiptRepo := receipts.NewRepository(dbClient.DB())

	recovery, err := transcription.NewRecovery(transcription.RecoveryParams{
		DB:          dbClient,
		Jobs:        jobRepo,
		Receipts:    receiptRepo,
		Outbox:      outboxSvc,
		Lease:       cfg.Worker.LeaseTimeout,
		MaxAttempts: cfg.Worker.MaxAttempts,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create job recovery", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	worker, err := transcription.NewWorker(transcription.WorkerParams{
		WorkerID:    instance.GetID(),
		DB:          dbClient,
		Jobs:        jobRepo,
		Receipts:    receiptRepo,
		Blobs:       blobStore,
		Extractor:   gemini,
		Outbox:      outboxSvc,
		Recovery:    recovery,
		Metrics:     metrics.NewTranscriptionMetrics(registry),
		Config:      cfg.Worker,
		Timeout:     cfg.Extraction.Timeout,
		DefaultFuel: defaultFuel,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create transcription worker", err)
		os.Exit(1)
	}

	service, err := NewService(ServiceParams{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Blobs:    blobStore,
		Worker:   worker,
		Gatherer: registry,
	})
	if err != nil {
		logg.Error(ctx, "failed to create worker service", err)
		os.Exit(1)
	}

	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": "worker",
		"instance":    instance.GetID(),
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}
