package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/fueltax-backend/api/controllers"
	"github.com/angelmondragon/fueltax-backend/api/routes"
	"github.com/angelmondragon/fueltax-backend/internal/jobs"
	"github.com/angelmondragon/fueltax-backend/internal/quota"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/internal/refunds"
	"github.com/angelmondragon/fueltax-backend/internal/taxrates"
	stripewebhook "github.com/angelmondragon/fueltax-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/db"
	"github.com/angelmondragon/fueltax-backend/pkg/enums"
	"github.com/angelmondragon/fueltax-backend/pkg/instance"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/migrate"
	"github.com/angelmondragon/fueltax-backend/pkg/outbox"
	"github.com/angelmondragon/fueltax-backend/pkg/redis"
	"github.com/angelmondragon/fueltax-backend/pkg/storage/blobs"
	"github.com/angelmondragon/fueltax-backend/pkg/stripe"
)

const (
	stripeWebhookScope = "stripe-webhook"
	stripeWebhookTTL   = 7 * 24 * time.Hour
	shutdownTimeout    = 15 * time.Second
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

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

	defaultFuel, err := enums.ParseFuelType(cfg.Refunds.DefaultFuelType)
	if err != nil {
		logg.Error(ctx, "invalid default fuel type", err)
		os.Exit(1)
	}
	rounding, err := refunds.ParseRoundingMode(cfg.Refunds.RoundingMode)
	if err != nil {
		logg.Error(ctx, "invalid refund rounding mode", err)
		os.Exit(1)
	}

	outboxSvc := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)

	quotaService, err := quota.NewService(quota.ServiceParams{
		Repo:   quota.NewRepository(dbClient.DB()),
		Tx:     dbClient,
		Outbox: outboxSvc,
		Config: cfg.Quota,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create quota service", err)
		os.Exit(1)
	}

	resolver, err := taxrates.NewResolver(taxrates.NewRepository(dbClient.DB()))
	if err != nil {
		logg.Error(ctx, "failed to create tax rate resolver", err)
		os.Exit(1)
	}
	annotator, err := refunds.NewAnnotator(resolver, refunds.NewCalculator(cfg.Refunds.HomeState, logg), rounding)
	if err != nil {
		logg.Error(ctx, "failed to create refund annotator", err)
		os.Exit(1)
	}

	receiptService, err := receipts.NewService(receipts.ServiceParams{
		Repo:        receipts.NewRepository(dbClient.DB()),
		Jobs:        jobs.NewRepository(dbClient.DB()),
		Quota:       quotaService,
		Blobs:       blobStore,
		Outbox:      outboxSvc,
		Tx:          dbClient,
		Annotator:   annotator,
		MaxBytes:    cfg.Upload.MaxBytes(),
		DefaultFuel: defaultFuel,
		Logger:      logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create receipt service", err)
		os.Exit(1)
	}

	stripeVerifier, err := stripe.NewVerifier(cfg.Stripe)
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook verifier", err)
		os.Exit(1)
	}
	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Quota:  quotaService,
		Logger: logg,
	})
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripeWebhookTTL, stripeWebhookScope)
	if err != nil {
		logg.Error(ctx, "failed to create stripe webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": instance.GetID(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			controllers.ReadinessChecks{"database": dbClient, "redis": redisClient, "blob": blobStore},
			redisClient,
			redisClient,
			receiptService,
			quotaService,
			stripeVerifier,
			webhookService,
			webhookGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "api server shutdown failed", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "api server shut down gracefully")
}
