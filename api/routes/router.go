package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/fueltax-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/fueltax-backend/api/controllers/webhooks"
	"github.com/angelmondragon/fueltax-backend/api/middleware"
	"github.com/angelmondragon/fueltax-backend/internal/quota"
	"github.com/angelmondragon/fueltax-backend/internal/receipts"
	"github.com/angelmondragon/fueltax-backend/pkg/config"
	"github.com/angelmondragon/fueltax-backend/pkg/logger"
	"github.com/angelmondragon/fueltax-backend/pkg/redis"
)

const uploadRateLimitPolicy = "receipt-upload"

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	readiness controllers.ReadinessChecks,
	idempotencyStore redis.IdempotencyStore,
	rateLimiter middleware.RateLimiterStore,
	receiptService receipts.Service,
	quotaService quota.Service,
	stripeVerifier webhookcontrollers.StripeVerifier,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard webhookcontrollers.StripeWebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readiness, logg))
	})

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeVerifier, stripeWebhookGuard, logg))
	})

	uploadLimit := middleware.NewRateLimitPolicy(uploadRateLimitPolicy, cfg.Upload.RateWindow, cfg.Upload.RateLimit, middleware.AccountKey)

	r.Route("/api/v1/accounts/{"+middleware.AccountParam+"}", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.AccountAccess(logg))

		r.Route("/receipts", func(r chi.Router) {
			r.Get("/", controllers.ReceiptList(receiptService, logg))
			r.With(
				middleware.BodyLimit(cfg.Upload.MaxRequestBytes()),
				middleware.RateLimit(uploadLimit, rateLimiter, logg),
				middleware.Idempotency(idempotencyStore, logg),
			).Post("/upload", controllers.ReceiptUpload(receiptService, logg))
			r.Get("/{receiptId}", controllers.ReceiptGet(receiptService, logg))
			r.Put("/{receiptId}", controllers.ReceiptUpdate(receiptService, logg))
			r.Delete("/{receiptId}", controllers.ReceiptDelete(receiptService, logg))
		})

		r.Get("/subscription", controllers.SubscriptionStatus(quotaService, logg))
	})

	return r
}
