package config

const (
	EnvPrefix = "FUELTAX"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	BlobBackendGCS  = "gcs"
	BlobBackendBolt = "bolt"
)

const (
	EnvAppEnv   = "FUELTAX_APP_ENV"
	EnvPort     = "FUELTAX_APP_PORT"
	EnvLogLevel = "FUELTAX_LOG_LEVEL"

	EnvDBDSN      = "FUELTAX_DB_DSN"
	EnvDBHost     = "FUELTAX_DB_HOST"
	EnvDBPort     = "FUELTAX_DB_PORT"
	EnvDBUser     = "FUELTAX_DB_USER"
	EnvDBPassword = "FUELTAX_DB_PASSWORD"
	EnvDBName     = "FUELTAX_DB_NAME"

	EnvRedisURL = "FUELTAX_REDIS_URL"

	EnvJWTSecret = "FUELTAX_JWT_SECRET"
	EnvJWTIssuer = "FUELTAX_JWT_ISSUER"

	EnvBlobBackend = "FUELTAX_BLOB_BACKEND"
	EnvBoltPath    = "FUELTAX_BOLT_PATH"
	EnvGCSBucket   = "FUELTAX_GCS_BUCKET_NAME"

	EnvStripeWebhookSecret = "FUELTAX_STRIPE_WEBHOOK_SECRET"

	EnvGeminiAPIKey      = "FUELTAX_GEMINI_API_KEY"
	EnvExtractionTimeout = "FUELTAX_EXTRACTION_TIMEOUT"

	EnvTrialReceiptLimit = "FUELTAX_TRIAL_RECEIPT_LIMIT"
	EnvTrialDays         = "FUELTAX_TRIAL_DAYS"
	EnvPlanReceiptLimit  = "FUELTAX_PLAN_RECEIPT_LIMIT"

	EnvHomeState = "FUELTAX_HOME_STATE"
	EnvMaxUpload = "FUELTAX_MAX_UPLOAD_MB"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
