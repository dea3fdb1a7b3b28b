package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App          AppConfig
	Service      ServiceConfig
	DB           DBConfig
	Redis        RedisConfig
	JWT          JWTConfig
	FeatureFlags FeatureFlagsConfig
	Eventing     EventingConfig
	GCP          GCPConfig
	GCS          GCSConfig
	Bolt         BoltConfig
	Upload       UploadConfig
	Gemini       GeminiConfig
	Extraction   ExtractionConfig
	Worker       WorkerConfig
	Quota        QuotaConfig
	Refunds      RefundsConfig
	PubSub       PubSubConfig
	BigQuery     BigQueryConfig
	Stripe       StripeConfig
	Outbox       OutboxConfig
	Cron         CronConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.FeatureFlags.validate(); err != nil {
		return nil, err
	}
	if err := cfg.validateProd(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateProd rejects development-only settings in production.
func (c *Config) validateProd() error {
	if !c.App.IsProd() {
		return nil
	}
	if c.FeatureFlags.UsesBolt() {
		return fmt.Errorf("%s=%s is not allowed in %s", EnvBlobBackend, BlobBackendBolt, AppEnvProd)
	}
	if strings.TrimSpace(c.Stripe.WebhookSecret) == "" {
		return fmt.Errorf("%s is required in %s", EnvStripeWebhookSecret, AppEnvProd)
	}
	return nil
}

type AppConfig struct {
	Env          string `envconfig:"FUELTAX_APP_ENV" required:"true"`
	Port         string `envconfig:"FUELTAX_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"FUELTAX_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"FUELTAX_LOG_WARN_STACK" default:"false"`

	CORSOrigins []string `envconfig:"FUELTAX_CORS_ORIGINS" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"FUELTAX_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"FUELTAX_DB_DSN"`
	Driver string `envconfig:"FUELTAX_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"FUELTAX_DB_HOST"`
	LegacyPort     int    `envconfig:"FUELTAX_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"FUELTAX_DB_USER"`
	LegacyPassword string `envconfig:"FUELTAX_DB_PASSWORD"`
	LegacyName     string `envconfig:"FUELTAX_DB_NAME"`
	LegacySSLMode  string `envconfig:"FUELTAX_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"FUELTAX_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"FUELTAX_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"FUELTAX_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"FUELTAX_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"FUELTAX_REDIS_URL" required:"true"`
	Address      string        `envconfig:"FUELTAX_REDIS_ADDR"`
	Password     string        `envconfig:"FUELTAX_REDIS_PASSWORD"`
	DB           int           `envconfig:"FUELTAX_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"FUELTAX_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"FUELTAX_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"FUELTAX_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"FUELTAX_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"FUELTAX_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig only verifies tokens; issuance belongs to the identity service.
type JWTConfig struct {
	Secret string `envconfig:"FUELTAX_JWT_SECRET" required:"true"`
	Issuer string `envconfig:"FUELTAX_JWT_ISSUER" required:"true"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool   `envconfig:"FUELTAX_AUTO_MIGRATE" default:"false"`
	BlobBackend string `envconfig:"FUELTAX_BLOB_BACKEND" default:"gcs"`
}

func (f FeatureFlagsConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(f.BlobBackend)) {
	case BlobBackendGCS, BlobBackendBolt:
		return nil
	default:
		return fmt.Errorf("%s must be one of %s, %s", EnvBlobBackend, BlobBackendGCS, BlobBackendBolt)
	}
}

// UsesBolt reports whether receipt images are kept in the local bolt store.
func (f FeatureFlagsConfig) UsesBolt() bool {
	return strings.EqualFold(strings.TrimSpace(f.BlobBackend), BlobBackendBolt)
}

type EventingConfig struct {
	OutboxIdempotencyTTL time.Duration `envconfig:"FUELTAX_EVENTING_IDEMPOTENCY_TTL" default:"720h"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"FUELTAX_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"FUELTAX_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"FUELTAX_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"FUELTAX_GCS_BUCKET_NAME"`
}

type BoltConfig struct {
	Path string `envconfig:"FUELTAX_BOLT_PATH" default:"fueltax-blobs.db"`
}

type UploadConfig struct {
	MaxUploadMB int           `envconfig:"FUELTAX_MAX_UPLOAD_MB" default:"15"`
	RateLimit   int           `envconfig:"FUELTAX_UPLOAD_RATE_LIMIT" default:"30"`
	RateWindow  time.Duration `envconfig:"FUELTAX_UPLOAD_RATE_WINDOW" default:"1m"`
}

// multipartOverhead leaves room for boundaries and the vehicleId field.
const multipartOverhead = 1 << 20

// MaxRequestBytes bounds a whole multipart upload request.
func (u UploadConfig) MaxRequestBytes() int64 {
	return u.MaxBytes() + multipartOverhead
}

// MaxBytes returns the upload limit in bytes.
func (u UploadConfig) MaxBytes() int64 {
	if u.MaxUploadMB <= 0 {
		return 15 << 20
	}
	return int64(u.MaxUploadMB) << 20
}

type GeminiConfig struct {
	APIKey string `envconfig:"FUELTAX_GEMINI_API_KEY"`
	Model  string `envconfig:"FUELTAX_GEMINI_MODEL" default:"gemini-1.5-flash"`
}

type ExtractionConfig struct {
	Timeout time.Duration `envconfig:"FUELTAX_EXTRACTION_TIMEOUT" default:"60s"`
}

type WorkerConfig struct {
	BatchSize      int           `envconfig:"FUELTAX_WORKER_BATCH_SIZE" default:"5"`
	PollIntervalMS int           `envconfig:"FUELTAX_WORKER_POLL_MS" default:"1000"`
	LeaseTimeout   time.Duration `envconfig:"FUELTAX_JOB_LEASE" default:"5m"`
	MaxAttempts    int           `envconfig:"FUELTAX_JOB_MAX_ATTEMPTS" default:"5"`
	MetricsAddr    string        `envconfig:"FUELTAX_WORKER_METRICS_ADDR" default:":9090"`
}

type QuotaConfig struct {
	TrialReceiptLimit int `envconfig:"FUELTAX_TRIAL_RECEIPT_LIMIT" default:"5"`
	TrialDays         int `envconfig:"FUELTAX_TRIAL_DAYS" default:"14"`
	PlanReceiptLimit  int `envconfig:"FUELTAX_PLAN_RECEIPT_LIMIT" default:"100"`
}

type RefundsConfig struct {
	HomeState       string `envconfig:"FUELTAX_HOME_STATE" default:"MO"`
	DefaultFuelType string `envconfig:"FUELTAX_DEFAULT_FUEL_TYPE" default:"gasoline"`
	RoundingMode    string `envconfig:"FUELTAX_REFUND_ROUNDING" default:"round_once"`
}

type PubSubConfig struct {
	ReceiptEventsTopic    string `envconfig:"FUELTAX_PUBSUB_RECEIPT_EVENTS_TOPIC" default:"ft-receipt-events"`
	AnalyticsSubscription string `envconfig:"FUELTAX_PUBSUB_ANALYTICS_SUBSCRIPTION" default:"ft-receipt-events-analytics"`
}

type BigQueryConfig struct {
	Dataset            string `envconfig:"FUELTAX_BIGQUERY_DATASET" default:"fueltax"`
	ReceiptEventsTable string `envconfig:"FUELTAX_BIGQUERY_RECEIPT_EVENTS_TABLE" default:"receipt_events"`
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"FUELTAX_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"FUELTAX_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"FUELTAX_OUTBOX_MAX_ATTEMPTS" default:"10"`
	MetricsAddr    string `envconfig:"FUELTAX_OUTBOX_METRICS_ADDR" default:":9092"`
}

type CronConfig struct {
	Interval            time.Duration `envconfig:"FUELTAX_CRON_INTERVAL" default:"1m"`
	RecoveryEvery       time.Duration `envconfig:"FUELTAX_CRON_RECOVERY_EVERY" default:"1m"`
	TrialExpiryEvery    time.Duration `envconfig:"FUELTAX_CRON_TRIAL_EXPIRY_EVERY" default:"1h"`
	OutboxRetentionDays int           `envconfig:"FUELTAX_OUTBOX_RETENTION_DAYS" default:"30"`
	BatchLimit          int           `envconfig:"FUELTAX_CRON_BATCH_LIMIT" default:"500"`
	MetricsAddr         string        `envconfig:"FUELTAX_CRON_METRICS_ADDR" default:":9091"`
}

type StripeConfig struct {
	WebhookSecret    string        `envconfig:"FUELTAX_STRIPE_WEBHOOK_SECRET"`
	WebhookTolerance time.Duration `envconfig:"FUELTAX_STRIPE_WEBHOOK_TOLERANCE" default:"5m"`
}

func (db *DBConfig) ensureDSN() error {
	if db.DSN != "" {
		return nil
	}

	missing := []string{}
	legacyValues := map[string]string{
		EnvDBHost: db.LegacyHost,
		EnvDBUser: db.LegacyUser,
		EnvDBName: db.LegacyName,
	}
	for _, env := range legacyDBEnvVars {
		if legacyValues[env] == "" {
			missing = append(missing, env)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("either %s or %s are required", EnvDBDSN, strings.Join(missing, ", "))
	}

	userInfo := url.User(db.LegacyUser)
	if db.LegacyPassword != "" {
		userInfo = url.UserPassword(db.LegacyUser, db.LegacyPassword)
	}

	u := &url.URL{
		Scheme: "postgres",
		User:   userInfo,
		Host:   fmt.Sprintf("%s:%d", db.LegacyHost, db.LegacyPort),
		Path:   db.LegacyName,
	}

	if db.LegacySSLMode != "" {
		q := u.Query()
		q.Set("sslmode", db.LegacySSLMode)
		u.RawQuery = q.Encode()
	}

	db.DSN = u.String()
	return nil
}
