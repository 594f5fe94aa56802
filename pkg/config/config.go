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
	Cart         CartConfig
	Checkout     CheckoutConfig
	Downloads    DownloadsConfig
	Orders       OrdersConfig
	Webhook      WebhookConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	GCS          GCSConfig
	PubSub       PubSubConfig
	Kafka        KafkaConfig
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
	if err := cfg.Outbox.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"ASSETDROP_APP_ENV" required:"true"`
	Port         string `envconfig:"ASSETDROP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"ASSETDROP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"ASSETDROP_LOG_WARN_STACK" default:"false"`
	// CORSOrigins is a comma separated allow list; empty allows any origin.
	CORSOrigins string `envconfig:"ASSETDROP_CORS_ORIGINS"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd) || strings.EqualFold(a.Env, "production")
}

// AllowedOrigins splits CORSOrigins into a trimmed list.
func (a AppConfig) AllowedOrigins() []string {
	if strings.TrimSpace(a.CORSOrigins) == "" {
		return nil
	}
	parts := strings.Split(a.CORSOrigins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type ServiceConfig struct {
	Kind string `envconfig:"ASSETDROP_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"ASSETDROP_DB_DSN"`
	Driver string `envconfig:"ASSETDROP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"ASSETDROP_DB_HOST"`
	LegacyPort     int    `envconfig:"ASSETDROP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"ASSETDROP_DB_USER"`
	LegacyPassword string `envconfig:"ASSETDROP_DB_PASSWORD"`
	LegacyName     string `envconfig:"ASSETDROP_DB_NAME"`
	LegacySSLMode  string `envconfig:"ASSETDROP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"ASSETDROP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"ASSETDROP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"ASSETDROP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"ASSETDROP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
	SlowQuery       time.Duration `envconfig:"ASSETDROP_DB_SLOW_QUERY" default:"500ms"`
}

type RedisConfig struct {
	URL          string        `envconfig:"ASSETDROP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"ASSETDROP_REDIS_ADDR"`
	Password     string        `envconfig:"ASSETDROP_REDIS_PASSWORD"`
	DB           int           `envconfig:"ASSETDROP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"ASSETDROP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"ASSETDROP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"ASSETDROP_REDIS_DIAL_TIMEOUT" default:"2s"`
	ReadTimeout  time.Duration `envconfig:"ASSETDROP_REDIS_READ_TIMEOUT" default:"500ms"`
	WriteTimeout time.Duration `envconfig:"ASSETDROP_REDIS_WRITE_TIMEOUT" default:"500ms"`
}

type JWTConfig struct {
	Secret            string `envconfig:"ASSETDROP_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"ASSETDROP_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"ASSETDROP_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"ASSETDROP_AUTO_MIGRATE" default:"false"`
}

type CartConfig struct {
	IdentityCacheTTL time.Duration `envconfig:"ASSETDROP_CART_IDENTITY_CACHE_TTL" default:"5m"`
	ViewCacheTTL     time.Duration `envconfig:"ASSETDROP_CART_VIEW_CACHE_TTL" default:"2m"`
	Expiry           time.Duration `envconfig:"ASSETDROP_CART_EXPIRY" default:"168h"`
	DefaultCurrency  string        `envconfig:"ASSETDROP_CART_DEFAULT_CURRENCY" default:"USD"`
}

type CheckoutConfig struct {
	SuccessURL string `envconfig:"ASSETDROP_CHECKOUT_SUCCESS_URL"`
	CancelURL  string `envconfig:"ASSETDROP_CHECKOUT_CANCEL_URL"`
}

type DownloadsConfig struct {
	TokenTTL     time.Duration `envconfig:"ASSETDROP_DOWNLOAD_TOKEN_TTL" default:"720h"`
	MaxDownloads int           `envconfig:"ASSETDROP_DOWNLOAD_MAX_DOWNLOADS" default:"5"`
	URLExpiry    time.Duration `envconfig:"ASSETDROP_DOWNLOAD_URL_EXPIRY" default:"15m"`
	// StaticBaseURL serves files without signing when no bucket is configured.
	StaticBaseURL string `envconfig:"ASSETDROP_DOWNLOAD_STATIC_BASE_URL"`
}

type OrdersConfig struct {
	ListCacheTTL time.Duration `envconfig:"ASSETDROP_ORDERS_LIST_CACHE_TTL" default:"1m"`
}

type WebhookConfig struct {
	EventGuardTTL time.Duration `envconfig:"ASSETDROP_WEBHOOK_EVENT_GUARD_TTL" default:"720h"`
}

type StripeConfig struct {
	APIKey         string        `envconfig:"ASSETDROP_STRIPE_API_KEY"`
	Secret         string        `envconfig:"ASSETDROP_STRIPE_SECRET"`
	Env            string        `envconfig:"ASSETDROP_STRIPE_ENV" default:"test"`
	RequestTimeout time.Duration `envconfig:"ASSETDROP_STRIPE_REQUEST_TIMEOUT" default:"10s"`
	// BreakerFailures is the consecutive failure count that opens the breaker.
	BreakerFailures uint32        `envconfig:"ASSETDROP_STRIPE_BREAKER_FAILURES" default:"5"`
	BreakerCooldown time.Duration `envconfig:"ASSETDROP_STRIPE_BREAKER_COOLDOWN" default:"30s"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type GCPConfig struct {
	ProjectID              string `envconfig:"ASSETDROP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"ASSETDROP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"ASSETDROP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type GCSConfig struct {
	BucketName string `envconfig:"ASSETDROP_GCS_BUCKET_NAME"`
}

type PubSubConfig struct {
	OrdersTopic       string `envconfig:"ASSETDROP_PUBSUB_ORDERS_TOPIC" default:"ad-order-events"`
	NotificationTopic string `envconfig:"ASSETDROP_PUBSUB_NOTIFICATION_TOPIC" default:"ad-notification-events"`
}

type KafkaConfig struct {
	Brokers      string        `envconfig:"ASSETDROP_KAFKA_BROKERS"`
	WriteTimeout time.Duration `envconfig:"ASSETDROP_KAFKA_WRITE_TIMEOUT" default:"10s"`
}

// BrokerList splits the comma separated broker addresses.
func (k KafkaConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(k.Brokers, ",") {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type OutboxConfig struct {
	BatchSize      int    `envconfig:"ASSETDROP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int    `envconfig:"ASSETDROP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int    `envconfig:"ASSETDROP_OUTBOX_MAX_ATTEMPTS" default:"10"`
	Transport      string `envconfig:"ASSETDROP_OUTBOX_TRANSPORT" default:"pubsub"`
	RetentionDays  int    `envconfig:"ASSETDROP_OUTBOX_RETENTION_DAYS" default:"30"`
}

func (o OutboxConfig) validate() error {
	switch strings.ToLower(o.Transport) {
	case OutboxTransportPubSub, OutboxTransportKafka:
		return nil
	default:
		return fmt.Errorf("%s must be %q or %q", EnvOutboxTransport, OutboxTransportPubSub, OutboxTransportKafka)
	}
}

type CronConfig struct {
	Interval          time.Duration `envconfig:"ASSETDROP_CRON_INTERVAL" default:"15m"`
	AbandonBatchSize  int           `envconfig:"ASSETDROP_CRON_ABANDON_BATCH_SIZE" default:"500"`
	AbandonMaxBatches int           `envconfig:"ASSETDROP_CRON_ABANDON_MAX_BATCHES" default:"20"`
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
