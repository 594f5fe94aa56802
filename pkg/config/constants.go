package config

// EnvPrefix is handed to envconfig; every field carries an explicit key so
// the prefix only matters for unnamed fields.
const EnvPrefix = "ASSETDROP"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	OutboxTransportPubSub = "pubsub"
	OutboxTransportKafka  = "kafka"
)

const (
	EnvAppEnv          = "ASSETDROP_APP_ENV"
	EnvPort            = "ASSETDROP_APP_PORT"
	EnvLogLevel        = "ASSETDROP_LOG_LEVEL"
	EnvDBDSN           = "ASSETDROP_DB_DSN"
	EnvDBHost          = "ASSETDROP_DB_HOST"
	EnvDBPort          = "ASSETDROP_DB_PORT"
	EnvDBUser          = "ASSETDROP_DB_USER"
	EnvDBPassword      = "ASSETDROP_DB_PASSWORD"
	EnvDBName          = "ASSETDROP_DB_NAME"
	EnvRedisURL        = "ASSETDROP_REDIS_URL"
	EnvJWTSecret       = "ASSETDROP_JWT_SECRET"
	EnvJWTIssuer       = "ASSETDROP_JWT_ISSUER"
	EnvCartExpiry      = "ASSETDROP_CART_EXPIRY"
	EnvDownloadMax     = "ASSETDROP_DOWNLOAD_MAX_DOWNLOADS"
	EnvDownloadTTL     = "ASSETDROP_DOWNLOAD_TOKEN_TTL"
	EnvStripeAPIKey    = "ASSETDROP_STRIPE_API_KEY"
	EnvStripeSecret    = "ASSETDROP_STRIPE_SECRET"
	EnvKafkaBrokers    = "ASSETDROP_KAFKA_BROKERS"
	EnvOutboxTransport = "ASSETDROP_OUTBOX_TRANSPORT"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
