package config

const (
	EnvPrefix = "EVENTPASS"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv    = "EVENTPASS_APP_ENV"
	EnvPort      = "EVENTPASS_APP_PORT"
	EnvLogLevel  = "EVENTPASS_LOG_LEVEL"
	EnvPublicURL = "EVENTPASS_PUBLIC_URL"

	EnvDBDSN  = "EVENTPASS_DB_DSN"
	EnvDBHost = "EVENTPASS_DB_HOST"
	EnvDBUser = "EVENTPASS_DB_USER"
	EnvDBName = "EVENTPASS_DB_NAME"

	EnvRedisURL = "EVENTPASS_REDIS_URL"

	EnvJWTSecret = "EVENTPASS_JWT_SECRET"
	EnvJWTIssuer = "EVENTPASS_JWT_ISSUER"

	EnvCheckoutDefaultCurrency = "EVENTPASS_CHECKOUT_DEFAULT_CURRENCY"
	EnvCheckoutFeeFlatMinor    = "EVENTPASS_CHECKOUT_FEE_FLAT_MINOR"
	EnvCheckoutFeePercentBps   = "EVENTPASS_CHECKOUT_FEE_PERCENT_BPS"
	EnvCheckoutQuoteTimeout    = "EVENTPASS_CHECKOUT_QUOTE_TIMEOUT"

	EnvShippingProvider  = "EVENTPASS_SHIPPING_PROVIDER"
	EnvShippingFlatTable = "EVENTPASS_SHIPPING_FLAT_TABLE"

	EnvPaystackSecretKey = "EVENTPASS_PAYSTACK_SECRET_KEY"
	EnvPubSubOrdersTopic = "EVENTPASS_PUBSUB_ORDERS_TOPIC"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
