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
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Shipping     ShippingConfig
	Paystack     PaystackConfig
	Stripe       StripeConfig
	GCP          GCPConfig
	PubSub       PubSubConfig
	Outbox       OutboxConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.DB.ensureDSN(); err != nil {
		return nil, err
	}
	if err := cfg.Checkout.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"EVENTPASS_APP_ENV" required:"true"`
	Port         string `envconfig:"EVENTPASS_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"EVENTPASS_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"EVENTPASS_LOG_WARN_STACK" default:"false"`
	PublicURL    string `envconfig:"EVENTPASS_PUBLIC_URL" default:"http://localhost:3000"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"EVENTPASS_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN    string `envconfig:"EVENTPASS_DB_DSN"`
	Driver string `envconfig:"EVENTPASS_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"EVENTPASS_DB_HOST"`
	LegacyPort     int    `envconfig:"EVENTPASS_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"EVENTPASS_DB_USER"`
	LegacyPassword string `envconfig:"EVENTPASS_DB_PASSWORD"`
	LegacyName     string `envconfig:"EVENTPASS_DB_NAME"`
	LegacySSLMode  string `envconfig:"EVENTPASS_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"EVENTPASS_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"EVENTPASS_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"EVENTPASS_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"EVENTPASS_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"EVENTPASS_REDIS_URL" required:"true"`
	Address      string        `envconfig:"EVENTPASS_REDIS_ADDR"`
	Password     string        `envconfig:"EVENTPASS_REDIS_PASSWORD"`
	DB           int           `envconfig:"EVENTPASS_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"EVENTPASS_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"EVENTPASS_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"EVENTPASS_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"EVENTPASS_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"EVENTPASS_REDIS_WRITE_TIMEOUT" default:"5s"`
}

// JWTConfig verifies buyer tokens minted by the accounts service.
type JWTConfig struct {
	Secret            string `envconfig:"EVENTPASS_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"EVENTPASS_JWT_ISSUER" required:"true"`
	ExpirationMinutes int    `envconfig:"EVENTPASS_JWT_EXPIRATION_MINUTES" default:"60"`
}

type FeatureFlagsConfig struct {
	AutoMigrate     bool `envconfig:"EVENTPASS_AUTO_MIGRATE" default:"false"`
	WebhookFinalize bool `envconfig:"EVENTPASS_FEATURE_WEBHOOK_FINALIZE" default:"true"`
}

// CheckoutConfig holds the pricing rules and timing knobs of the checkout pipeline.
type CheckoutConfig struct {
	DefaultCurrency string        `envconfig:"EVENTPASS_CHECKOUT_DEFAULT_CURRENCY" default:"NGN"`
	FeeFlatMinor    int64         `envconfig:"EVENTPASS_CHECKOUT_FEE_FLAT_MINOR" default:"10000"`
	FeePercentBps   int64         `envconfig:"EVENTPASS_CHECKOUT_FEE_PERCENT_BPS" default:"150"`
	QuoteTimeout    time.Duration `envconfig:"EVENTPASS_CHECKOUT_QUOTE_TIMEOUT" default:"5s"`
	SessionTTL      time.Duration `envconfig:"EVENTPASS_CHECKOUT_SESSION_TTL" default:"24h"`
	FinalizeLockTTL time.Duration `envconfig:"EVENTPASS_CHECKOUT_FINALIZE_LOCK_TTL" default:"2m"`
	IdempotencyTTL  time.Duration `envconfig:"EVENTPASS_CHECKOUT_IDEMPOTENCY_TTL" default:"168h"`
	WebhookGuardTTL time.Duration `envconfig:"EVENTPASS_CHECKOUT_WEBHOOK_GUARD_TTL" default:"720h"`
	DefaultProvider string        `envconfig:"EVENTPASS_CHECKOUT_DEFAULT_PROVIDER" default:"paystack"`
	SupportEmail    string        `envconfig:"EVENTPASS_CHECKOUT_SUPPORT_EMAIL" default:"support@eventpass.ng"`
	EventCacheTTL   time.Duration `envconfig:"EVENTPASS_CHECKOUT_EVENT_CACHE_TTL" default:"5m"`
	MaxLinesPerCart int           `envconfig:"EVENTPASS_CHECKOUT_MAX_LINES" default:"50"`
}

func (c CheckoutConfig) validate() error {
	if strings.TrimSpace(c.DefaultCurrency) == "" {
		return fmt.Errorf("%s is required", EnvCheckoutDefaultCurrency)
	}
	if c.FeeFlatMinor < 0 || c.FeePercentBps < 0 {
		return fmt.Errorf("checkout fee policy must be non-negative")
	}
	return nil
}

// RateLimitConfig throttles the public checkout surface per client IP and per
// contact email.
type RateLimitConfig struct {
	Window     time.Duration `envconfig:"EVENTPASS_RATE_LIMIT_WINDOW" default:"1m"`
	IPLimit    int           `envconfig:"EVENTPASS_RATE_LIMIT_IP" default:"120"`
	EmailLimit int           `envconfig:"EVENTPASS_RATE_LIMIT_EMAIL" default:"30"`
	PayIPLimit int           `envconfig:"EVENTPASS_RATE_LIMIT_PAY_IP" default:"20"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"EVENTPASS_CORS_ALLOWED_ORIGINS" default:"http://localhost:3000"`
}

// ShippingConfig selects the shipping quote provider.
type ShippingConfig struct {
	Provider string `envconfig:"EVENTPASS_SHIPPING_PROVIDER" default:"table"`
	RatesURL string `envconfig:"EVENTPASS_SHIPPING_RATES_URL"`
	APIKey   string `envconfig:"EVENTPASS_SHIPPING_API_KEY"`

	// FlatTable is "STATE:feeMinor" pairs, "*" as the fallback state.
	FlatTable map[string]int64 `envconfig:"EVENTPASS_SHIPPING_FLAT_TABLE" default:"*:150000"`
}

type PaystackConfig struct {
	SecretKey   string `envconfig:"EVENTPASS_PAYSTACK_SECRET_KEY"`
	BaseURL     string `envconfig:"EVENTPASS_PAYSTACK_BASE_URL" default:"https://api.paystack.co"`
	CallbackURL string `envconfig:"EVENTPASS_PAYSTACK_CALLBACK_URL"`
}

type StripeConfig struct {
	APIKey string `envconfig:"EVENTPASS_STRIPE_API_KEY"`
	Secret string `envconfig:"EVENTPASS_STRIPE_SECRET"`
	Env    string `envconfig:"EVENTPASS_STRIPE_ENV" default:"test"`
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
	ProjectID string `envconfig:"EVENTPASS_GCP_PROJECT_ID"`
}

// PubSubConfig names the topics the outbox publisher writes to. OpsTopic
// falls back to OrdersTopic when empty.
type PubSubConfig struct {
	OrdersTopic string `envconfig:"EVENTPASS_PUBSUB_ORDERS_TOPIC" default:"eventpass-orders"`
	OpsTopic    string `envconfig:"EVENTPASS_PUBSUB_OPS_TOPIC"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"EVENTPASS_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"EVENTPASS_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"EVENTPASS_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
