package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	EnvPrefix = "MODELMARKET"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

type Config struct {
	App           AppConfig
	Service       ServiceConfig
	DB            DBConfig
	Redis         RedisConfig
	JWT           JWTConfig
	Password      PasswordConfig
	Stripe        StripeConfig
	Payments      PaymentsConfig
	Entitlements  EntitlementsConfig
	GCP           GCPConfig
	PubSub        PubSubConfig
	FeatureFlags  FeatureFlagsConfig
	Cron          CronConfig
	AuthRateLimit AuthRateLimitConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MODELMARKET_APP_ENV" required:"true"`
	Port         string `envconfig:"MODELMARKET_APP_PORT" default:"8080"`
	LogLevel     string `envconfig:"MODELMARKET_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MODELMARKET_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type ServiceConfig struct {
	Kind string `envconfig:"MODELMARKET_SERVICE_KIND" default:"api"`
}

type DBConfig struct {
	DSN string `envconfig:"MODELMARKET_DB_DSN" required:"true"`

	MaxOpenConns    int           `envconfig:"MODELMARKET_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MODELMARKET_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MODELMARKET_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MODELMARKET_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MODELMARKET_REDIS_URL"`
	Address      string        `envconfig:"MODELMARKET_REDIS_ADDR"`
	Password     string        `envconfig:"MODELMARKET_REDIS_PASSWORD"`
	DB           int           `envconfig:"MODELMARKET_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MODELMARKET_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MODELMARKET_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MODELMARKET_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MODELMARKET_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MODELMARKET_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type JWTConfig struct {
	Secret            string `envconfig:"MODELMARKET_JWT_SECRET" required:"true"`
	Issuer            string `envconfig:"MODELMARKET_JWT_ISSUER" default:"modelmarket"`
	ExpirationMinutes int    `envconfig:"MODELMARKET_JWT_EXPIRATION_MINUTES" default:"60"`
}

type PasswordConfig struct {
	ArgonMemoryKB    int `envconfig:"MODELMARKET_ARGON_MEMORY_KB" default:"65536"`
	ArgonTime        int `envconfig:"MODELMARKET_ARGON_TIME" default:"3"`
	ArgonParallelism int `envconfig:"MODELMARKET_ARGON_PARALLELISM" default:"2"`
	ArgonSaltLen     int `envconfig:"MODELMARKET_ARGON_SALT_LEN" default:"16"`
	ArgonKeyLen      int `envconfig:"MODELMARKET_ARGON_KEY_LEN" default:"32"`
}

type StripeConfig struct {
	APIKey        string `envconfig:"MODELMARKET_STRIPE_API_KEY"`
	WebhookSecret string `envconfig:"MODELMARKET_STRIPE_WEBHOOK_SECRET"`
	Env           string `envconfig:"MODELMARKET_STRIPE_ENV" default:"test"`
}

// Environment returns the configured Stripe environment name.
func (s StripeConfig) Environment() string {
	return s.Env
}

type PaymentsConfig struct {
	// GatewayTimeout bounds every outbound call to the payment provider.
	GatewayTimeout time.Duration `envconfig:"MODELMARKET_PAYMENTS_GATEWAY_TIMEOUT" default:"10s"`
	// StaleIntentAfter is how long an intent may stay pending before the
	// cron sweep surfaces it to operators. Intents are never auto-expired.
	StaleIntentAfter time.Duration `envconfig:"MODELMARKET_PAYMENTS_STALE_INTENT_AFTER" default:"24h"`
	Currency         string        `envconfig:"MODELMARKET_PAYMENTS_CURRENCY" default:"usd"`
	WebhookEventTTL  time.Duration `envconfig:"MODELMARKET_PAYMENTS_WEBHOOK_EVENT_TTL" default:"168h"`
}

type EntitlementsConfig struct {
	// QuotaWindow is the reset cadence for per-user request counters.
	QuotaWindow time.Duration `envconfig:"MODELMARKET_ENTITLEMENTS_QUOTA_WINDOW" default:"24h"`
}

type GCPConfig struct {
	ProjectID string `envconfig:"MODELMARKET_GCP_PROJECT_ID"`
}

type PubSubConfig struct {
	LifecycleTopic string `envconfig:"MODELMARKET_PUBSUB_LIFECYCLE_TOPIC"`
}

type FeatureFlagsConfig struct {
	AutoMigrate bool `envconfig:"MODELMARKET_FEATURE_AUTO_MIGRATE" default:"false"`
}

type CronConfig struct {
	Interval time.Duration `envconfig:"MODELMARKET_CRON_INTERVAL" default:"1h"`
}

type AuthRateLimitConfig struct {
	LoginWindow        time.Duration `envconfig:"MODELMARKET_AUTH_RL_LOGIN_WINDOW" default:"15m"`
	LoginIPLimit       int           `envconfig:"MODELMARKET_AUTH_RL_LOGIN_IP_LIMIT" default:"20"`
	LoginEmailLimit    int           `envconfig:"MODELMARKET_AUTH_RL_LOGIN_EMAIL_LIMIT" default:"10"`
	RegisterWindow     time.Duration `envconfig:"MODELMARKET_AUTH_RL_REGISTER_WINDOW" default:"1h"`
	RegisterIPLimit    int           `envconfig:"MODELMARKET_AUTH_RL_REGISTER_IP_LIMIT" default:"10"`
	RegisterEmailLimit int           `envconfig:"MODELMARKET_AUTH_RL_REGISTER_EMAIL_LIMIT" default:"5"`
}
