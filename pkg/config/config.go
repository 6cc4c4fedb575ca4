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
	DB           DBConfig
	Redis        RedisConfig
	Stripe       StripeConfig
	Platform     PlatformConfig
	FeatureFlags FeatureFlagsConfig
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
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"MENTORLOOP_APP_ENV" required:"true"`
	Port         string `envconfig:"MENTORLOOP_APP_PORT" required:"true"`
	LogLevel     string `envconfig:"MENTORLOOP_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"MENTORLOOP_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"MENTORLOOP_DB_DSN"`
	Driver string `envconfig:"MENTORLOOP_DB_DRIVER" default:"postgres"`

	LegacyHost     string `envconfig:"MENTORLOOP_DB_HOST"`
	LegacyPort     int    `envconfig:"MENTORLOOP_DB_PORT" default:"5432"`
	LegacyUser     string `envconfig:"MENTORLOOP_DB_USER"`
	LegacyPassword string `envconfig:"MENTORLOOP_DB_PASSWORD"`
	LegacyName     string `envconfig:"MENTORLOOP_DB_NAME"`
	LegacySSLMode  string `envconfig:"MENTORLOOP_DB_SSLMODE" default:"disable"`

	MaxOpenConns    int           `envconfig:"MENTORLOOP_DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleConns    int           `envconfig:"MENTORLOOP_DB_MAX_IDLE_CONNS" default:"10"`
	ConnMaxLifetime time.Duration `envconfig:"MENTORLOOP_DB_CONN_MAX_LIFETIME" default:"1h"`
	ConnMaxIdleTime time.Duration `envconfig:"MENTORLOOP_DB_CONN_MAX_IDLE_TIME" default:"10m"`
}

type RedisConfig struct {
	URL          string        `envconfig:"MENTORLOOP_REDIS_URL" required:"true"`
	Address      string        `envconfig:"MENTORLOOP_REDIS_ADDR"`
	Password     string        `envconfig:"MENTORLOOP_REDIS_PASSWORD"`
	DB           int           `envconfig:"MENTORLOOP_REDIS_DB" default:"0"`
	PoolSize     int           `envconfig:"MENTORLOOP_REDIS_POOL_SIZE" default:"10"`
	MinIdleConns int           `envconfig:"MENTORLOOP_REDIS_MIN_IDLE_CONNS" default:"2"`
	DialTimeout  time.Duration `envconfig:"MENTORLOOP_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"MENTORLOOP_REDIS_READ_TIMEOUT" default:"5s"`
	WriteTimeout time.Duration `envconfig:"MENTORLOOP_REDIS_WRITE_TIMEOUT" default:"5s"`
}

type StripeConfig struct {
	APIKey string `envconfig:"MENTORLOOP_STRIPE_API_KEY"`
	Secret string `envconfig:"MENTORLOOP_STRIPE_WEBHOOK_SECRET"`
	Env    string `envconfig:"MENTORLOOP_STRIPE_ENV" default:"test"`

	WebhookIdempotencyTTL time.Duration `envconfig:"MENTORLOOP_STRIPE_WEBHOOK_IDEMPOTENCY_TTL" default:"72h"`
}

// Environment returns the normalized Stripe environment (test/live).
func (s StripeConfig) Environment() string {
	env := strings.TrimSpace(strings.ToLower(s.Env))
	if env == "" {
		return "test"
	}
	return env
}

type PlatformConfig struct {
	FeePercent         int    `envconfig:"MENTORLOOP_PLATFORM_FEE_PERCENT" default:"10"`
	CheckoutSuccessURL string `envconfig:"MENTORLOOP_CHECKOUT_SUCCESS_URL" required:"true"`
	CheckoutCancelURL  string `envconfig:"MENTORLOOP_CHECKOUT_CANCEL_URL" required:"true"`
	ConnectReturnURL   string `envconfig:"MENTORLOOP_CONNECT_RETURN_URL" required:"true"`
	ConnectRefreshURL  string `envconfig:"MENTORLOOP_CONNECT_REFRESH_URL" required:"true"`
	Currency           string `envconfig:"MENTORLOOP_CURRENCY" default:"usd"`
}

type FeatureFlagsConfig struct {
	UseSQLite   bool `envconfig:"MENTORLOOP_USE_SQLITE" default:"false"`
	AutoMigrate bool `envconfig:"MENTORLOOP_AUTO_MIGRATE" default:"false"`
}

type GCPConfig struct {
	ProjectID              string `envconfig:"MENTORLOOP_GCP_PROJECT_ID"`
	CredentialsJSON        string `envconfig:"MENTORLOOP_GCP_CREDENTIALS_JSON"`
	ApplicationCredentials string `envconfig:"MENTORLOOP_GOOGLE_APPLICATION_CREDENTIALS"`
}

type PubSubConfig struct {
	BillingTopic        string `envconfig:"MENTORLOOP_PUBSUB_BILLING_TOPIC" default:"ml-billing-events"`
	BillingSubscription string `envconfig:"MENTORLOOP_PUBSUB_BILLING_SUBSCRIPTION"`
}

type OutboxConfig struct {
	BatchSize      int `envconfig:"MENTORLOOP_OUTBOX_PUBLISH_BATCH_SIZE" default:"50"`
	PollIntervalMS int `envconfig:"MENTORLOOP_OUTBOX_PUBLISH_POLL_MS" default:"500"`
	MaxAttempts    int `envconfig:"MENTORLOOP_OUTBOX_MAX_ATTEMPTS" default:"10"`
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
