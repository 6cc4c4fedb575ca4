package config

// EnvPrefix is passed to envconfig.Process; individual fields carry fully
// qualified envconfig tags, so the prefix stays empty.
const EnvPrefix = ""

const (
	AppEnvDev  = "development"
	AppEnvProd = "production"
)

// Canonical environment variable names referenced outside struct tags.
const (
	EnvAppEnv   = "MENTORLOOP_APP_ENV"
	EnvPort     = "MENTORLOOP_APP_PORT"
	EnvDBDSN    = "MENTORLOOP_DB_DSN"
	EnvDBHost   = "MENTORLOOP_DB_HOST"
	EnvDBUser   = "MENTORLOOP_DB_USER"
	EnvDBName   = "MENTORLOOP_DB_NAME"
	EnvRedisURL = "MENTORLOOP_REDIS_URL"

	EnvStripeAPIKey        = "MENTORLOOP_STRIPE_API_KEY"
	EnvStripeWebhookSecret = "MENTORLOOP_STRIPE_WEBHOOK_SECRET"

	EnvCheckoutSuccessURL = "MENTORLOOP_CHECKOUT_SUCCESS_URL"
	EnvCheckoutCancelURL  = "MENTORLOOP_CHECKOUT_CANCEL_URL"
	EnvConnectReturnURL   = "MENTORLOOP_CONNECT_RETURN_URL"
	EnvConnectRefreshURL  = "MENTORLOOP_CONNECT_REFRESH_URL"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
