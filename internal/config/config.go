package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewRoutingConfigHolder),
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	BaseURL     string

	OTLPEndpoint string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	RedisURL string

	// AdminAPIKey gates the /admin routes. Empty disables them.
	AdminAPIKey string

	NodeID int64

	Stripe    StripeConfig
	Email     EmailConfig
	Slack     SlackConfig
	Dunning   DunningConfig
	Jobs      JobsConfig
	RateLimit RateLimitConfig
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	ProductName   string
}

type EmailConfig struct {
	// Enabled=false drops dunning mail, for local runs without an SMTP relay.
	Enabled      bool
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	SMTPFrom     string
}

// SlackConfig routes staff alerts to an incoming webhook. Empty URL disables them.
type SlackConfig struct {
	WebhookURL string
	Channel    string
}

type DunningConfig struct {
	MaxAttempts     int
	AutoSuspend     bool
	PauseCollection bool
	// UpdatePaymentPath is appended to BaseURL for the self-service card update link.
	UpdatePaymentPath string
}

type JobsConfig struct {
	Enabled           bool
	RecomputeVATCron  string
	PurgeSettingsCron string
	LockTTL           time.Duration
}

// RateLimitConfig throttles the public registration endpoints per client IP.
// Requires RedisURL; without it requests are not limited.
type RateLimitConfig struct {
	Enabled           bool
	RegistrationRate  float64
	RegistrationBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "gymledger"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		BaseURL:      strings.TrimRight(getenv("APP_BASE_URL", "http://localhost:8080"), "/"),
		OTLPEndpoint: getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "gymledger"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		RedisURL:    strings.TrimSpace(getenv("REDIS_URL", "")),
		AdminAPIKey: strings.TrimSpace(getenv("ADMIN_API_KEY", "")),
		NodeID:      getenvInt64("SNOWFLAKE_NODE", 1),

		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			Currency:      strings.ToLower(getenv("STRIPE_CURRENCY", "gbp")),
			ProductName:   getenv("STRIPE_PRODUCT_NAME", "Gym Membership"),
		},
		Email: EmailConfig{
			Enabled:      getenvBool("EMAIL_ENABLED", true),
			SMTPHost:     getenv("SMTP_HOST", "localhost"),
			SMTPPort:     getenvInt("SMTP_PORT", 1025),
			SMTPUsername: getenv("SMTP_USERNAME", ""),
			SMTPPassword: getenv("SMTP_PASSWORD", ""),
			SMTPFrom:     getenv("SMTP_FROM", "billing@example.com"),
		},
		Slack: SlackConfig{
			WebhookURL: strings.TrimSpace(getenv("SLACK_WEBHOOK_URL", "")),
			Channel:    getenv("SLACK_CHANNEL", "#front-desk"),
		},
		Dunning: DunningConfig{
			MaxAttempts:       getenvInt("DUNNING_MAX_ATTEMPTS", 3),
			AutoSuspend:       getenvBool("DUNNING_AUTO_SUSPEND", true),
			PauseCollection:   getenvBool("DUNNING_PAUSE_COLLECTION", false),
			UpdatePaymentPath: getenv("DUNNING_UPDATE_PAYMENT_PATH", "/account/payment-method"),
		},
		Jobs: JobsConfig{
			Enabled:           getenvBool("JOBS_ENABLED", true),
			RecomputeVATCron:  getenv("JOBS_RECOMPUTE_VAT_CRON", "*/15 * * * *"),
			PurgeSettingsCron: getenv("JOBS_PURGE_SETTINGS_CRON", "5 * * * *"),
			LockTTL:           time.Duration(getenvInt("JOBS_LOCK_TTL_SECONDS", 120)) * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled:           getenvBool("RATE_LIMIT_ENABLED", true),
			RegistrationRate:  getenvFloat("RATE_LIMIT_REGISTRATION_RATE", 0.1),
			RegistrationBurst: getenvInt("RATE_LIMIT_REGISTRATION_BURST", 5),
		},
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// UpdatePaymentURL is the self-service link included in dunning notices.
func (c Config) UpdatePaymentURL() string {
	path := strings.TrimSpace(c.Dunning.UpdatePaymentPath)
	if path == "" {
		return c.BaseURL
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.BaseURL + path
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}
