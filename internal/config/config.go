package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

// ErrInsecureModeInProduction is returned when the authorization bypass is requested in production.
var ErrInsecureModeInProduction = errors.New("SECURITY_INSECURE_MODE cannot be enabled in production")

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Security     SecurityConfig
	Escalation   EscalationConfig
	Outbox       OutboxConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	BaseURL               string
	Timezone              string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	MigrationsDir  string
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
	// Encoding overrides the environment default ("json" in production,
	// "console" elsewhere).
	Encoding string
}

// AuthConfig defines token validation parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
	BcryptCost            int
}

// SecurityConfig carries switches that weaken authorization.
// InsecureMode widens every caller's scope to the whole hierarchy and exists for local development only.
type SecurityConfig struct {
	InsecureMode bool
}

// EscalationConfig tunes the escalation engine.
type EscalationConfig struct {
	MaxHops           int
	SweepSchedule     string
	SweepEnabled      bool
	WebhookSecretHash string
}

// OutboxConfig tunes the notification outbox worker.
type OutboxConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	// ClaimLease of zero lets the worker derive one from its batch size.
	ClaimLease time.Duration
}

// NotificationConfig holds transactional email provider settings.
type NotificationConfig struct {
	APIURL      string
	APIKey      string
	SenderEmail string
	SenderName  string
	TemplateID  int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "coopdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			BaseURL:               strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:5173"), "/"),
			Timezone:              getEnv("APP_TIMEZONE", "UTC"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			MigrationsDir:  getEnv("POSTGRES_MIGRATIONS_DIR", "migrations"),
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Enabled:  getEnvAsBool("REDIS_ENABLED", true),
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level:    getEnv("LOG_LEVEL", "info"),
			Encoding: os.Getenv("LOG_FORMAT"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:            getEnvAsInt("AUTH_BCRYPT_COST", 12),
		},
		Security: SecurityConfig{
			InsecureMode: getEnvAsBool("SECURITY_INSECURE_MODE", false),
		},
		Escalation: EscalationConfig{
			MaxHops:           getEnvAsInt("ESCALATION_MAX_HOPS", 5),
			SweepSchedule:     getEnv("ESCALATION_SWEEP_SCHEDULE", "@hourly"),
			SweepEnabled:      getEnvAsBool("ESCALATION_SWEEP_ENABLED", true),
			WebhookSecretHash: os.Getenv("ESCALATION_WEBHOOK_SECRET_HASH"),
		},
		Outbox: OutboxConfig{
			PollInterval: getEnvAsDuration("OUTBOX_POLL_INTERVAL", 5*time.Second),
			BatchSize:    getEnvAsInt("OUTBOX_BATCH_SIZE", 50),
			MaxAttempts:  getEnvAsInt("OUTBOX_MAX_ATTEMPTS", 5),
			ClaimLease:   getEnvAsDuration("OUTBOX_CLAIM_LEASE", 0),
		},
		Notification: NotificationConfig{
			APIURL:      getEnv("BREVO_API_URL", "https://api.brevo.com/v3/smtp/email"),
			APIKey:      os.Getenv("BREVO_API_KEY"),
			SenderEmail: os.Getenv("BREVO_SENDER_EMAIL"),
			SenderName:  getEnv("BREVO_SENDER_NAME", "Coopdesk Notifications"),
			TemplateID:  getEnvAsInt("BREVO_TEMPLATE_ID", 0),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	if c.Security.InsecureMode && (c.App.IsProduction() || productionBuild) {
		return ErrInsecureModeInProduction
	}
	if c.Escalation.MaxHops < 1 {
		return fmt.Errorf("ESCALATION_MAX_HOPS must be at least 1, got %d", c.Escalation.MaxHops)
	}
	if c.Escalation.SweepEnabled {
		if _, err := cron.ParseStandard(c.Escalation.SweepSchedule); err != nil {
			return fmt.Errorf("invalid ESCALATION_SWEEP_SCHEDULE: %w", err)
		}
	}
	if _, err := time.LoadLocation(c.App.Timezone); err != nil {
		return fmt.Errorf("invalid APP_TIMEZONE: %w", err)
	}
	return nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// IsProduction reports whether the app runs in a production environment.
func (a AppConfig) IsProduction() bool {
	env := strings.ToLower(strings.TrimSpace(a.Env))
	return env == "production" || env == "prod"
}

// Location returns the timezone used for date-boundary calculations.
func (a AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Configured reports whether email delivery credentials are present.
func (n NotificationConfig) Configured() bool {
	return n.APIKey != "" && n.SenderEmail != ""
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}
