package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service. It is loaded once
// per process and passed down; nothing re-reads the environment mid-flight.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Contest      ContestConfig
	Collaborator CollaboratorConfig
	Notification NotificationConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN switches the
// service to in-memory repositories.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// ContestConfig tunes the lifecycle engine and its workers.
type ContestConfig struct {
	// Paused is the operator kill switch: sweeps and mail dispatch are
	// skipped while set, inbound evidence is still recorded.
	Paused              bool
	SweepIntervalMin    int
	PlateSpacingSeconds int
	DeadlineCheckMin    int
	ApprovalTokenTTLHrs int
	ApprovalTokenSecret string
	LookbackDays        int
}

// CollaboratorConfig holds credentials and endpoints for external services.
type CollaboratorConfig struct {
	ViolationSourceURL string
	ViolationSourceKey string
	TextGenURL         string
	TextGenKey         string
	TextGenModel       string
	MailDispatchURL    string
	MailDispatchKey    string
	BlobStoreURL       string
	BlobStoreKey       string
	TimeoutSeconds     int
	WebhookSigningKey  string
}

// NotificationConfig holds outbound notification settings.
type NotificationConfig struct {
	EmailFrom  string
	SMSFrom    string
	WebhookURL string
}

// Load reads configuration from environment variables, applying defaults
// where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "contest-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Contest: ContestConfig{
			Paused:              getEnvAsBool("CONTEST_PAUSED", false),
			SweepIntervalMin:    getEnvAsInt("CONTEST_SWEEP_INTERVAL_MINUTES", 360),
			PlateSpacingSeconds: getEnvAsInt("CONTEST_PLATE_SPACING_SECONDS", 2),
			DeadlineCheckMin:    getEnvAsInt("CONTEST_DEADLINE_CHECK_MINUTES", 60),
			ApprovalTokenTTLHrs: getEnvAsInt("CONTEST_APPROVAL_TOKEN_TTL_HOURS", 96),
			ApprovalTokenSecret: getEnv("CONTEST_APPROVAL_TOKEN_SECRET", "dev-approval-secret"),
			LookbackDays:        getEnvAsInt("CONTEST_LOOKBACK_DAYS", 90),
		},
		Collaborator: CollaboratorConfig{
			ViolationSourceURL: getEnv("VIOLATION_SOURCE_URL", ""),
			ViolationSourceKey: os.Getenv("VIOLATION_SOURCE_API_KEY"),
			TextGenURL:         getEnv("TEXTGEN_URL", ""),
			TextGenKey:         os.Getenv("TEXTGEN_API_KEY"),
			TextGenModel:       getEnv("TEXTGEN_MODEL", "letter-writer-1"),
			MailDispatchURL:    getEnv("MAIL_DISPATCH_URL", ""),
			MailDispatchKey:    os.Getenv("MAIL_DISPATCH_API_KEY"),
			BlobStoreURL:       getEnv("BLOB_STORE_URL", ""),
			BlobStoreKey:       os.Getenv("BLOB_STORE_API_KEY"),
			TimeoutSeconds:     getEnvAsInt("COLLABORATOR_TIMEOUT_SECONDS", 30),
			WebhookSigningKey:  os.Getenv("EVIDENCE_WEBHOOK_SIGNING_KEY"),
		},
		Notification: NotificationConfig{
			EmailFrom:  getEnv("NOTIFY_EMAIL_FROM", "contest@example.com"),
			SMSFrom:    getEnv("NOTIFY_SMS_FROM", ""),
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// Timeout returns the collaborator call budget.
func (c CollaboratorConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// PlateSpacing returns the minimum delay between outbound violation-source
// calls during a sweep.
func (c ContestConfig) PlateSpacing() time.Duration {
	if c.PlateSpacingSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PlateSpacingSeconds) * time.Second
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
