// Package config provides application configuration through environment
// variables, following the same load-then-validate shape across all three
// binaries: every variable has a typed default, and each binary validates
// only the subset it actually needs before starting.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	env "github.com/allisson/go-env"
	"github.com/joho/godotenv"

	"github.com/allisson/leadsequencer/internal/apperrors"
)

// Config holds all application configuration. Not every binary uses every
// field; each binary calls the Validate* method matching its role.
type Config struct {
	// Core
	DatabaseURL string
	RabbitMQURL string
	NodeEnv     string
	LogLevel    string
	RedisURL    string

	EnableMetrics bool
	EnableDebug   bool

	// Provider / AI collaborators
	GeminiAPIKey       string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	SESFromEmail       string
	MainAppBaseURL     string

	// Database pool
	DBMaxOpenConnections int
	DBMaxIdleConnections int
	DBConnMaxLifetime    time.Duration
	DBConnectTimeout     time.Duration

	// Metrics HTTP surface
	ServerHost  string
	MetricsPort int

	// Scheduler tuning
	SchedulerTickActive time.Duration
	SchedulerTickIdle   time.Duration
	SchedulerBatchSize  int
	OutboxMaxRetries    int

	// Pump tuning
	PumpPollActive time.Duration
	PumpPollIdle   time.Duration
	PumpClaimSize  int

	// Worker tuning
	WorkerMaxRetries    int
	WorkerPrefetchCount int

	// Worker outbound rate limits (0 means unbounded)
	ProviderRateLimitPerSec float64
	ProviderRateLimitBurst  int
	AIOpenerRateLimitPerSec float64
	AIOpenerRateLimitBurst  int

	// Shared shutdown / call-timeout knobs
	ShutdownGracePeriod time.Duration
	DBDrainTimeout      time.Duration
	ExternalCallTimeout time.Duration
}

// Load loads configuration from environment variables and an optional .env
// file, applying typed defaults for every field. It never validates — call
// one of the Validate* methods for the binary being started.
func Load() *Config {
	loadDotEnv()

	return &Config{
		DatabaseURL: env.GetString("DATABASE_URL", ""),
		RabbitMQURL: env.GetString("RABBIT_MQ_URL", ""),
		NodeEnv:     env.GetString("NODE_ENV", "development"),
		LogLevel:    env.GetString("LOG_LEVEL", "info"),
		RedisURL:    env.GetString("REDIS_URL", ""),

		EnableMetrics: env.GetBool("ENABLE_METRICS", false),
		EnableDebug:   env.GetBool("ENABLE_DEBUG", false),

		GeminiAPIKey:       env.GetString("GEMINI_API_KEY", ""),
		AWSRegion:          env.GetString("AWS_REGION", ""),
		AWSAccessKeyID:     env.GetString("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: env.GetString("AWS_SECRET_ACCESS_KEY", ""),
		SESFromEmail:       env.GetString("SES_FROM_EMAIL", ""),
		MainAppBaseURL:     env.GetString("MAIN_APP_BASE_URL", ""),

		DBMaxOpenConnections: env.GetInt("DB_MAX_OPEN_CONNECTIONS", 20),
		DBMaxIdleConnections: env.GetInt("DB_MAX_IDLE_CONNECTIONS", 5),
		DBConnMaxLifetime:    env.GetDuration("DB_CONN_MAX_LIFETIME_SECONDS", 300, time.Second),
		DBConnectTimeout:     env.GetDuration("DB_CONNECT_TIMEOUT_SECONDS", 10, time.Second),

		ServerHost:  env.GetString("SERVER_HOST", "0.0.0.0"),
		MetricsPort: env.GetInt("METRICS_PORT", 8081),

		SchedulerTickActive: env.GetDuration("SCHEDULER_TICK_ACTIVE_SECONDS", 3, time.Second),
		SchedulerTickIdle:   env.GetDuration("SCHEDULER_TICK_IDLE_SECONDS", 10, time.Second),
		SchedulerBatchSize:  env.GetInt("SCHEDULER_BATCH_SIZE", 50),
		OutboxMaxRetries:    env.GetInt("OUTBOX_MAX_RETRIES", 5),

		PumpPollActive: env.GetDuration("PUMP_POLL_ACTIVE_SECONDS", 1, time.Second),
		PumpPollIdle:   env.GetDuration("PUMP_POLL_IDLE_SECONDS", 10, time.Second),
		PumpClaimSize:  env.GetInt("PUMP_CLAIM_SIZE", 10),

		WorkerMaxRetries:    env.GetInt("WORKER_MAX_RETRIES", 3),
		WorkerPrefetchCount: env.GetInt("WORKER_PREFETCH_COUNT", 1),

		ProviderRateLimitPerSec: env.GetFloat64("PROVIDER_RATE_LIMIT_PER_SEC", 5.0),
		ProviderRateLimitBurst:  env.GetInt("PROVIDER_RATE_LIMIT_BURST", 5),
		AIOpenerRateLimitPerSec: env.GetFloat64("AI_OPENER_RATE_LIMIT_PER_SEC", 2.0),
		AIOpenerRateLimitBurst:  env.GetInt("AI_OPENER_RATE_LIMIT_BURST", 2),

		ShutdownGracePeriod: env.GetDuration("SHUTDOWN_GRACE_PERIOD_SECONDS", 5, time.Second),
		DBDrainTimeout:      env.GetDuration("DB_DRAIN_TIMEOUT_SECONDS", 5, time.Second),
		ExternalCallTimeout: env.GetDuration("EXTERNAL_CALL_TIMEOUT_SECONDS", 10, time.Second),
	}
}

// ValidateForScheduler checks the subset of configuration the scheduler
// binary needs. The scheduler never touches the broker, so RABBIT_MQ_URL is
// not required here.
func (c *Config) ValidateForScheduler() error {
	if c.DatabaseURL == "" {
		return missing("DATABASE_URL")
	}
	return c.validateCommon()
}

// ValidateForPump checks the subset of configuration the pump binary needs.
func (c *Config) ValidateForPump() error {
	if c.DatabaseURL == "" {
		return missing("DATABASE_URL")
	}
	if c.RabbitMQURL == "" {
		return missing("RABBIT_MQ_URL")
	}
	return c.validateCommon()
}

// ValidateForWorker checks the subset of configuration the worker binary
// needs, including the provider and AI opener collaborators it dials out to.
func (c *Config) ValidateForWorker() error {
	if c.DatabaseURL == "" {
		return missing("DATABASE_URL")
	}
	if c.RabbitMQURL == "" {
		return missing("RABBIT_MQ_URL")
	}
	if c.NodeEnv != "test" && c.GeminiAPIKey == "" {
		return missing("GEMINI_API_KEY")
	}
	if c.NodeEnv == "production" {
		if c.AWSRegion == "" {
			return missing("AWS_REGION")
		}
		if c.AWSAccessKeyID == "" {
			return missing("AWS_ACCESS_KEY_ID")
		}
		if c.AWSSecretAccessKey == "" {
			return missing("AWS_SECRET_ACCESS_KEY")
		}
		if c.SESFromEmail == "" {
			return missing("SES_FROM_EMAIL")
		}
	}
	return c.validateCommon()
}

func (c *Config) validateCommon() error {
	switch c.NodeEnv {
	case "development", "production", "test":
	default:
		return invalid("NODE_ENV", c.NodeEnv)
	}
	switch c.LogLevel {
	case "error", "warn", "info", "debug":
	default:
		return invalid("LOG_LEVEL", c.LogLevel)
	}
	return nil
}

// GetGinMode returns the appropriate Gin mode based on log level, tying
// framework verbosity to LOG_LEVEL.
func (c *Config) GetGinMode() string {
	if c.LogLevel == "debug" {
		return "debug"
	}
	return "release"
}

func missing(name string) error {
	return apperrors.New("config.missing_required", apperrors.CategoryConfiguration,
		fmt.Sprintf("%s is required", name)).WithContext("variable", name)
}

func invalid(name, value string) error {
	return apperrors.New("config.invalid_value", apperrors.CategoryConfiguration,
		fmt.Sprintf("%s has invalid value %q", name, value)).WithContext("variable", name).WithContext("value", value)
}

// loadDotEnv searches for a .env file recursively from the current directory
// up to the root directory and loads it if found.
func loadDotEnv() {
	cwd, err := os.Getwd()
	if err != nil {
		return
	}

	dir := cwd
	for {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
}
