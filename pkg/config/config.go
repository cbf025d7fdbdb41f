// Package config loads process configuration from the environment.
//
// Values are resolved from OS environment first, then from a .env file in the
// working directory. A missing required value or an invalid format fails the
// process at startup.
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the top-level configuration. Binaries pick the sub-configs they need.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Queue    QueueConfig
	Worker   WorkerConfig
	Dedup    DedupConfig
	Schedule ScheduleConfig
	Wellness WellnessConfig
	Email    EmailConfig
}

type ServerConfig struct {
	Addr        string `envconfig:"API_ADDR" default:":8080"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9091"`
}

type DatabaseConfig struct {
	URL      string `envconfig:"DATABASE_URL" validate:"required"`
	MaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10" validate:"min=1"`
}

type RedisConfig struct {
	Addr     string `envconfig:"REDIS_ADDR" default:"localhost:6379" validate:"required"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type RabbitMQConfig struct {
	URL string `envconfig:"RABBITMQ_URL" validate:"required"`
}

// QueueConfig holds the retry and lease policy of the job queue.
type QueueConfig struct {
	MaxAttempts   int           `envconfig:"QUEUE_MAX_ATTEMPTS" default:"4" validate:"min=1"`
	BackoffBase   time.Duration `envconfig:"QUEUE_BACKOFF_BASE" default:"5s"`
	BackoffCap    time.Duration `envconfig:"QUEUE_BACKOFF_CAP" default:"10m"`
	LeaseDuration time.Duration `envconfig:"QUEUE_LEASE" default:"2m"`
}

type WorkerConfig struct {
	ID            string        `envconfig:"WORKER_ID"`
	Concurrency   int           `envconfig:"WORKER_CONCURRENCY" default:"10" validate:"min=1"`
	PollInterval  time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	JobTimeout    time.Duration `envconfig:"WORKER_JOB_TIMEOUT" default:"60s"`
	OutboxBatch   int           `envconfig:"OUTBOX_BATCH" default:"100" validate:"min=1"`
	OutboxTick    time.Duration `envconfig:"OUTBOX_TICK" default:"1s"`
	BoundaryLease time.Duration `envconfig:"BOUNDARY_LOCK_TTL" default:"1h"`
}

// DedupConfig holds the notification deduplication window. The original
// system hard-coded one day.
type DedupConfig struct {
	Window time.Duration `envconfig:"DEDUP_WINDOW" default:"24h" validate:"required"`
}

// ScheduleConfig holds the recurring trigger cron expressions, evaluated in
// the business time zone.
type ScheduleConfig struct {
	Timezone      string `envconfig:"BUSINESS_TIMEZONE" default:"Asia/Kolkata" validate:"required"`
	DispatchDue   string `envconfig:"CRON_DISPATCH_DUE" default:"0 10 * * *" validate:"required"`
	DailyBoundary string `envconfig:"CRON_DAILY_BOUNDARY" default:"59 23 * * *" validate:"required"`
}

// WellnessConfig holds product policy constants for the aggregation engine.
type WellnessConfig struct {
	OutreachScoreThreshold int    `envconfig:"OUTREACH_SCORE_THRESHOLD" default:"45" validate:"min=0,max=100"`
	ConsistencyDays        int    `envconfig:"BADGE_CONSISTENCY_DAYS" default:"30" validate:"min=1"`
	SteadyWindow           int    `envconfig:"BADGE_STEADY_WINDOW" default:"30" validate:"min=1"`
	GrowthWindow           int    `envconfig:"BADGE_GROWTH_WINDOW" default:"21" validate:"min=1"`
	MaxConflictRetries     int    `envconfig:"AGG_MAX_CONFLICT_RETRIES" default:"5" validate:"min=1"`
	OutreachDefaultMessage string `envconfig:"OUTREACH_DEFAULT_MESSAGE" default:"How are you feeling about your workload this week?"`
}

type EmailConfig struct {
	Provider    string `envconfig:"EMAIL_PROVIDER" default:"log" validate:"oneof=ses log"`
	FromAddress string `envconfig:"EMAIL_FROM_ADDRESS" default:"wellbeing@example.com" validate:"required,email"`
	FromName    string `envconfig:"EMAIL_FROM_NAME" default:"Wellbeing Team"`
	AWSRegion   string `envconfig:"AWS_REGION" default:"us-east-1"`
	ConfigSet   string `envconfig:"SES_CONFIGURATION_SET"`
}

// Load reads .env (if present), processes envconfig tags and validates the result.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct validation and the checks tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
		return fmt.Errorf("invalid BUSINESS_TIMEZONE %q: %w", c.Schedule.Timezone, err)
	}
	if c.Queue.BackoffCap < c.Queue.BackoffBase {
		return fmt.Errorf("QUEUE_BACKOFF_CAP (%s) must be >= QUEUE_BACKOFF_BASE (%s)", c.Queue.BackoffCap, c.Queue.BackoffBase)
	}
	// Leases are never extended, so a job must time out before the sweep
	// can hand it to another worker.
	if c.Worker.JobTimeout <= 0 || c.Worker.JobTimeout >= c.Queue.LeaseDuration {
		return fmt.Errorf("WORKER_JOB_TIMEOUT (%s) must be > 0 and < QUEUE_LEASE (%s)", c.Worker.JobTimeout, c.Queue.LeaseDuration)
	}
	return nil
}

// Location returns the business time zone. Validate guarantees it loads.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
