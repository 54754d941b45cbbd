// Package config loads the engine's runtime configuration from the
// environment, following the environment contract's key set: store
// endpoints, worker concurrency, timeouts, retry/backoff, and the
// admin DLQ guard.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds every environment-driven setting for the intake API and
// the worker supervisor. Every command under cmd/ loads the same
// struct; each only reads the fields relevant to it.
type Config struct {
	// HTTP server (intake API)
	Port         string        `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT" default:"120s"`

	// Relational store
	PostgresURL string `envconfig:"POSTGRES_URL" required:"true"`

	// Rate limiter + job queue primitives
	RedisURL string `envconfig:"REDIS_URL" required:"true"`

	// Secondary transport for the low-priority batch pool
	NATSURL string `envconfig:"NATS_URL" required:"true"`

	// Runtime (RT) socket for the container sandbox backend
	DockerHost string `envconfig:"DOCKER_HOST" default:"unix:///var/run/docker.sock"`

	// Blob store
	BlobBackend string `envconfig:"BLOB_BACKEND" default:"file"`
	BlobBaseDir string `envconfig:"BLOB_BASE_DIR" default:"./data/blobs"`

	// Worker supervisor
	MaxConcurrentJobs  int           `envconfig:"MAX_CONCURRENT_JOBS" default:"2"`
	PollIntervalMs     int           `envconfig:"POLL_INTERVAL_MS" default:"1000"`
	DefaultTimeoutMs   int           `envconfig:"DEFAULT_TIMEOUT_MS" default:"5000"`
	DefaultMemoryMB    int           `envconfig:"DEFAULT_MEMORY_MB" default:"256"`
	MaxJobAttempts     int           `envconfig:"MAX_JOB_ATTEMPTS" default:"3"`
	RetryBackoffBaseMs int           `envconfig:"RETRY_BACKOFF_BASE_MS" default:"2000"`
	RetryBackoffMaxMs  int           `envconfig:"RETRY_BACKOFF_MAX_MS" default:"20000"`
	PoolName           string        `envconfig:"POOL_NAME" default:"container"`
	HealthPort         string        `envconfig:"HEALTH_PORT" default:"8081"`
	ShutdownDrain      time.Duration `envconfig:"SHUTDOWN_DRAIN" default:"30s"`

	// Admin DLQ endpoint
	DLQAdminToken string `envconfig:"DLQ_ADMIN_TOKEN"`
	DLQAllowIPs   string `envconfig:"DLQ_ALLOW_IPS"`

	// Observability
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"`
}

// Load reads Config from the environment, applying defaults, and fails
// fast when a required key is absent (config errors are process-fatal
// at startup).
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
