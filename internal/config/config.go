// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Keys are flat snake_case so that INTERN_<KEY> env vars map onto them directly.
// - New returns a Config populated with defaults; Load layers file and env on top.
package config

import (
	"context"
	"fmt"
	"time"
)

// Queue backends.
const (
	QueueMemory = "memory"
	QueueRedis  = "redis"
	QueueKafka  = "kafka"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreMySQL  = "mysql"
)

// Ownership guard backends.
const (
	GuardMemory = "memory"
	GuardRedis  = "redis"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the zap encoder: json or console.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// ShutdownTimeout bounds graceful shutdown of the server and workers.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	// MetricsRefreshInterval is how often process and service gauges are sampled.
	MetricsRefreshInterval time.Duration `koanf:"metrics_refresh_interval"`

	// WorkerCount sets the number of pipeline workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueBackend is one of memory, redis, kafka.
	QueueBackend string `koanf:"queue_backend"`
	// QueueSize bounds the queue; enqueue beyond it is backpressure.
	QueueSize int `koanf:"queue_size"`
	// QueueKey prefixes the redis pending/processing lists.
	QueueKey string `koanf:"queue_key"`

	KafkaBrokers []string `koanf:"kafka_brokers"`
	KafkaTopic   string   `koanf:"kafka_topic"`
	KafkaGroupID string   `koanf:"kafka_group_id"`

	RedisAddr     string `koanf:"redis_addr"`
	RedisPassword string `koanf:"redis_password"`
	RedisDB       int    `koanf:"redis_db"`

	// StatusCacheTTL enables the redis status mirror when positive and redis_addr is set.
	StatusCacheTTL time.Duration `koanf:"status_cache_ttl"`

	// GuardBackend is one of memory, redis.
	GuardBackend string        `koanf:"guard_backend"`
	GuardTTL     time.Duration `koanf:"guard_ttl"`

	// StoreBackend is one of memory, mysql.
	StoreBackend       string        `koanf:"store_backend"`
	MySQLDSN           string        `koanf:"mysql_dsn"`
	MySQLMaxOpenConns  int           `koanf:"mysql_max_open_conns"`
	MySQLMaxIdleConns  int           `koanf:"mysql_max_idle_conns"`
	MySQLConnLifetime  time.Duration `koanf:"mysql_conn_max_lifetime"`
	MySQLConnIdleTime  time.Duration `koanf:"mysql_conn_max_idle_time"`
	MaxLeaderboardSize int           `koanf:"max_leaderboard_limit"`

	// Retry policy for transient collaborator failures.
	RetryMaxAttempts int           `koanf:"retry_max_attempts"`
	RetryBaseDelay   time.Duration `koanf:"retry_base_delay"`
	RetryMaxDelay    time.Duration `koanf:"retry_max_delay"`

	CloneTimeout   time.Duration `koanf:"clone_timeout"`
	ReviewTimeout  time.Duration `koanf:"review_timeout"`
	DeployTimeout  time.Duration `koanf:"deploy_timeout"`
	MaxFileBytes   int           `koanf:"max_file_bytes"`
	GitHubToken    string        `koanf:"github_token"`
	ProgressBuffer int           `koanf:"progress_buffer"`
	BatchFanout    int           `koanf:"batch_fanout"`

	// LLM review provider. Review is disabled when LLMProject is empty.
	LLMProject string `koanf:"llm_project"`
	LLMRegion  string `koanf:"llm_region"`
	LLMModel   string `koanf:"llm_model"`

	// ScreenshotURL is the headless-browser sidecar endpoint. Capture is skipped when empty.
	ScreenshotURL string `koanf:"screenshot_url"`

	MinIOEndpoint  string `koanf:"minio_endpoint"`
	MinIOAccessKey string `koanf:"minio_access_key"`
	MinIOSecretKey string `koanf:"minio_secret_key"`
	MinIOBucket    string `koanf:"minio_bucket"`
	MinIOUseSSL    bool   `koanf:"minio_use_ssl"`
	MinIOPublicURL string `koanf:"minio_public_url"`

	// DegradedQualityScore is assigned to each quality category when review is unavailable.
	DegradedQualityScore int `koanf:"degraded_quality_score"`

	AuthorshipPatternWeight      float64 `koanf:"authorship_pattern_weight"`
	AuthorshipShortWeight        float64 `koanf:"authorship_short_weight"`
	AuthorshipHighFrequency      float64 `koanf:"authorship_high_frequency"`
	AuthorshipModerateFrequency  float64 `koanf:"authorship_moderate_frequency"`
	AuthorshipBulkWeight         float64 `koanf:"authorship_bulk_weight"`
	AuthorshipCompressedWeight   float64 `koanf:"authorship_compressed_weight"`
	AuthorshipShortSpanWeight    float64 `koanf:"authorship_short_span_weight"`
	AuthorshipConventionalWeight float64 `koanf:"authorship_conventional_weight"`
}

// New creates a Config with defaults. Context is accepted first to satisfy the
// project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "console",
		Addr:            ":9080",
		ShutdownTimeout: 30 * time.Second,

		MetricsRefreshInterval: 10 * time.Second,

		WorkerCount:  4,
		QueueBackend: QueueMemory,
		QueueSize:    1_000,
		QueueKey:     "scoring:jobs",
		KafkaTopic:   "submission-jobs",
		KafkaGroupID: "scoring-workers",

		RedisAddr:      "",
		StatusCacheTTL: 10 * time.Minute,
		GuardBackend:   GuardMemory,
		GuardTTL:       15 * time.Minute,

		StoreBackend:       StoreMemory,
		MySQLMaxOpenConns:  25,
		MySQLMaxIdleConns:  5,
		MySQLConnLifetime:  5 * time.Minute,
		MySQLConnIdleTime:  10 * time.Minute,
		MaxLeaderboardSize: 100,

		RetryMaxAttempts: 3,
		RetryBaseDelay:   time.Second,
		RetryMaxDelay:    10 * time.Second,

		CloneTimeout:   2 * time.Minute,
		ReviewTimeout:  90 * time.Second,
		DeployTimeout:  30 * time.Second,
		MaxFileBytes:   512 * 1024,
		ProgressBuffer: 32,
		BatchFanout:    8,

		LLMRegion: "us-central1",
		LLMModel:  "gemini-1.5-pro",

		MinIOBucket: "screenshots",

		DegradedQualityScore: 0,

		AuthorshipPatternWeight:      0.25,
		AuthorshipShortWeight:        0.15,
		AuthorshipHighFrequency:      0.20,
		AuthorshipModerateFrequency:  0.10,
		AuthorshipBulkWeight:         0.15,
		AuthorshipCompressedWeight:   0.25,
		AuthorshipShortSpanWeight:    0.15,
		AuthorshipConventionalWeight: 0.10,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("%w: worker_count must be positive", ErrInvalidConfig)
	}
	if c.MetricsRefreshInterval <= 0 {
		return fmt.Errorf("%w: metrics_refresh_interval must be positive", ErrInvalidConfig)
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("%w: queue_size must be positive", ErrInvalidConfig)
	}
	switch c.QueueBackend {
	case QueueMemory:
	case QueueRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis queue requires redis_addr", ErrInvalidConfig)
		}
	case QueueKafka:
		if len(c.KafkaBrokers) == 0 || c.KafkaTopic == "" {
			return fmt.Errorf("%w: kafka queue requires kafka_brokers and kafka_topic", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown queue_backend %q", ErrInvalidConfig, c.QueueBackend)
	}
	switch c.GuardBackend {
	case GuardMemory:
	case GuardRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("%w: redis guard requires redis_addr", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown guard_backend %q", ErrInvalidConfig, c.GuardBackend)
	}
	switch c.StoreBackend {
	case StoreMemory:
	case StoreMySQL:
		if c.MySQLDSN == "" {
			return fmt.Errorf("%w: mysql store requires mysql_dsn", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_backend %q", ErrInvalidConfig, c.StoreBackend)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("%w: retry_max_attempts must be at least 1", ErrInvalidConfig)
	}
	if c.RetryBaseDelay < 0 || c.RetryMaxDelay < c.RetryBaseDelay {
		return fmt.Errorf("%w: retry delays must satisfy 0 <= base <= max", ErrInvalidConfig)
	}
	if c.DegradedQualityScore < 0 || c.DegradedQualityScore > 5 {
		return fmt.Errorf("%w: degraded_quality_score must be within 0..5", ErrInvalidConfig)
	}
	if c.MinIOEndpoint != "" && c.MinIOBucket == "" {
		return fmt.Errorf("%w: minio_bucket must be set with minio_endpoint", ErrInvalidConfig)
	}
	return nil
}
