package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the complete application configuration.
type Config struct {
	Worker   WorkerConfig   `mapstructure:"worker"`
	Database DatabaseConfig `mapstructure:"database"`
	NATS     NATSConfig     `mapstructure:"nats"`
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Cleanup  CleanupConfig  `mapstructure:"cleanup"`
	Chunking ChunkingConfig `mapstructure:"chunking"`
	Log      LogConfig      `mapstructure:"log"`
}

// WorkerConfig holds worker configuration.
type WorkerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	QueueGroup  string        `mapstructure:"queue_group"`
	JobTimeout  time.Duration `mapstructure:"job_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	Name               string `mapstructure:"name"`
	SSLMode            string `mapstructure:"sslmode"`
	MaxConnections     int    `mapstructure:"max_connections"`
	MaxIdleConnections int    `mapstructure:"max_idle_connections"`
}

// DSN returns the database connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// NATSConfig holds NATS configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// GeminiConfig holds Gemini embedding API configuration.
type GeminiConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// PipelineConfig holds job and batch pipeline tuning.
type PipelineConfig struct {
	// FailureTolerance is the highest tolerated ratio of failed to total
	// units before a job is marked failed instead of completed. Zero means
	// any failed unit fails the job.
	FailureTolerance   float64 `mapstructure:"failure_tolerance"`
	BatchSize          int     `mapstructure:"batch_size"`
	BatchConcurrency   int     `mapstructure:"batch_concurrency"`
	GenerateEmbeddings bool    `mapstructure:"generate_embeddings"`
}

// CleanupConfig holds stuck-job reaper configuration.
type CleanupConfig struct {
	// Schedule is a cron expression for background sweeps. Empty disables
	// scheduled sweeps; the cleanup command can still run them manually.
	Schedule string `mapstructure:"schedule"`
	// ThresholdHours is clamped to [1, 24].
	ThresholdHours int `mapstructure:"threshold_hours"`
	// Mode is "mark-failed" or "delete".
	Mode string `mapstructure:"mode"`
}

// ChunkingConfig holds chunking strategy configuration.
type ChunkingConfig struct {
	// ProfileFile optionally points at a YAML strategy profile overriding
	// the built-in extension mapping.
	ProfileFile string `mapstructure:"profile_file"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// New creates a new Config instance from Viper.
func New(v *viper.Viper) (*Config, error) {
	var config Config

	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Database.User == "" {
		return errors.New("database.user is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return errors.New("database.port must be between 1 and 65535")
	}

	if c.Worker.Concurrency < 1 {
		return errors.New("worker.concurrency must be at least 1")
	}

	if c.Pipeline.FailureTolerance < 0 || c.Pipeline.FailureTolerance > 1 {
		return errors.New("pipeline.failure_tolerance must be between 0 and 1")
	}
	if c.Pipeline.BatchSize < 1 {
		return errors.New("pipeline.batch_size must be at least 1")
	}
	if c.Pipeline.BatchConcurrency < 1 {
		return errors.New("pipeline.batch_concurrency must be at least 1")
	}

	if c.Cleanup.Mode != "mark-failed" && c.Cleanup.Mode != "delete" {
		return errors.New("cleanup.mode must be mark-failed or delete")
	}

	return nil
}
