// Package config loads and validates the sourcing service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultServerAddress      = ":8085"
	defaultReadTimeout        = 10 * time.Second
	defaultWriteTimeout       = 30 * time.Second
	defaultShutdownTimeout    = 30 * time.Second
	defaultExternalTimeout    = 30 * time.Second
	defaultPollInterval       = 5 * time.Second
	defaultMaxPollAttempts    = 60
	defaultParallelism        = 5
	defaultMaxScoringAttempts = 3
	defaultScoringBackoff     = 400 * time.Millisecond
	defaultLowCreditThreshold = 10
	defaultRateLimitPerMinute = 120
)

// Config is the root service configuration.
type Config struct {
	Debug    bool           `yaml:"debug"`
	LogLevel string         `yaml:"log_level"`
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Queue    QueueConfig    `yaml:"queue"`
	External ExternalConfig `yaml:"external"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Scoring  ScoringConfig  `yaml:"scoring"`
	Credits  CreditsConfig  `yaml:"credits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Address            string        `yaml:"address"`
	ReadTimeout        time.Duration `yaml:"read_timeout"`
	WriteTimeout       time.Duration `yaml:"write_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins        []string      `yaml:"cors_origins"`
	RateLimitPerMinute int           `yaml:"rate_limit_per_minute"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL returns the postgres:// URL form, used by the migrate command.
func (d *DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// RedisConfig holds Redis connection settings for the realtime bus.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// QueueConfig holds the delayed-job queue settings. Jobs are delivered back
// to this service as signed HTTP callbacks; SigningKey is the current key and
// NextSigningKey is accepted during rotation.
type QueueConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	CallbackBase   string `yaml:"callback_base"`
	SigningKey     string `yaml:"signing_key"`
	NextSigningKey string `yaml:"next_signing_key"`
}

// ExternalConfig holds base URLs for the external collaborators.
type ExternalConfig struct {
	ParseURL    string        `yaml:"parse_url"`
	ScoringURL  string        `yaml:"scoring_url"`
	EvaluateURL string        `yaml:"evaluate_url"`
	SourcingURL string        `yaml:"sourcing_url"`
	Timeout     time.Duration `yaml:"timeout"`
}

// WorkflowConfig tunes the strategy orchestrator poll loop.
type WorkflowConfig struct {
	PollInterval    time.Duration `yaml:"poll_interval"`
	MaxPollAttempts int           `yaml:"max_poll_attempts"`
}

// ScoringConfig tunes the scoring dispatcher and worker.
type ScoringConfig struct {
	Parallelism int           `yaml:"parallelism"`
	MaxAttempts int           `yaml:"max_attempts"`
	Backoff     time.Duration `yaml:"backoff"`
}

// CreditsConfig tunes ledger threshold alerts.
type CreditsConfig struct {
	LowThreshold int `yaml:"low_threshold"`
}

// Load reads the YAML config file, applies defaults and environment
// variable overrides, then validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	setDefaults(&cfg)
	overrideWithEnvVars(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return errors.New("database.host is required")
	}
	if c.Database.Name == "" {
		return errors.New("database.name is required")
	}
	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}
	if c.Queue.SigningKey == "" {
		return errors.New("queue.signing_key is required")
	}
	if c.Queue.CallbackBase == "" {
		return errors.New("queue.callback_base is required")
	}
	if c.External.EvaluateURL == "" {
		return errors.New("external.evaluate_url is required")
	}
	if c.External.SourcingURL == "" {
		return errors.New("external.sourcing_url is required")
	}
	if c.Workflow.PollInterval <= 0 {
		return fmt.Errorf("workflow.poll_interval must be positive, got %v", c.Workflow.PollInterval)
	}
	if c.Scoring.Parallelism <= 0 {
		return fmt.Errorf("scoring.parallelism must be positive, got %d", c.Scoring.Parallelism)
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = defaultServerAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = defaultShutdownTimeout
	}
	if cfg.Server.RateLimitPerMinute == 0 {
		cfg.Server.RateLimitPerMinute = defaultRateLimitPerMinute
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "postgres"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.External.Timeout == 0 {
		cfg.External.Timeout = defaultExternalTimeout
	}
	if cfg.Workflow.PollInterval == 0 {
		cfg.Workflow.PollInterval = defaultPollInterval
	}
	if cfg.Workflow.MaxPollAttempts == 0 {
		cfg.Workflow.MaxPollAttempts = defaultMaxPollAttempts
	}
	if cfg.Scoring.Parallelism == 0 {
		cfg.Scoring.Parallelism = defaultParallelism
	}
	if cfg.Scoring.MaxAttempts == 0 {
		cfg.Scoring.MaxAttempts = defaultMaxScoringAttempts
	}
	if cfg.Scoring.Backoff == 0 {
		cfg.Scoring.Backoff = defaultScoringBackoff
	}
	if cfg.Credits.LowThreshold == 0 {
		cfg.Credits.LowThreshold = defaultLowCreditThreshold
	}
}

func overrideWithEnvVars(cfg *Config) {
	if v := os.Getenv("APP_DEBUG"); v != "" {
		cfg.Debug = parseBool(v)
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		cfg.Redis.Address = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("QUEUE_URL"); v != "" {
		cfg.Queue.URL = v
	}
	if v := os.Getenv("QUEUE_TOKEN"); v != "" {
		cfg.Queue.Token = v
	}
	if v := os.Getenv("QUEUE_SIGNING_KEY"); v != "" {
		cfg.Queue.SigningKey = v
	}
	if v := os.Getenv("QUEUE_NEXT_SIGNING_KEY"); v != "" {
		cfg.Queue.NextSigningKey = v
	}
	if v := os.Getenv("QUEUE_CALLBACK_BASE"); v != "" {
		cfg.Queue.CallbackBase = v
	}
}

// parseBool accepts the common truthy spellings.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes"
}
