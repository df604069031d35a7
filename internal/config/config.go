// Package config loads application configuration from environment
// variables, with an optional YAML file overlay.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	App       AppConfig       `yaml:"app"`
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Log       LogConfig       `yaml:"log"`
	Auth      AuthConfig      `yaml:"auth"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Executor  ExecutorConfig  `yaml:"executor"`
	Stream    StreamConfig    `yaml:"stream"`
	Worker    WorkerConfig    `yaml:"worker"`
	Bulk      BulkConfig      `yaml:"bulk"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// AppConfig holds application-level configuration.
type AppConfig struct {
	Name  string `yaml:"name"`
	Env   string `yaml:"env"`
	Debug bool   `yaml:"debug"`
}

// IsProduction returns true when running in the production environment.
func (c AppConfig) IsProduction() bool {
	return c.Env == "production"
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MaxBodySize     int64         `yaml:"max_body_size"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	MigrationsDir   string        `yaml:"migrations_dir"`
}

// DSN returns the postgres connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// Addr returns the redis address.
func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AuthConfig holds the bearer-token settings for the executor callback
// surface. Interactive user auth is handled upstream of this service.
type AuthConfig struct {
	ExecutorSecret string `yaml:"executor_secret"`
}

// SchedulerConfig holds the schedule evaluation loop configuration.
type SchedulerConfig struct {
	TickInterval time.Duration `yaml:"tick_interval"`
	BatchSize    int           `yaml:"batch_size"`
}

// ExecutorConfig holds settings for talking to the external executor.
type ExecutorConfig struct {
	// BaseURL is the executor's HTTP endpoint.
	BaseURL string `yaml:"base_url"`
	// RequestTimeout bounds a single delivery attempt.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// StaleGrace is how long a running run may go without progress
	// before it is flagged stale (advisory only).
	StaleGrace time.Duration `yaml:"stale_grace"`
	// StaleCheckInterval is how often the stale monitor sweeps.
	StaleCheckInterval time.Duration `yaml:"stale_check_interval"`
	// DispatchQueue is the asynq queue used for run dispatch.
	DispatchQueue string `yaml:"dispatch_queue"`
}

// StreamConfig holds the real-time update stream configuration.
type StreamConfig struct {
	Capacity int `yaml:"capacity"`
}

// WorkerConfig holds the background job worker configuration.
type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// BulkConfig holds the bulk operation coordinator configuration.
type BulkConfig struct {
	MaxParallel int `yaml:"max_parallel"`
	MaxItems    int `yaml:"max_items"`
}

// RateLimitConfig holds the HTTP rate limiting configuration.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

// Load builds the configuration from environment variables. When
// CONFIG_FILE points at a YAML file, its values are applied first and
// environment variables override them.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			Name: "scan-engine",
			Env:  "development",
		},
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			MaxBodySize:     10 * 1024 * 1024,
		},
		Database: DatabaseConfig{
			Host:            "localhost",
			Port:            5432,
			User:            "postgres",
			Name:            "scanengine",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			RetryAttempts:   3,
		},
		Redis: RedisConfig{
			Host:         "localhost",
			Port:         6379,
			PoolSize:     10,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Scheduler: SchedulerConfig{
			TickInterval: time.Minute,
			BatchSize:    50,
		},
		Executor: ExecutorConfig{
			BaseURL:            "http://localhost:9090",
			RequestTimeout:     10 * time.Second,
			StaleGrace:         15 * time.Minute,
			StaleCheckInterval: time.Minute,
			DispatchQueue:      "scans",
		},
		Stream: StreamConfig{
			Capacity: 50,
		},
		Worker: WorkerConfig{
			Concurrency: 10,
		},
		Bulk: BulkConfig{
			MaxParallel: 4,
			MaxItems:    100,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     50,
			Burst:   100,
		},
	}
}

func applyEnv(cfg *Config) {
	setString(&cfg.App.Name, "APP_NAME")
	setString(&cfg.App.Env, "APP_ENV")
	setBool(&cfg.App.Debug, "APP_DEBUG")

	setString(&cfg.Server.Host, "SERVER_HOST")
	setInt(&cfg.Server.Port, "SERVER_PORT")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.RequestTimeout, "SERVER_REQUEST_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setInt64(&cfg.Server.MaxBodySize, "SERVER_MAX_BODY_SIZE")

	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.Database.SSLMode, "DB_SSL_MODE")
	setInt(&cfg.Database.MaxOpenConns, "DB_MAX_OPEN_CONNS")
	setInt(&cfg.Database.MaxIdleConns, "DB_MAX_IDLE_CONNS")
	setDuration(&cfg.Database.ConnMaxLifetime, "DB_CONN_MAX_LIFETIME")
	setInt(&cfg.Database.RetryAttempts, "DB_RETRY_ATTEMPTS")
	setString(&cfg.Database.MigrationsDir, "DB_MIGRATIONS_DIR")

	setString(&cfg.Redis.Host, "REDIS_HOST")
	setInt(&cfg.Redis.Port, "REDIS_PORT")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	setString(&cfg.Auth.ExecutorSecret, "EXECUTOR_CALLBACK_SECRET")

	setDuration(&cfg.Scheduler.TickInterval, "SCHEDULER_TICK_INTERVAL")
	setInt(&cfg.Scheduler.BatchSize, "SCHEDULER_BATCH_SIZE")

	setString(&cfg.Executor.BaseURL, "EXECUTOR_BASE_URL")
	setDuration(&cfg.Executor.RequestTimeout, "EXECUTOR_REQUEST_TIMEOUT")
	setDuration(&cfg.Executor.StaleGrace, "EXECUTOR_STALE_GRACE")
	setDuration(&cfg.Executor.StaleCheckInterval, "EXECUTOR_STALE_CHECK_INTERVAL")
	setString(&cfg.Executor.DispatchQueue, "EXECUTOR_DISPATCH_QUEUE")

	setInt(&cfg.Stream.Capacity, "STREAM_CAPACITY")
	setInt(&cfg.Worker.Concurrency, "WORKER_CONCURRENCY")
	setInt(&cfg.Bulk.MaxParallel, "BULK_MAX_PARALLEL")
	setInt(&cfg.Bulk.MaxItems, "BULK_MAX_ITEMS")

	setBool(&cfg.RateLimit.Enabled, "RATE_LIMIT_ENABLED")
	setFloat(&cfg.RateLimit.RPS, "RATE_LIMIT_RPS")
	setInt(&cfg.RateLimit.Burst, "RATE_LIMIT_BURST")
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Scheduler.TickInterval < time.Second {
		return fmt.Errorf("scheduler tick interval too small: %s", c.Scheduler.TickInterval)
	}
	if c.Stream.Capacity < 1 {
		return fmt.Errorf("stream capacity must be positive: %d", c.Stream.Capacity)
	}
	if c.Bulk.MaxParallel < 1 {
		return fmt.Errorf("bulk max parallel must be positive: %d", c.Bulk.MaxParallel)
	}
	if c.App.IsProduction() && c.Auth.ExecutorSecret == "" {
		return fmt.Errorf("EXECUTOR_CALLBACK_SECRET is required in production")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = strings.EqualFold(v, "true") || v == "1"
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
