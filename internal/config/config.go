// Package config manages application configuration from default values,
// an optional config.yaml file, and MEMBERQA_-prefixed environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config defines the application configuration for all components of the
// MemberQA service: logging, the upstream message source, the message cache,
// the snapshot database, the Gemini extractor, and the serving surfaces.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Source    SourceConfig    `mapstructure:"source"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Gemini    GeminiConfig    `mapstructure:"gemini"`
	Server    ServerConfig    `mapstructure:"server"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LogConfig controls log level and output format.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// SourceConfig configures the upstream paginated message API.
type SourceConfig struct {
	BaseURL        string        `mapstructure:"base_url"         validate:"required,url"`
	PageSize       int           `mapstructure:"page_size"        validate:"required,min=1,max=500"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"  validate:"required,min=1s,max=5m"`
	MaxRetries     int           `mapstructure:"max_retries"      validate:"min=0,max=10"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" validate:"required,min=10ms,max=1m"`
}

// CacheConfig configures the in-memory message cache.
type CacheConfig struct {
	TTL             time.Duration `mapstructure:"ttl"              validate:"required,min=1s,max=24h"`
	FailureCooldown time.Duration `mapstructure:"failure_cooldown" validate:"required,min=1s,max=1h"`
	RefreshTimeout  time.Duration `mapstructure:"refresh_timeout"  validate:"required,min=1s,max=10m"`
}

// DatabaseConfig configures the SQLite snapshot store.
type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// GeminiConfig configures the Gemini-backed answer extractor.
// An empty API key disables the LLM tier; the engine then answers with the
// deterministic fallback only.
type GeminiConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	ModelName         string        `mapstructure:"model_name"          validate:"required"`
	Temperature       float32       `mapstructure:"temperature"         validate:"min=0,max=2"`
	Timeout           time.Duration `mapstructure:"timeout"             validate:"required,min=1s,max=10m"`
	MaxRetries        int           `mapstructure:"max_retries"         validate:"min=0,max=10"`
	RetryDelaySeconds int           `mapstructure:"retry_delay_seconds" validate:"min=0,max=300"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"required,min=1s,max=5m"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"required,min=1s,max=5m"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,min=1s,max=1m"`
}

// TelegramConfig configures the optional Telegram front door.
// The listener is only started when a token is present.
type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

// SchedulerConfig configures background tasks by name.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks"`
}

// TaskConfig enables a named task and sets its cron schedule.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule"`
}

// Load loads and validates configuration from:
//  1. Default values
//  2. The config file at configPath (optional)
//  3. MEMBERQA_* environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	v.SetEnvPrefix("MEMBERQA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, we run on defaults and env.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", true)

	v.SetDefault("source.base_url", "https://november7-730026606190.europe-west1.run.app/messages/")
	v.SetDefault("source.page_size", 100)
	v.SetDefault("source.request_timeout", 30*time.Second)
	v.SetDefault("source.max_retries", 3)
	v.SetDefault("source.retry_base_delay", 500*time.Millisecond)

	v.SetDefault("cache.ttl", 5*time.Minute)
	v.SetDefault("cache.failure_cooldown", 30*time.Second)
	v.SetDefault("cache.refresh_timeout", 2*time.Minute)

	v.SetDefault("database.path", "snapshot.db")

	v.SetDefault("gemini.model_name", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.2)
	v.SetDefault("gemini.timeout", time.Minute)
	v.SetDefault("gemini.max_retries", 2)
	v.SetDefault("gemini.retry_delay_seconds", 2)

	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 2*time.Minute)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("scheduler.tasks.cache_refresh.enabled", true)
	v.SetDefault("scheduler.tasks.cache_refresh.schedule", "*/5 * * * *")
	v.SetDefault("scheduler.tasks.db_maintenance.enabled", true)
	v.SetDefault("scheduler.tasks.db_maintenance.schedule", "0 4 * * *")
}
