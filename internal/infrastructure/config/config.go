package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Sandbox   SandboxConfig
	Host      HostConfig
	Store     StoreConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000" validate:"required,numeric"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// SandboxConfig holds script sandbox configuration.
type SandboxConfig struct {
	MessagePrefix    string        `envconfig:"SANDBOX_MESSAGE_PREFIX" default:"sandbox" validate:"required"`
	DisableYield     bool          `envconfig:"SANDBOX_DISABLE_YIELD" default:"false"`
	CallTimeout      time.Duration `envconfig:"SANDBOX_CALL_TIMEOUT" default:"2m" validate:"gte=0"`
	YieldTimeout     time.Duration `envconfig:"SANDBOX_YIELD_TIMEOUT" default:"1m" validate:"gte=0"`
	ExecTimeout      time.Duration `envconfig:"SANDBOX_EXEC_TIMEOUT" default:"5s" validate:"gte=0"`
	CacheSize        int           `envconfig:"SANDBOX_CACHE_SIZE" default:"100" validate:"gte=1"`
	MaxCallStackSize int           `envconfig:"SANDBOX_MAX_CALL_STACK" default:"1024" validate:"gte=0"`
	AllowedFuncs     []string      `envconfig:"SANDBOX_ALLOWED_FUNCS" default:"**"`
}

// HostConfig holds host driver configuration.
type HostConfig struct {
	Manifest        string        `envconfig:"HOST_MANIFEST"`
	EvalTimeout     time.Duration `envconfig:"HOST_EVAL_TIMEOUT" default:"5m" validate:"gte=0"`
	BreakerFailures uint32        `envconfig:"HOST_BREAKER_FAILURES" default:"5"`
	BreakerTimeout  time.Duration `envconfig:"HOST_BREAKER_TIMEOUT" default:"30s" validate:"gte=0"`
}

// StoreConfig holds snapshot persistence configuration.
type StoreConfig struct {
	Path string `envconfig:"STORE_PATH"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100" validate:"gte=1"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200" validate:"gte=1"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

var validate = validator.New()

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Sandbox: SandboxConfig{
			MessagePrefix:    "sandbox",
			CallTimeout:      2 * time.Minute,
			YieldTimeout:     time.Minute,
			ExecTimeout:      5 * time.Second,
			CacheSize:        100,
			MaxCallStackSize: 1024,
			AllowedFuncs:     []string{"**"},
		},
		Host: HostConfig{
			EvalTimeout:     5 * time.Minute,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
