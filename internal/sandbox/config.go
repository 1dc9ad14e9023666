package sandbox

import (
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/config"
	"github.com/GriffinCanCode/AgentOS/scripthost/internal/infrastructure/monitoring"
)

// Config holds sandbox settings
type Config struct {
	// MessagePrefix prefixes outbound message ids: <prefix>-1, <prefix>-2, ...
	MessagePrefix string
	// DisableYield turns delay() into a plain timer.
	DisableYield bool
	// CallTimeout and YieldTimeout bound host round trips. Zero waits forever.
	CallTimeout  time.Duration
	YieldTimeout time.Duration
	// ExecTimeout bounds every synchronous slice of script execution. Zero
	// disables the watchdog.
	ExecTimeout      time.Duration
	CacheSize        int
	MaxCallStackSize int
}

// DefaultConfig returns default sandbox configuration
func DefaultConfig() Config {
	return Config{
		MessagePrefix:    "sandbox",
		CallTimeout:      2 * time.Minute,
		YieldTimeout:     time.Minute,
		ExecTimeout:      5 * time.Second,
		CacheSize:        100,
		MaxCallStackSize: 1024,
	}
}

// FromSettings converts the process configuration section.
func FromSettings(s config.SandboxConfig) Config {
	return Config{
		MessagePrefix:    s.MessagePrefix,
		DisableYield:     s.DisableYield,
		CallTimeout:      s.CallTimeout,
		YieldTimeout:     s.YieldTimeout,
		ExecTimeout:      s.ExecTimeout,
		CacheSize:        s.CacheSize,
		MaxCallStackSize: s.MaxCallStackSize,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MessagePrefix == "" {
		c.MessagePrefix = def.MessagePrefix
	}
	if c.CacheSize <= 0 {
		c.CacheSize = def.CacheSize
	}
	return c
}

// Option configures a Sandbox
type Option func(*Sandbox)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sandbox) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector
func WithMetrics(metrics *monitoring.Metrics) Option {
	return func(s *Sandbox) {
		s.metrics = metrics
	}
}
