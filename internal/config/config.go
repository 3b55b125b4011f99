// Package config provides factory configuration loaded from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/glimte/aspect-go/contracts"
	"github.com/glimte/aspect-go/logging"
	"github.com/kelseyhightower/envconfig"
)

const logPrefix = "config:LoadConfig"

// Config holds proxy factory configuration.
type Config struct {
	// Variant selects which variant-scoped policies fire.
	Variant contracts.Variant `envconfig:"ASPECT_VARIANT" default:"release"`

	// Logging
	LogLevel string `envconfig:"ASPECT_LOG_LEVEL" default:"info"`

	// Manifest is an optional YAML binding manifest applied at start.
	Manifest string `envconfig:"ASPECT_MANIFEST"`

	// StrictBindings makes an interceptor constructor returning nil a
	// configuration error. When false such bindings are skipped with a warning.
	StrictBindings bool `envconfig:"ASPECT_STRICT_BINDINGS" default:"true"`

	// Timing records (empty URL = records are only logged)
	TimingAMQPURL        string        `envconfig:"ASPECT_TIMING_AMQP_URL"`
	TimingExchange       string        `envconfig:"ASPECT_TIMING_EXCHANGE" default:"aspect.timing"`
	TimingRoutingKey     string        `envconfig:"ASPECT_TIMING_ROUTING_KEY"`
	TimingPublishTimeout time.Duration `envconfig:"ASPECT_TIMING_PUBLISH_TIMEOUT" default:"5s"`

	// Consecutive publish failures before timing records are dropped, and
	// how long they are dropped for.
	TimingBreakerFailures int           `envconfig:"ASPECT_TIMING_BREAKER_FAILURES" default:"5"`
	TimingBreakerCooldown time.Duration `envconfig:"ASPECT_TIMING_BREAKER_COOLDOWN" default:"30s"`

	// Records buffered for the background publisher; 0 publishes on the
	// intercepted call's goroutine.
	TimingQueueSize int `envconfig:"ASPECT_TIMING_QUEUE_SIZE" default:"1024"`
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, fmt.Errorf("%s - %w", logPrefix, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values envconfig cannot check on its own.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%s - ASPECT_LOG_LEVEL: %w", logPrefix, err)
	}
	if c.TimingAMQPURL != "" {
		if c.TimingExchange == "" {
			return fmt.Errorf("%s - ASPECT_TIMING_EXCHANGE is required with ASPECT_TIMING_AMQP_URL", logPrefix)
		}
		if c.TimingPublishTimeout <= 0 {
			return fmt.Errorf("%s - ASPECT_TIMING_PUBLISH_TIMEOUT must be positive", logPrefix)
		}
		if c.TimingBreakerFailures <= 0 || c.TimingBreakerCooldown <= 0 {
			return fmt.Errorf("%s - ASPECT_TIMING_BREAKER_FAILURES and ASPECT_TIMING_BREAKER_COOLDOWN must be positive", logPrefix)
		}
		if c.TimingQueueSize < 0 {
			return fmt.Errorf("%s - ASPECT_TIMING_QUEUE_SIZE cannot be negative", logPrefix)
		}
	}
	return nil
}

// Level returns the parsed log level, info when unparsable.
func (c *Config) Level() logging.Level {
	level, _ := logging.ParseLevel(c.LogLevel)
	return level
}

// SlogLevel returns Level as a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return logging.SlogLevel(c.Level())
}

// TimingEnabled reports whether timing records are published to RabbitMQ.
func (c *Config) TimingEnabled() bool {
	return c.TimingAMQPURL != ""
}
