// Package config loads instance configuration from the environment and the
// fleet manifest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	svcerrors "github.com/shopfleet/service_layer/internal/errors"
	"github.com/shopfleet/service_layer/internal/logging"
)

// EnvironmentProduction is the environment in which the API document must not
// be served.
const EnvironmentProduction = "production"

// Config holds the per-instance settings read from the environment.
type Config struct {
	ServiceType    string `env:"SERVICE_TYPE"`
	ServiceName    string `env:"SERVICE_NAME"`
	ServiceVersion string `env:"SERVICE_VERSION,default=v1"`
	Environment    string `env:"ENVIRONMENT,default=development"`

	Host string `env:"HOST"`
	Port int    `env:"PORT"`

	// DocsSetting is DOCS_ENABLED as given. When empty the API document is
	// served everywhere except production.
	DocsSetting string `env:"DOCS_ENABLED"`
	DocsEnabled bool

	RateLimitRPS   int `env:"RATE_LIMIT_RPS,default=0"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST,default=0"`

	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT,default=30s"`

	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogFormat string `env:"LOG_FORMAT,default=json"`
	LogOutput string `env:"LOG_OUTPUT,default=stdout"`

	ServicesConfig string `env:"SERVICES_CONFIG,default=config/services.yaml"`
}

// Load reads an optional .env file and decodes the environment into a Config.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, svcerrors.WrapConfiguration(err, "load .env")
		}
	}
	return FromEnv()
}

// FromEnv decodes the current environment into a Config without touching
// .env files.
func FromEnv() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, svcerrors.WrapConfiguration(err, "decode environment")
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.ServiceType = strings.ToLower(strings.TrimSpace(c.ServiceType))
	c.ServiceName = strings.TrimSpace(c.ServiceName)
	c.ServiceVersion = strings.TrimSpace(c.ServiceVersion)
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	if c.ServiceVersion == "" {
		c.ServiceVersion = "v1"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}

	c.DocsSetting = strings.TrimSpace(c.DocsSetting)
	if c.DocsSetting == "" {
		c.DocsEnabled = !c.IsProduction()
		return nil
	}
	enabled, err := strconv.ParseBool(c.DocsSetting)
	if err != nil {
		return svcerrors.Configuration("DOCS_ENABLED %q is not a boolean", c.DocsSetting)
	}
	c.DocsEnabled = enabled
	return nil
}

// Validate rejects settings that would start an instance in an unsafe or
// unusable state.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return svcerrors.Configuration("PORT %d out of range", c.Port)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return svcerrors.Configuration("rate limit settings must not be negative")
	}
	if c.IsProduction() && c.DocsEnabled {
		return svcerrors.Configuration("API document must be disabled in %s (set DOCS_ENABLED=false)", EnvironmentProduction)
	}
	return nil
}

// IsProduction reports whether the instance runs in production.
func (c *Config) IsProduction() bool {
	return c.Environment == EnvironmentProduction
}

// Addr returns the listen address for port. A non-zero PORT overrides it.
func (c *Config) Addr(port int) string {
	if c.Port != 0 {
		port = c.Port
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

// Logging returns the logger settings.
func (c *Config) Logging() logging.LoggingConfig {
	return logging.LoggingConfig{
		Level:  c.LogLevel,
		Format: c.LogFormat,
		Output: c.LogOutput,
	}
}
