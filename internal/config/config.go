// Package config provides configuration loading for complianced.
package config

import (
	"fmt"
	"time"

	"github.com/clearlane/complianced/internal/logging"
)

// Config is the daemon configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Service   ServiceConfig   `koanf:"service"`
	Logging   logging.Config  `koanf:"logging"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Schemes   SchemesConfig   `koanf:"schemes"`
}

// ServerConfig configures the daemon's own HTTP listener.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ServiceConfig configures the external Compliance Service client.
type ServiceConfig struct {
	BaseURL   string        `koanf:"base_url"`
	APIKey    string        `koanf:"api_key"`
	Timeout   time.Duration `koanf:"timeout"`
	RateLimit float64       `koanf:"rate_limit"`
	Burst     int           `koanf:"burst"`
}

// TelemetryConfig configures metrics export.
type TelemetryConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ServiceName string `koanf:"service_name"`
}

// SchemesConfig lists the payment schemes the back office knows about.
type SchemesConfig struct {
	Known   []string `koanf:"known"`
	Default string   `koanf:"default"`
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Service.BaseURL == "" {
		return fmt.Errorf("service.base_url is required")
	}
	if c.Schemes.Default == "" {
		return fmt.Errorf("schemes.default is required")
	}
	if err := c.Logging.Validate(); err != nil {
		return err
	}
	return nil
}

// applyDefaults sets default values for missing configuration fields.
func applyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8090
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Service.BaseURL == "" {
		cfg.Service.BaseURL = "http://localhost:8000"
	}
	if cfg.Service.Timeout == 0 {
		cfg.Service.Timeout = 120 * time.Second
	}

	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = "complianced"
	}

	if len(cfg.Schemes.Known) == 0 {
		cfg.Schemes.Known = []string{"SEPA", "SWIFT", "ACH"}
	}
	if cfg.Schemes.Default == "" {
		cfg.Schemes.Default = "SEPA"
	}
}
