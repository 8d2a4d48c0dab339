package app

import (
	"io"

	"larkgate/internal/config"
)

// Config holds the application configuration
type Config struct {
	// Custom configuration file (optional). Empty uses the default path.
	ConfigPath string

	// Command line overrides; zero values leave the loaded config alone.
	Host     string
	Port     int
	LogLevel string

	// Version is reported on /healthz and in the MCP handshake.
	Version string

	// LogOutput receives log output; nil means stderr.
	LogOutput io.Writer

	// Broker is the effective configuration after loading.
	Broker *config.BrokerConfig
}

// NewConfig creates a new application configuration
func NewConfig(configPath, version string) *Config {
	return &Config{
		ConfigPath: configPath,
		Version:    version,
	}
}

// applyOverrides lets command line flags win over every other source.
func (c *Config) applyOverrides(cfg *config.BrokerConfig) {
	if c.Host != "" {
		cfg.Server.Host = c.Host
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}
	if c.LogLevel != "" {
		cfg.Logging.Level = c.LogLevel
	}
}
