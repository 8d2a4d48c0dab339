package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"larkgate/internal/config"
	"larkgate/pkg/logging"
)

// Application bootstraps and runs the gateway.
//
// Initialization happens in two phases:
//  1. Bootstrap: load configuration, initialize logging, build services
//  2. Execution: serve HTTP until the context is cancelled
//
// Example usage:
//
//	cfg := app.NewConfig("", version)
//	application, err := app.NewApplication(cfg)
//	if err != nil {
//	    return fmt.Errorf("failed to create application: %w", err)
//	}
//	return application.Run(ctx)
type Application struct {
	config   *Config
	services *Services
}

// NewApplication loads the configuration, applies command line overrides,
// validates the result and builds every service.
//
// Configuration sources, later ones winning: built-in defaults, the yaml file
// (cfg.ConfigPath or the default path), .env in the working directory, the
// process environment and finally the command line.
func NewApplication(cfg *Config) (*Application, error) {
	var logOutput io.Writer = os.Stderr
	if cfg.LogOutput != nil {
		logOutput = cfg.LogOutput
	}
	// Log loading problems before the configured logger exists
	logging.InitForCLI(logging.LevelInfo, logOutput)

	configPath := cfg.ConfigPath
	if configPath == "" {
		configPath = config.DefaultConfigPath()
	}

	brokerCfg, err := config.LoadConfig(configPath)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to load configuration from %s", configPath)
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg.applyOverrides(&brokerCfg)

	if err := brokerCfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := logging.ParseLevel(brokerCfg.Logging.Level)
	logging.Init(level, brokerCfg.Logging.Format, logOutput)

	cfg.ConfigPath = configPath
	cfg.Broker = &brokerCfg

	services, err := InitializeServices(brokerCfg, cfg.Version, nil)
	if err != nil {
		logging.Error("Bootstrap", err, "Failed to initialize services")
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	return &Application{
		config:   cfg,
		services: services,
	}, nil
}

// Services exposes the initialized components.
func (a *Application) Services() *Services {
	return a.services
}

// Run serves until ctx is cancelled or the server fails, then shuts down
// gracefully and releases storage.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		if err := a.services.Close(); err != nil {
			logging.Error("Bootstrap", err, "Failed to close storage")
		}
	}()
	return run(ctx, a.config, a.services)
}
