package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"larkgate/internal/app"
)

type serveOptions struct {
	configPath string
	host       string
	port       int
	logLevel   string
}

func newServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the token broker and API gateway",
		Long: `Starts the HTTP server that hosts the account linking flow, the OAuth
authorization server for MCP clients, the tool gateway and the MCP endpoints.

Configuration is layered: built-in defaults, then the yaml file, then a .env
file in the working directory, then environment variables (FEISHU_APP_ID,
FEISHU_APP_SECRET, PUBLIC_URL, ...), and finally the flags below.

The server stops gracefully on SIGINT or SIGTERM. Edits to the config file
re-apply the allowed CORS origins without a restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Path to the configuration file (default: user config dir)")
	cmd.Flags().StringVar(&opts.host, "host", "", "Interface to bind (overrides server.host)")
	cmd.Flags().IntVar(&opts.port, "port", 0, "Port to listen on (overrides server.port)")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "Log level: debug, info, warn or error")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg := app.NewConfig(opts.configPath, GetVersion())
	cfg.Host = opts.host
	cfg.Port = opts.port
	cfg.LogLevel = opts.logLevel

	application, err := app.NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run(cmd.Context())
}
