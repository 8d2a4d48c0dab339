package config

import (
	"net"
	"strconv"
	"time"
)

const (
	// DefaultUpstreamBaseURL is the Feishu open platform origin.
	DefaultUpstreamBaseURL = "https://open.feishu.cn"

	// DefaultCallbackPath is where the upstream redirects after linking.
	DefaultCallbackPath = "/auth/callback"

	// DefaultUpstreamScopes are requested when linking an identity.
	DefaultUpstreamScopes = "wiki:wiki wiki:wiki:readonly wiki:node:read drive:drive drive:file " +
		"drive:file:upload auth:user.id:read offline_access task:task:read docs:document:import " +
		"docs:document.media:upload docx:document docx:document:readonly docx:document.block:convert"

	DefaultHost = "localhost"
	DefaultPort = 8787

	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultWriteTimeout      = 120 * time.Second
	DefaultIdleTimeout       = 120 * time.Second
	DefaultShutdownTimeout   = 15 * time.Second
	DefaultUpstreamTimeout   = 30 * time.Second

	DefaultSQLitePath = "larkgate.db"
	DefaultMCPName    = "larkgate"
)

// GetDefaultConfig returns the configuration used when nothing overrides it.
func GetDefaultConfig() BrokerConfig {
	return BrokerConfig{
		Server: ServerConfig{
			Host:              DefaultHost,
			Port:              DefaultPort,
			ReadHeaderTimeout: DefaultReadHeaderTimeout,
			WriteTimeout:      DefaultWriteTimeout,
			IdleTimeout:       DefaultIdleTimeout,
			ShutdownTimeout:   DefaultShutdownTimeout,
		},
		Upstream: UpstreamConfig{
			BaseURL:      DefaultUpstreamBaseURL,
			Scopes:       DefaultUpstreamScopes,
			CallbackPath: DefaultCallbackPath,
			Timeout:      DefaultUpstreamTimeout,
		},
		Storage: StorageConfig{
			Type: StorageMemory,
			SQLite: SQLiteConfig{
				Path: DefaultSQLitePath,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		MCP: MCPConfig{
			Enabled: true,
			Name:    DefaultMCPName,
		},
	}
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
