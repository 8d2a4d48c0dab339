package config

import "time"

// BrokerConfig is the top-level configuration structure for larkgate.
type BrokerConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Upstream UpstreamConfig `yaml:"upstream"`
	OAuth    OAuthConfig    `yaml:"oauth"`
	Storage  StorageConfig  `yaml:"storage"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
	MCP      MCPConfig      `yaml:"mcp"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host string `yaml:"host" validate:"required"`
	Port int    `yaml:"port" validate:"min=1,max=65535"`

	// PublicURL is the externally reachable base URL, used to build the
	// upstream callback and the absolute "next" URL of the authorize flow.
	// When empty it is derived from the inbound request.
	PublicURL string `yaml:"publicURL,omitempty" validate:"omitempty,url"`

	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout" validate:"gte=0"`
	WriteTimeout      time.Duration `yaml:"writeTimeout" validate:"gte=0"`
	IdleTimeout       time.Duration `yaml:"idleTimeout" validate:"gte=0"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" validate:"gte=0"`
}

// UpstreamConfig describes the Feishu/Lark open platform.
type UpstreamConfig struct {
	BaseURL   string `yaml:"baseURL" validate:"required,url"`
	AppID     string `yaml:"appID" validate:"required"`
	AppSecret string `yaml:"appSecret" validate:"required"`

	// Scopes is the space separated scope list requested during linking.
	Scopes       string        `yaml:"scopes"`
	CallbackPath string        `yaml:"callbackPath" validate:"required,startswith=/"`
	Timeout      time.Duration `yaml:"timeout" validate:"gte=0"`
}

// OAuthConfig configures the self-issued authorization server.
type OAuthConfig struct {
	// ClientID is used when an authorize request omits client_id.
	ClientID string `yaml:"clientID,omitempty"`
	// ClientSecret, when set, must match any client_secret presented at the
	// token endpoint.
	ClientSecret string `yaml:"clientSecret,omitempty"`
}

// Storage backends.
const (
	StorageMemory = "memory"
	StorageValkey = "valkey"
	StorageSQLite = "sqlite"
)

// StorageConfig selects and configures the key-value backend.
type StorageConfig struct {
	Type      string `yaml:"type" validate:"oneof=memory valkey sqlite"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`

	// EncryptionKey is a base64 encoded 32 byte AES key. When set, stored
	// values are encrypted at rest.
	EncryptionKey string `yaml:"encryptionKey,omitempty" validate:"omitempty,base64"`

	Valkey ValkeyConfig `yaml:"valkey,omitempty"`
	SQLite SQLiteConfig `yaml:"sqlite,omitempty"`
}

// ValkeyConfig holds connection settings for a Valkey or Redis server.
type ValkeyConfig struct {
	Address  string `yaml:"address,omitempty" validate:"omitempty,hostname_port"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty" validate:"gte=0"`
	TLS      bool   `yaml:"tls,omitempty"`
}

// SQLiteConfig points at the database file of the sqlite backend.
type SQLiteConfig struct {
	Path string `yaml:"path,omitempty"`
}

// CORSConfig lists the origins allowed to call the gateway from a browser.
// An empty list or a "*" entry allows every origin.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// LoggingConfig configures pkg/logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// MCPConfig toggles the MCP transports.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Name    string `yaml:"name,omitempty"`
}

// Address returns host:port for the listener.
func (s ServerConfig) Address() string {
	return joinHostPort(s.Host, s.Port)
}
