package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"larkgate/pkg/logging"
)

const (
	userConfigDir  = ".config/larkgate"
	configFileName = "config.yaml"
	dotEnvFileName = ".env"
)

// DefaultConfigPath returns ~/.config/larkgate/config.yaml, or an empty
// string when the home directory cannot be determined.
func DefaultConfigPath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(homeDir, userConfigDir, configFileName)
}

// LoadConfig builds the effective configuration: defaults, then the yaml
// file at configPath, then a .env file in the working directory, then the
// process environment. A missing yaml or .env file is not an error.
func LoadConfig(configPath string) (BrokerConfig, error) {
	return load(configPath, os.Getwd, os.Getenv)
}

func load(configPath string, getwd func() (string, error), getenv func(string) string) (BrokerConfig, error) {
	cfg := GetDefaultConfig()

	if configPath != "" {
		if err := cfg.LoadFile(configPath); err != nil {
			return BrokerConfig{}, err
		}
	}
	if err := cfg.LoadDotEnv(getwd); err != nil {
		return BrokerConfig{}, fmt.Errorf("error loading %s: %w", dotEnvFileName, err)
	}
	if err := cfg.LoadEnv(getenv); err != nil {
		return BrokerConfig{}, err
	}
	return cfg, nil
}

// LoadFile overlays the yaml file at path onto c.
func (c *BrokerConfig) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("Config", "No config file found at %s, using defaults", path)
			return nil
		}
		return fmt.Errorf("error reading config from %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("error loading config from %s: %w", path, err)
	}
	logging.Info("Config", "Loaded configuration from %s", path)
	return nil
}

// LoadDotEnv applies variables from the .env file in the working directory.
func (c *BrokerConfig) LoadDotEnv(getwd func() (string, error)) error {
	wd, err := getwd()
	if err != nil {
		return err
	}

	envMap, err := godotenv.Read(filepath.Join(wd, dotEnvFileName))
	switch {
	case err == nil:
		return c.LoadEnv(func(key string) string {
			return envMap[key]
		})
	case errors.Is(err, os.ErrNotExist):
		return nil
	default:
		return err
	}
}

// LoadEnv applies recognised environment variables. Empty values are ignored.
func (c *BrokerConfig) LoadEnv(getenv func(string) string) error {
	setString := func(o *string) func(string) error {
		return func(value string) error {
			*o = value
			return nil
		}
	}
	setInt := func(name string, o *int) func(string) error {
		return func(value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return ConfigurationError{
					Field:   name,
					Source:  "env",
					Message: fmt.Sprintf("expected an integer, got %q", value),
				}
			}
			*o = n
			return nil
		}
	}
	setList := func(o *[]string) func(string) error {
		return func(value string) error {
			*o = SplitList(value)
			return nil
		}
	}

	envMap := map[string]func(string) error{
		"FEISHU_APP_ID":               setString(&c.Upstream.AppID),
		"FEISHU_APP_SECRET":           setString(&c.Upstream.AppSecret),
		"FEISHU_BASE_URL":             setString(&c.Upstream.BaseURL),
		"ACTIONS_OAUTH_CLIENT_ID":     setString(&c.OAuth.ClientID),
		"ACTIONS_OAUTH_CLIENT_SECRET": setString(&c.OAuth.ClientSecret),
		"ALLOWED_ORIGINS":             setList(&c.CORS.AllowedOrigins),
		"LOG_LEVEL":                   setString(&c.Logging.Level),
		"LOG_FORMAT":                  setString(&c.Logging.Format),
		"LARKGATE_HOST":               setString(&c.Server.Host),
		"LARKGATE_PORT":               setInt("LARKGATE_PORT", &c.Server.Port),
		"LARKGATE_PUBLIC_URL":         setString(&c.Server.PublicURL),
		"LARKGATE_STORAGE_TYPE":       setString(&c.Storage.Type),
		"LARKGATE_KEY_PREFIX":         setString(&c.Storage.KeyPrefix),
		"LARKGATE_ENCRYPTION_KEY":     setString(&c.Storage.EncryptionKey),
		"LARKGATE_VALKEY_ADDRESS":     setString(&c.Storage.Valkey.Address),
		"LARKGATE_VALKEY_PASSWORD":    setString(&c.Storage.Valkey.Password),
		"LARKGATE_SQLITE_PATH":        setString(&c.Storage.SQLite.Path),
	}

	for key, apply := range envMap {
		value := strings.TrimSpace(getenv(key))
		if value == "" {
			continue
		}
		if err := apply(value); err != nil {
			return err
		}
	}
	return nil
}

// SplitList splits a comma separated list, dropping blanks.
func SplitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
