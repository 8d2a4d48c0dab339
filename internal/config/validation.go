package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// encryptionKeyBytes is the AES-256 key size required by the encrypted store.
const encryptionKeyBytes = 32

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report yaml names instead of Go field names
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks struct constraints and the cross-field rules that tags
// cannot express. It returns a ConfigurationErrorCollection on failure.
func (c BrokerConfig) Validate() error {
	var collection ConfigurationErrorCollection

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			collection.Add(ConfigurationError{
				Field:       trimRootNamespace(fe.Namespace()),
				Source:      "validation",
				Message:     describeFieldError(fe),
				Suggestions: suggestionsFor(fe),
			})
		}
	}

	switch c.Storage.Type {
	case StorageValkey:
		if c.Storage.Valkey.Address == "" {
			collection.Add(ConfigurationError{
				Field:       "storage.valkey.address",
				Source:      "validation",
				Message:     "is required when storage.type is valkey",
				Suggestions: []string{"Set LARKGATE_VALKEY_ADDRESS, for example localhost:6379"},
			})
		}
	case StorageSQLite:
		if c.Storage.SQLite.Path == "" {
			collection.Add(ConfigurationError{
				Field:   "storage.sqlite.path",
				Source:  "validation",
				Message: "is required when storage.type is sqlite",
			})
		}
	}

	if c.Storage.EncryptionKey != "" {
		if key, err := base64.StdEncoding.DecodeString(c.Storage.EncryptionKey); err == nil && len(key) != encryptionKeyBytes {
			collection.Add(ConfigurationError{
				Field:       "storage.encryptionKey",
				Source:      "validation",
				Message:     fmt.Sprintf("must decode to %d bytes, got %d", encryptionKeyBytes, len(key)),
				Suggestions: []string{"Generate one with: openssl rand -base64 32"},
			})
		}
	}

	for _, origin := range c.CORS.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if u, err := url.Parse(origin); err != nil || u.Scheme == "" || u.Host == "" {
			collection.Add(ConfigurationError{
				Field:   "cors.allowedOrigins",
				Source:  "validation",
				Message: fmt.Sprintf("%q is not an origin", origin),
			})
		}
	}

	if collection.HasErrors() {
		return collection
	}
	return nil
}

// EncryptionKeyBytes decodes the configured storage encryption key. It
// returns nil when encryption is disabled.
func (s StorageConfig) EncryptionKeyBytes() ([]byte, error) {
	if s.EncryptionKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(s.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("invalid storage encryption key: %w", err)
	}
	if len(key) != encryptionKeyBytes {
		return nil, fmt.Errorf("storage encryption key must be %d bytes, got %d", encryptionKeyBytes, len(key))
	}
	return key, nil
}

func trimRootNamespace(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %q", fe.Param(), fmt.Sprint(fe.Value()))
	case "url":
		return fmt.Sprintf("must be an absolute URL, got %q", fmt.Sprint(fe.Value()))
	case "min", "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	case "base64":
		return "must be base64 encoded"
	case "hostname_port":
		return "must be host:port"
	default:
		return "is invalid"
	}
}

func suggestionsFor(fe validator.FieldError) []string {
	switch trimRootNamespace(fe.Namespace()) {
	case "upstream.appID":
		return []string{"Set FEISHU_APP_ID or upstream.appID in the config file"}
	case "upstream.appSecret":
		return []string{"Set FEISHU_APP_SECRET or upstream.appSecret in the config file"}
	}
	return nil
}
