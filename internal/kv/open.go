package kv

import (
	"fmt"

	"github.com/jonboulle/clockwork"

	"larkgate/internal/config"
	"larkgate/pkg/logging"
)

// Open builds the Store described by cfg: the selected backend, then key
// prefixing, then encryption at rest when a key is configured.
func Open(cfg config.StorageConfig, clock clockwork.Clock) (Store, error) {
	var (
		store Store
		err   error
	)

	switch cfg.Type {
	case config.StorageMemory, "":
		store = NewMemory(clock)
		logging.Info("Store", "Using in-memory storage backend")
	case config.StorageValkey:
		store, err = NewValkey(ValkeyOptions{
			Address:  cfg.Valkey.Address,
			Password: cfg.Valkey.Password,
			DB:       cfg.Valkey.DB,
			TLS:      cfg.Valkey.TLS,
		})
		if err != nil {
			return nil, err
		}
		logging.Info("Store", "Using Valkey storage backend at %s", cfg.Valkey.Address)
	case config.StorageSQLite:
		store, err = NewSQLite(cfg.SQLite.Path, clock)
		if err != nil {
			return nil, err
		}
		logging.Info("Store", "Using SQLite storage backend at %s", cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (supported: %s, %s, %s)",
			cfg.Type, config.StorageMemory, config.StorageValkey, config.StorageSQLite)
	}

	store = WithPrefix(store, cfg.KeyPrefix)

	key, err := cfg.EncryptionKeyBytes()
	if err != nil {
		store.Close()
		return nil, err
	}
	if key != nil {
		encrypted, err := NewEncrypted(store, key)
		if err != nil {
			store.Close()
			return nil, err
		}
		logging.Info("Store", "Encryption at rest enabled (AES-256-GCM)")
		return encrypted, nil
	}
	return store, nil
}
