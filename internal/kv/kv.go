package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"larkgate/pkg/logging"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("kv: store closed")

// Store is a string key-value store with optional per-key expiry.
//
// A missing or expired key is reported as ok=false with a nil error. A ttl
// of zero means the key never expires. Implementations must be safe for
// concurrent use; there are no cross-key transactions.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Put(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Take reads a key and deletes it. It is used for single-use records.
// Two concurrent callers may both observe the value; backends do not offer
// an atomic get-and-delete across all implementations.
func Take(ctx context.Context, s Store, key string) (string, bool, error) {
	value, ok, err := s.Get(ctx, key)
	if err != nil || !ok {
		return "", false, err
	}
	if err := s.Delete(ctx, key); err != nil {
		return "", false, err
	}
	return value, true, nil
}

// RedactKey hides the part of key after its last colon, where keys such as
// access:<token> and code:<code> carry their secret. Backends use it in error
// messages.
func RedactKey(key string) string {
	i := strings.LastIndexByte(key, ':')
	if i < 0 {
		return logging.Redact(key)
	}
	return key[:i+1] + logging.Redact(key[i+1:])
}
