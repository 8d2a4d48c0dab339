package kv

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyOptions configures the Valkey backend.
type ValkeyOptions struct {
	Address  string
	Password string
	DB       int
	TLS      bool
}

// Valkey stores keys in a Valkey (or Redis compatible) server and relies on
// server-side expiry.
type Valkey struct {
	client valkey.Client
}

// NewValkey connects to the server described by opts.
func NewValkey(opts ValkeyOptions) (*Valkey, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("valkey address is required")
	}

	clientOpts := valkey.ClientOption{
		InitAddress: []string{opts.Address},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	}
	if opts.TLS {
		clientOpts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", opts.Address, err)
	}
	return &Valkey{client: client}, nil
}

// Get implements Store.
func (v *Valkey) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("valkey GET %s: %w", RedactKey(key), err)
	}
	return value, true, nil
}

// Put implements Store.
func (v *Valkey) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var cmd valkey.Completed
	if ttl > 0 {
		cmd = v.client.B().Setex().Key(key).Seconds(ttlSeconds(ttl)).Value(value).Build()
	} else {
		cmd = v.client.B().Set().Key(key).Value(value).Build()
	}
	if err := v.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("valkey SET %s: %w", RedactKey(key), err)
	}
	return nil
}

// Delete implements Store.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	if err := v.client.Do(ctx, v.client.B().Del().Key(key).Build()).Error(); err != nil {
		return fmt.Errorf("valkey DEL %s: %w", RedactKey(key), err)
	}
	return nil
}

// Close implements Store.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}

// ttlSeconds rounds up to whole seconds; SETEX rejects zero.
func ttlSeconds(ttl time.Duration) int64 {
	secs := int64((ttl + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}
