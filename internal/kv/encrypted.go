package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/giantswarm/mcp-oauth/security"
)

// Encrypted encrypts values with AES-256-GCM before they reach the wrapped
// store. Keys stay in plaintext so lookups keep working.
type Encrypted struct {
	inner     Store
	encryptor *security.Encryptor
}

// NewEncrypted wraps s with encryption at rest using a 32 byte key.
func NewEncrypted(s Store, key []byte) (*Encrypted, error) {
	encryptor, err := security.NewEncryptor(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create encryptor: %w", err)
	}
	return &Encrypted{inner: s, encryptor: encryptor}, nil
}

func (e *Encrypted) Get(ctx context.Context, key string) (string, bool, error) {
	ciphertext, ok, err := e.inner.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plaintext, err := e.encryptor.Decrypt(ciphertext)
	if err != nil {
		return "", false, fmt.Errorf("failed to decrypt %s: %w", RedactKey(key), err)
	}
	return plaintext, true, nil
}

func (e *Encrypted) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	ciphertext, err := e.encryptor.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", RedactKey(key), err)
	}
	return e.inner.Put(ctx, key, ciphertext, ttl)
}

func (e *Encrypted) Delete(ctx context.Context, key string) error {
	return e.inner.Delete(ctx, key)
}

func (e *Encrypted) Close() error {
	return e.inner.Close()
}
