package kv

import (
	"context"
	"time"
)

// Prefixed namespaces every key of the wrapped store.
type Prefixed struct {
	inner  Store
	prefix string
}

// WithPrefix wraps s so that all keys are stored as prefix+key. An empty
// prefix returns s unchanged.
func WithPrefix(s Store, prefix string) Store {
	if prefix == "" {
		return s
	}
	return &Prefixed{inner: s, prefix: prefix}
}

func (p *Prefixed) Get(ctx context.Context, key string) (string, bool, error) {
	return p.inner.Get(ctx, p.prefix+key)
}

func (p *Prefixed) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	return p.inner.Put(ctx, p.prefix+key, value, ttl)
}

func (p *Prefixed) Delete(ctx context.Context, key string) error {
	return p.inner.Delete(ctx, p.prefix+key)
}

func (p *Prefixed) Close() error {
	return p.inner.Close()
}
