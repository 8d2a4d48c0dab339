package kv

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"larkgate/pkg/logging"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

type memoryEntry struct {
	value     string
	expiresAt time.Time // zero means no expiry
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// Memory is an in-process Store. Entries are lost on restart.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	clock   clockwork.Clock

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewMemory creates an in-memory store and starts its background sweeper.
// A nil clock uses the real clock.
func NewMemory(clock clockwork.Clock) *Memory {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	m := &Memory{
		entries:     make(map[string]memoryEntry),
		clock:       clock,
		stopCleanup: make(chan struct{}),
	}
	go m.cleanupLoop(DefaultCleanupInterval)
	return m
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok {
		return "", false, nil
	}
	if entry.expired(m.clock.Now()) {
		m.mu.Lock()
		// Re-check under the write lock; a concurrent Put may have replaced it
		if cur, ok := m.entries[key]; ok && cur.expired(m.clock.Now()) {
			delete(m.entries, key)
		}
		m.mu.Unlock()
		return "", false, nil
	}
	return entry.value, true, nil
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = m.clock.Now().Add(ttl)
	}

	m.mu.Lock()
	m.entries[key] = entry
	m.mu.Unlock()
	return nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.entries, key)
	m.mu.Unlock()
	return nil
}

// Close stops the background sweeper. The data stays readable.
func (m *Memory) Close() error {
	m.stopOnce.Do(func() { close(m.stopCleanup) })
	return nil
}

// Len returns the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *Memory) cleanupLoop(interval time.Duration) {
	ticker := m.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			m.cleanup()
		case <-m.stopCleanup:
			return
		}
	}
}

// cleanup removes all expired entries from the store.
func (m *Memory) cleanup() {
	now := m.clock.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, entry := range m.entries {
		if entry.expired(now) {
			delete(m.entries, key)
			count++
		}
	}

	if count > 0 {
		logging.Debug("Store", "Cleaned up %d expired entries", count)
	}
}
