package kv

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite"

	"larkgate/pkg/logging"
)

//go:embed schema/sqlite.sql
var sqliteSchema string

// SQLite is a file-backed Store. Expiry is stored as unix milliseconds and
// enforced on read; a background sweeper deletes stale rows.
type SQLite struct {
	db    *sql.DB
	clock clockwork.Clock

	stopCleanup chan struct{}
	stopOnce    sync.Once
}

// NewSQLite opens (creating if needed) the database at path.
func NewSQLite(path string, clock clockwork.Clock) (*SQLite, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db, clock: clock, stopCleanup: make(chan struct{})}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	go s.cleanupLoop(DefaultCleanupInterval)
	return s, nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, key string) (string, bool, error) {
	var (
		value     string
		expiresAt sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM kv_entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read %s: %w", RedactKey(key), err)
	}

	if expiresAt.Valid && s.clock.Now().UnixMilli() >= expiresAt.Int64 {
		if _, err := s.db.ExecContext(ctx,
			`DELETE FROM kv_entries WHERE key = ? AND expires_at = ?`, key, expiresAt.Int64,
		); err != nil {
			logging.Warn("Store", "Failed to delete expired key: %v", err)
		}
		return "", false, nil
	}
	return value, true, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt sql.NullInt64
	if ttl > 0 {
		expiresAt = sql.NullInt64{Int64: s.clock.Now().Add(ttl).UnixMilli(), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at
	`, key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", RedactKey(key), err)
	}
	return nil
}

// Delete implements Store.
func (s *SQLite) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv_entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", RedactKey(key), err)
	}
	return nil
}

// Close stops the sweeper and closes the database.
func (s *SQLite) Close() error {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	return s.db.Close()
}

// Sweep deletes every expired row and returns how many were removed.
func (s *SQLite) Sweep(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_entries WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		s.clock.Now().UnixMilli(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLite) cleanupLoop(interval time.Duration) {
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			n, err := s.Sweep(context.Background())
			if err != nil {
				logging.Warn("Store", "Failed to sweep expired rows: %v", err)
				continue
			}
			if n > 0 {
				logging.Debug("Store", "Cleaned up %d expired rows", n)
			}
		case <-s.stopCleanup:
			return
		}
	}
}
