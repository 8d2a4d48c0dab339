package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"larkgate/internal/kv"
	"larkgate/pkg/logging"
)

// TokenStore owns every persisted record: linked upstream tokens, pending
// redirects, authorization codes and self-issued tokens. Each key is read and
// written independently.
type TokenStore struct {
	kv kv.Store
}

// New wraps a key-value backend.
func New(backend kv.Store) *TokenStore {
	return &TokenStore{kv: backend}
}

// Close closes the underlying backend.
func (s *TokenStore) Close() error {
	return s.kv.Close()
}

// Get returns the token for identityKey, falling back to the legacy record
// when the identity has none or identityKey is empty. (nil, nil) means
// nothing is linked.
func (s *TokenStore) Get(ctx context.Context, identityKey string) (*StoredToken, error) {
	if identityKey != "" {
		tok, err := s.Lookup(ctx, identityKey)
		if err != nil || tok != nil {
			return tok, err
		}
	}
	return s.Legacy(ctx)
}

// Lookup returns the token stored for identityKey only, without any fallback.
func (s *TokenStore) Lookup(ctx context.Context, identityKey string) (*StoredToken, error) {
	var tok StoredToken
	ok, err := s.getJSON(ctx, tokenKey(identityKey), &tok)
	if err != nil || !ok {
		return nil, err
	}
	return &tok, nil
}

// Legacy returns the most recently linked token, if any.
func (s *TokenStore) Legacy(ctx context.Context) (*StoredToken, error) {
	var tok StoredToken
	ok, err := s.getJSON(ctx, LegacyKey, &tok)
	if err != nil || !ok {
		return nil, err
	}
	return &tok, nil
}

// Put records a freshly linked token under its identity and as the legacy
// record. identityKey defaults to tok.UserID.
func (s *TokenStore) Put(ctx context.Context, tok *StoredToken, identityKey string) error {
	if identityKey == "" {
		identityKey = tok.UserID
	}
	if identityKey != "" {
		if err := s.putJSON(ctx, tokenKey(identityKey), tok, 0); err != nil {
			return err
		}
	}
	if err := s.putJSON(ctx, LegacyKey, tok, 0); err != nil {
		return err
	}
	logging.Debug("Store", "Linked token saved for identity %q", identityKey)
	return nil
}

// Update persists a refreshed token. The per-identity record is always
// written; the legacy record only when it belongs to the same identity, so a
// refresh for one user never displaces the most recently linked user. An
// empty identityKey updates the legacy record alone.
func (s *TokenStore) Update(ctx context.Context, tok *StoredToken, identityKey string) error {
	if identityKey != "" {
		if err := s.putJSON(ctx, tokenKey(identityKey), tok, 0); err != nil {
			return err
		}
	}

	legacy, err := s.Legacy(ctx)
	if err != nil {
		return err
	}
	if identityKey == "" || (legacy != nil && legacy.UserID == tok.UserID) {
		if err := s.putJSON(ctx, LegacyKey, tok, 0); err != nil {
			return err
		}
	}
	return nil
}

// SavePendingRedirect remembers where to send the browser after linking.
func (s *TokenStore) SavePendingRedirect(ctx context.Context, state, next string) error {
	return s.kv.Put(ctx, nextKey(state), next, PendingRedirectTTL)
}

// TakePendingRedirect consumes the redirect saved for state. The second call
// for the same state returns ok=false.
func (s *TokenStore) TakePendingRedirect(ctx context.Context, state string) (string, bool, error) {
	if state == "" {
		return "", false, nil
	}
	return kv.Take(ctx, s.kv, nextKey(state))
}

// SaveAuthorizationCode stores a self-issued code record.
func (s *TokenStore) SaveAuthorizationCode(ctx context.Context, code string, rec *AuthorizationCode) error {
	return s.putJSON(ctx, codeKey(code), rec, AuthorizationCodeTTL)
}

// AuthorizationCode loads a code record; nil when unknown or expired.
func (s *TokenStore) AuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error) {
	var rec AuthorizationCode
	ok, err := s.getJSON(ctx, codeKey(code), &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

// DeleteAuthorizationCode makes a code unusable.
func (s *TokenStore) DeleteAuthorizationCode(ctx context.Context, code string) error {
	return s.kv.Delete(ctx, codeKey(code))
}

// SaveAccessToken stores a self-issued access token.
func (s *TokenStore) SaveAccessToken(ctx context.Context, token string, rec *GrantRecord) error {
	return s.putJSON(ctx, accessKey(token), rec, AccessTokenTTL)
}

// AccessToken resolves a self-issued access token; nil when unknown.
func (s *TokenStore) AccessToken(ctx context.Context, token string) (*GrantRecord, error) {
	return s.grant(ctx, accessKey(token))
}

// SaveRefreshToken stores a self-issued refresh token.
func (s *TokenStore) SaveRefreshToken(ctx context.Context, token string, rec *GrantRecord) error {
	return s.putJSON(ctx, refreshKey(token), rec, RefreshTokenTTL)
}

// RefreshToken resolves a self-issued refresh token; nil when unknown.
func (s *TokenStore) RefreshToken(ctx context.Context, token string) (*GrantRecord, error) {
	return s.grant(ctx, refreshKey(token))
}

func (s *TokenStore) grant(ctx context.Context, key string) (*GrantRecord, error) {
	var rec GrantRecord
	ok, err := s.getJSON(ctx, key, &rec)
	if err != nil || !ok {
		return nil, err
	}
	return &rec, nil
}

func (s *TokenStore) getJSON(ctx context.Context, key string, out any) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", kv.RedactKey(key), err)
	}
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("corrupt record %s: %w", kv.RedactKey(key), err)
	}
	return true, nil
}

func (s *TokenStore) putJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", kv.RedactKey(key), err)
	}
	if err := s.kv.Put(ctx, key, string(data), ttl); err != nil {
		return fmt.Errorf("failed to write %s: %w", kv.RedactKey(key), err)
	}
	return nil
}
