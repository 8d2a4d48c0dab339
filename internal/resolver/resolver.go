package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"larkgate/internal/store"
	"larkgate/internal/upstream"
	"larkgate/pkg/logging"
	"larkgate/pkg/oauth"
)

// RefreshSkew is how long before expiry a stored token is refreshed.
const RefreshSkew = 5 * time.Minute

var (
	// ErrMissingCredential means no bearer was presented and nothing is linked.
	ErrMissingCredential = errors.New("not authorized")
	// ErrIdentityNotLinked means a self-issued token maps to an identity that
	// has no stored upstream token.
	ErrIdentityNotLinked = errors.New("identity not linked")
	// ErrRefreshFailed means a stale upstream token could not be refreshed.
	ErrRefreshFailed = errors.New("refresh failed, re-authorize")
)

// Source tells where a resolved token came from.
type Source string

const (
	SourceSelfIssued  Source = "self-issued"
	SourcePassthrough Source = "passthrough"
	SourceLegacy      Source = "legacy"
)

// Resolution is a usable upstream access token.
type Resolution struct {
	AccessToken string
	UserKey     string
	Source      Source
	Refreshed   bool
}

// Options tune a single resolution.
type Options struct {
	// ForceRefresh refreshes a stored token even if it is still fresh.
	// Passthrough tokens are returned unchanged.
	ForceRefresh bool
}

// Resolver turns an inbound Authorization header into an upstream token.
//
// Concurrent refreshes of the same identity are not coordinated: each caller
// refreshes and the last write wins.
type Resolver struct {
	store     *store.TokenStore
	refresher upstream.Refresher
	clock     clockwork.Clock
}

// New creates a resolver. A nil clock uses the real clock.
func New(s *store.TokenStore, refresher upstream.Refresher, clock clockwork.Clock) *Resolver {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Resolver{store: s, refresher: refresher, clock: clock}
}

// Resolve runs the resolution chain:
//
//  1. a bearer that is a self-issued access token resolves to its identity's
//     stored token, or ErrIdentityNotLinked;
//  2. any other bearer is passed through as an upstream token;
//  3. no bearer falls back to the legacy token;
//  4. otherwise ErrMissingCredential.
//
// Stored tokens are refreshed and persisted when within RefreshSkew of
// expiry.
func (r *Resolver) Resolve(ctx context.Context, authorization string, opts Options) (*Resolution, error) {
	if bearer, ok := oauth.ExtractBearer(authorization); ok {
		grant, err := r.store.AccessToken(ctx, bearer)
		if err != nil {
			return nil, err
		}
		if grant != nil && grant.UserKey != "" {
			tok, err := r.store.Lookup(ctx, grant.UserKey)
			if err != nil {
				return nil, err
			}
			if tok == nil {
				logging.Warn("Resolver", "Self-issued token maps to unlinked identity %s", grant.UserKey)
				return nil, ErrIdentityNotLinked
			}
			return r.ensureFresh(ctx, tok, grant.UserKey, SourceSelfIssued, opts)
		}

		logging.Debug("Resolver", "Passing bearer %s through to upstream", logging.Redact(bearer))
		return &Resolution{AccessToken: bearer, Source: SourcePassthrough}, nil
	}

	tok, err := r.store.Legacy(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return nil, ErrMissingCredential
	}
	return r.ensureFresh(ctx, tok, tok.UserID, SourceLegacy, opts)
}

func (r *Resolver) ensureFresh(ctx context.Context, tok *store.StoredToken, identityKey string, source Source, opts Options) (*Resolution, error) {
	now := r.clock.Now()
	if !opts.ForceRefresh && now.Before(tok.ExpiresAt.Add(-RefreshSkew)) {
		return &Resolution{AccessToken: tok.AccessToken, UserKey: identityKey, Source: source}, nil
	}

	fresh, err := r.refresher.Refresh(ctx, tok.RefreshToken)
	if err != nil {
		logging.Warn("Resolver", "Refresh for identity %q failed: %v", identityKey, err)
		return nil, fmt.Errorf("%w: %w", ErrRefreshFailed, err)
	}

	updated := *tok
	updated.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		updated.RefreshToken = fresh.RefreshToken
	}
	updated.ExpiresAt = now.Add(time.Duration(fresh.ExpiresIn) * time.Second)

	if err := r.store.Update(ctx, &updated, identityKey); err != nil {
		return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
	}
	logging.Info("Resolver", "Refreshed upstream token for identity %q", identityKey)

	return &Resolution{AccessToken: updated.AccessToken, UserKey: identityKey, Source: source, Refreshed: true}, nil
}

// Accessor binds an Authorization header to the resolver. Tools receive it
// per call instead of sharing a process-wide client.
type Accessor struct {
	resolver      *Resolver
	authorization string
}

// Accessor returns a token accessor for one inbound request.
func (r *Resolver) Accessor(authorization string) *Accessor {
	return &Accessor{resolver: r, authorization: authorization}
}

// AccessToken resolves the upstream token, optionally forcing a refresh.
func (a *Accessor) AccessToken(ctx context.Context, forceRefresh bool) (string, error) {
	res, err := a.resolver.Resolve(ctx, a.authorization, Options{ForceRefresh: forceRefresh})
	if err != nil {
		return "", err
	}
	return res.AccessToken, nil
}

// IsTokenError reports whether err is one of the resolution failures that
// must be answered with 401.
func IsTokenError(err error) bool {
	return errors.Is(err, ErrMissingCredential) ||
		errors.Is(err, ErrIdentityNotLinked) ||
		errors.Is(err, ErrRefreshFailed)
}

// PublicMessage returns the client facing message for a token error.
func PublicMessage(err error) string {
	switch {
	case errors.Is(err, ErrRefreshFailed):
		return ErrRefreshFailed.Error()
	case errors.Is(err, ErrIdentityNotLinked):
		return ErrIdentityNotLinked.Error()
	case errors.Is(err, ErrMissingCredential):
		return ErrMissingCredential.Error()
	default:
		return err.Error()
	}
}
