package resolver

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larkgate/internal/kv"
	"larkgate/internal/store"
	"larkgate/internal/upstream"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeRefresher struct {
	mu     sync.Mutex
	calls  []string
	result *upstream.Tokens
	err    error
}

func (f *fakeRefresher) Refresh(_ context.Context, refreshToken string) (*upstream.Tokens, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, refreshToken)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fixture struct {
	store     *store.TokenStore
	clock     clockwork.FakeClock
	refresher *fakeRefresher
	resolver  *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	mem := kv.NewMemory(clock)
	t.Cleanup(func() { mem.Close() })

	s := store.New(mem)
	refresher := &fakeRefresher{result: &upstream.Tokens{
		AccessToken:  "refreshed-access",
		RefreshToken: "refreshed-refresh",
		ExpiresIn:    7200,
	}}
	return &fixture{
		store:     s,
		clock:     clock,
		refresher: refresher,
		resolver:  New(s, refresher, clock),
	}
}

func (f *fixture) link(t *testing.T, user string, expiresIn time.Duration) {
	t.Helper()
	require.NoError(t, f.store.Put(context.Background(), &store.StoredToken{
		AccessToken:  "access-" + user,
		RefreshToken: "refresh-" + user,
		ExpiresAt:    epoch.Add(expiresIn),
		UserID:       user,
	}, ""))
}

func (f *fixture) issue(t *testing.T, token, user string) {
	t.Helper()
	require.NoError(t, f.store.SaveAccessToken(context.Background(), token, &store.GrantRecord{UserKey: user, Scope: "tools"}))
}

func TestResolve_SelfIssuedFreshTokenMakesNoUpstreamCall(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", 2*time.Hour)
	f.issue(t, "selfissued", "ou_1")

	res, err := f.resolver.Resolve(context.Background(), "Bearer selfissued", Options{})
	require.NoError(t, err)

	assert.Equal(t, "access-ou_1", res.AccessToken)
	assert.Equal(t, "ou_1", res.UserKey)
	assert.Equal(t, SourceSelfIssued, res.Source)
	assert.False(t, res.Refreshed)
	assert.Equal(t, 0, f.refresher.count())
}

func TestResolve_StaleTokenRefreshesOnceAndPersists(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", 4*time.Minute) // inside the five minute skew
	f.issue(t, "selfissued", "ou_1")

	res, err := f.resolver.Resolve(context.Background(), "Bearer selfissued", Options{})
	require.NoError(t, err)

	assert.Equal(t, "refreshed-access", res.AccessToken)
	assert.True(t, res.Refreshed)
	assert.Equal(t, []string{"refresh-ou_1"}, f.refresher.calls)

	stored, err := f.store.Lookup(context.Background(), "ou_1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", stored.AccessToken)
	assert.Equal(t, "refreshed-refresh", stored.RefreshToken)
	assert.Equal(t, epoch.Add(2*time.Hour), stored.ExpiresAt)

	// The persisted token is fresh now
	_, err = f.resolver.Resolve(context.Background(), "Bearer selfissued", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.refresher.count())
}

func TestResolve_FreshnessBoundary(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", 10*time.Minute)

	f.clock.Advance(5*time.Minute - time.Second)
	_, err := f.resolver.Resolve(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.Equal(t, 0, f.refresher.count(), "still fresh one second before the skew")

	f.clock.Advance(time.Second)
	_, err = f.resolver.Resolve(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, f.refresher.count(), "refreshed at the skew boundary")
}

func TestResolve_SelfIssuedWithoutLinkedIdentity(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_other", time.Hour)
	f.issue(t, "selfissued", "ou_1")

	_, err := f.resolver.Resolve(context.Background(), "Bearer selfissued", Options{})
	assert.True(t, errors.Is(err, ErrIdentityNotLinked))
}

func TestResolve_UnknownBearerPassesThrough(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", time.Hour)

	res, err := f.resolver.Resolve(context.Background(), "bearer u-manual-token", Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, "u-manual-token", res.AccessToken)
	assert.Equal(t, SourcePassthrough, res.Source)
	assert.Equal(t, 0, f.refresher.count(), "passthrough tokens are never refreshed")
}

func TestResolve_LegacyFallback(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", time.Hour)

	res, err := f.resolver.Resolve(context.Background(), "", Options{})
	require.NoError(t, err)
	assert.Equal(t, "access-ou_1", res.AccessToken)
	assert.Equal(t, SourceLegacy, res.Source)

	res, err = f.resolver.Resolve(context.Background(), "Basic Zm9vOmJhcg==", Options{})
	require.NoError(t, err)
	assert.Equal(t, SourceLegacy, res.Source, "non-bearer schemes count as no bearer")
}

func TestResolve_LegacyRefreshUpdatesBothRecords(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", -time.Minute)

	_, err := f.resolver.Resolve(context.Background(), "", Options{})
	require.NoError(t, err)

	legacy, err := f.store.Legacy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", legacy.AccessToken)

	byID, err := f.store.Lookup(context.Background(), "ou_1")
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", byID.AccessToken)
}

func TestResolve_NothingLinked(t *testing.T) {
	f := newFixture(t)

	_, err := f.resolver.Resolve(context.Background(), "", Options{})
	assert.True(t, errors.Is(err, ErrMissingCredential))
	assert.True(t, IsTokenError(err))
}

func TestResolve_RefreshFailure(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", time.Minute)
	f.refresher.err = upstream.ErrExchangeFailed

	_, err := f.resolver.Resolve(context.Background(), "", Options{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrRefreshFailed))
	assert.Equal(t, "refresh failed, re-authorize", PublicMessage(err))
	assert.Equal(t, 1, f.refresher.count(), "no retry after a failed refresh")

	stored, err := f.store.Lookup(context.Background(), "ou_1")
	require.NoError(t, err)
	assert.Equal(t, "access-ou_1", stored.AccessToken, "stored token untouched")
}

func TestResolve_ForceRefresh(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", 2*time.Hour)
	f.issue(t, "selfissued", "ou_1")

	res, err := f.resolver.Resolve(context.Background(), "Bearer selfissued", Options{ForceRefresh: true})
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", res.AccessToken)
	assert.Equal(t, 1, f.refresher.count())
}

func TestResolve_RefreshKeepsTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", 0)
	f.refresher.result = &upstream.Tokens{AccessToken: "new", ExpiresIn: 60}

	_, err := f.resolver.Resolve(context.Background(), "", Options{})
	require.NoError(t, err)

	stored, err := f.store.Lookup(context.Background(), "ou_1")
	require.NoError(t, err)
	assert.Equal(t, "refresh-ou_1", stored.RefreshToken)
}

func TestAccessor(t *testing.T) {
	f := newFixture(t)
	f.link(t, "ou_1", 2*time.Hour)
	f.issue(t, "selfissued", "ou_1")

	acc := f.resolver.Accessor("Bearer selfissued")

	tok, err := acc.AccessToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "access-ou_1", tok)

	tok, err = acc.AccessToken(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "refreshed-access", tok)

	_, err = f.resolver.Accessor("Bearer selfissued").AccessToken(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, f.refresher.count())
}

func TestIsTokenError(t *testing.T) {
	assert.True(t, IsTokenError(ErrIdentityNotLinked))
	assert.True(t, IsTokenError(errors.Join(ErrRefreshFailed, errors.New("x"))))
	assert.False(t, IsTokenError(errors.New("boom")))
	assert.Equal(t, "boom", PublicMessage(errors.New("boom")))
}

func TestResolve_StorageErrorDoesNotExposeBearer(t *testing.T) {
	ctx := context.Background()
	clock := clockwork.NewFakeClockAt(epoch)
	mem := kv.NewMemory(clock)
	t.Cleanup(func() { mem.Close() })
	require.NoError(t, mem.Put(ctx, "access:SECRET-BEARER-123", "garbage", 0))

	encrypted, err := kv.NewEncrypted(mem, make([]byte, 32))
	require.NoError(t, err)
	r := New(store.New(encrypted), &fakeRefresher{}, clock)

	_, err = r.Resolve(ctx, "Bearer SECRET-BEARER-123", Options{})
	require.Error(t, err)
	assert.False(t, IsTokenError(err))
	assert.NotContains(t, err.Error(), "SECRET-BEARER-123")
}
