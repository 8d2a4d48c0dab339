package bridge

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"larkgate/internal/kv"
	"larkgate/internal/store"
	"larkgate/internal/upstream"
	"larkgate/pkg/oauth"
)

const (
	testBase     = "https://gate.example.com"
	testRedirect = "https://client.example.com/cb"
)

var epoch = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type fakeLinker struct {
	exchangeErr  error
	userInfoErr  error
	userInfo     *upstream.UserInfo
	exchangedFor string
}

func (f *fakeLinker) AuthorizeURL(redirectURI, scope, state string) string {
	q := url.Values{"redirect_uri": {redirectURI}, "state": {state}}
	return "https://upstream.example.com/authorize?" + q.Encode()
}

func (f *fakeLinker) ExchangeCode(_ context.Context, code, redirectURI string) (*upstream.Tokens, error) {
	f.exchangedFor = redirectURI
	if f.exchangeErr != nil {
		return nil, f.exchangeErr
	}
	return &upstream.Tokens{AccessToken: "u-at-" + code, RefreshToken: "u-rt-" + code, ExpiresIn: 7200}, nil
}

func (f *fakeLinker) FetchUserInfo(context.Context, string) (*upstream.UserInfo, error) {
	if f.userInfoErr != nil {
		return nil, f.userInfoErr
	}
	return f.userInfo, nil
}

type fixture struct {
	bridge *Bridge
	store  *store.TokenStore
	linker *fakeLinker
	clock  clockwork.FakeClock
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(epoch)
	mem := kv.NewMemory(clock)
	t.Cleanup(func() { mem.Close() })

	s := store.New(mem)
	linker := &fakeLinker{userInfo: &upstream.UserInfo{UserID: "ou_alice", Name: "Alice", Email: "alice@example.com"}}
	return &fixture{
		bridge: New(s, linker, cfg, clock),
		store:  s,
		linker: linker,
		clock:  clock,
	}
}

func linkedRequest(pkce *oauth.PKCEChallenge) AuthorizeRequest {
	req := AuthorizeRequest{
		ResponseType: "code",
		ClientID:     "client-1",
		RedirectURI:  testRedirect,
		State:        "xyz",
		Linked:       true,
		UserKey:      "ou_alice",
		BaseURL:      testBase,
		CurrentURL:   testBase + "/oauth/authorize?response_type=code",
	}
	if pkce != nil {
		req.CodeChallenge = pkce.CodeChallenge
		req.CodeChallengeMethod = "s256"
	}
	return req
}

func codeFrom(t *testing.T, location string) string {
	t.Helper()
	u, err := url.Parse(location)
	require.NoError(t, err)
	code := u.Query().Get("code")
	require.Len(t, code, oauth.CodeLength)
	return code
}

func TestAuthorize_Validation(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.bridge.Authorize(ctx, AuthorizeRequest{ResponseType: "token", ClientID: "c", RedirectURI: testRedirect})
	assert.ErrorIs(t, err, ErrUnsupportedResponseType)

	_, err = f.bridge.Authorize(ctx, AuthorizeRequest{ResponseType: "code", RedirectURI: testRedirect})
	assert.ErrorIs(t, err, ErrMissingParameter)

	_, err = f.bridge.Authorize(ctx, AuthorizeRequest{ResponseType: "code", ClientID: "c"})
	assert.ErrorIs(t, err, ErrMissingParameter)

	req := linkedRequest(nil)
	req.CodeChallenge = "abc"
	req.CodeChallengeMethod = "S512"
	_, err = f.bridge.Authorize(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestAuthorize_ClientIDFallsBackToConfig(t *testing.T) {
	f := newFixture(t, Config{ClientID: " configured "})
	req := linkedRequest(nil)
	req.ClientID = ""

	location, err := f.bridge.Authorize(context.Background(), req)
	require.NoError(t, err)

	rec, err := f.store.AuthorizationCode(context.Background(), codeFrom(t, location))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "configured", rec.ClientID)
}

func TestAuthorize_UnlinkedRedirectsToLinking(t *testing.T) {
	f := newFixture(t, Config{})
	req := linkedRequest(nil)
	req.Linked = false

	location, err := f.bridge.Authorize(context.Background(), req)
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "/auth", u.Path)
	assert.Equal(t, req.CurrentURL, u.Query().Get("next"))

	req.Linked = true
	req.UserKey = ""
	location, err = f.bridge.Authorize(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, location, testBase+"/auth?next=")
}

func TestAuthorize_IssuesCode(t *testing.T) {
	f := newFixture(t, Config{})
	pkce := oauth.GeneratePKCE()

	location, err := f.bridge.Authorize(context.Background(), linkedRequest(pkce))
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, "client.example.com", u.Host)
	assert.Equal(t, "xyz", u.Query().Get("state"))

	rec, err := f.store.AuthorizationCode(context.Background(), codeFrom(t, location))
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "ou_alice", rec.UserKey)
	assert.Equal(t, DefaultScope, rec.Scope)
	assert.Equal(t, oauth.MethodS256, rec.CodeChallengeMethod)
}

func TestAuthorize_CodeExpires(t *testing.T) {
	f := newFixture(t, Config{})
	location, err := f.bridge.Authorize(context.Background(), linkedRequest(nil))
	require.NoError(t, err)

	f.clock.Advance(store.AuthorizationCodeTTL + time.Second)

	_, err = f.bridge.Token(context.Background(), TokenRequest{
		GrantType:   GrantAuthorizationCode,
		Code:        codeFrom(t, location),
		RedirectURI: testRedirect,
	})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestToken_AuthorizationCodeFlow(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()
	pkce := oauth.GeneratePKCE()

	location, err := f.bridge.Authorize(ctx, linkedRequest(pkce))
	require.NoError(t, err)
	code := codeFrom(t, location)

	resp, err := f.bridge.Token(ctx, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: pkce.CodeVerifier,
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer", resp.TokenType)
	assert.Len(t, resp.AccessToken, oauth.AccessTokenLength)
	assert.Len(t, resp.RefreshToken, oauth.RefreshTokenLength)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, DefaultScope, resp.Scope)

	grant, err := f.store.AccessToken(ctx, resp.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, grant)
	assert.Equal(t, "ou_alice", grant.UserKey)

	// single use
	_, err = f.bridge.Token(ctx, TokenRequest{
		GrantType:    GrantAuthorizationCode,
		Code:         code,
		RedirectURI:  testRedirect,
		CodeVerifier: pkce.CodeVerifier,
	})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestToken_AuthorizationCodeFailures(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*TokenRequest)
		wantErr error
	}{
		{"unknown code", func(r *TokenRequest) { r.Code = "nope" }, ErrInvalidGrant},
		{"redirect mismatch", func(r *TokenRequest) { r.RedirectURI = "https://evil.example.com/cb" }, ErrRedirectURIMismatch},
		{"missing redirect", func(r *TokenRequest) { r.RedirectURI = "" }, ErrRedirectURIMismatch},
		{"wrong verifier", func(r *TokenRequest) { r.CodeVerifier = "not-the-verifier" }, ErrPKCEVerificationFailed},
		{"missing verifier", func(r *TokenRequest) { r.CodeVerifier = "" }, ErrPKCEVerificationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, Config{})
			ctx := context.Background()
			pkce := oauth.GeneratePKCE()
			location, err := f.bridge.Authorize(ctx, linkedRequest(pkce))
			require.NoError(t, err)

			req := TokenRequest{
				GrantType:    GrantAuthorizationCode,
				Code:         codeFrom(t, location),
				RedirectURI:  testRedirect,
				CodeVerifier: pkce.CodeVerifier,
			}
			tt.mutate(&req)

			_, err = f.bridge.Token(ctx, req)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrInvalidGrant)

			var oerr *OAuthError
			require.True(t, errors.As(err, &oerr))
			assert.Equal(t, 400, oerr.Status)
		})
	}
}

func TestToken_RefreshReusesRefreshToken(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	location, err := f.bridge.Authorize(ctx, linkedRequest(nil))
	require.NoError(t, err)
	first, err := f.bridge.Token(ctx, TokenRequest{GrantType: GrantAuthorizationCode, Code: codeFrom(t, location), RedirectURI: testRedirect})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		next, err := f.bridge.Token(ctx, TokenRequest{GrantType: GrantRefreshToken, RefreshToken: first.RefreshToken})
		require.NoError(t, err)
		assert.Equal(t, first.RefreshToken, next.RefreshToken)
		assert.NotEqual(t, first.AccessToken, next.AccessToken)

		grant, err := f.store.AccessToken(ctx, next.AccessToken)
		require.NoError(t, err)
		require.NotNil(t, grant)
		assert.Equal(t, "ou_alice", grant.UserKey)
	}

	_, err = f.bridge.Token(ctx, TokenRequest{GrantType: GrantRefreshToken, RefreshToken: "unknown"})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestToken_UnsupportedGrant(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.bridge.Token(context.Background(), TokenRequest{GrantType: "client_credentials"})
	assert.ErrorIs(t, err, ErrUnsupportedGrantType)
}

func TestToken_ClientSecret(t *testing.T) {
	f := newFixture(t, Config{ClientSecret: "s3cret"})
	ctx := context.Background()

	_, err := f.bridge.Token(ctx, TokenRequest{GrantType: GrantRefreshToken, RefreshToken: "x", ClientSecret: "wrong"})
	assert.ErrorIs(t, err, ErrInvalidClient)

	// an absent secret is not checked
	_, err = f.bridge.Token(ctx, TokenRequest{GrantType: GrantRefreshToken, RefreshToken: "x"})
	assert.ErrorIs(t, err, ErrInvalidGrant)
}

func TestStartLink(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	location, err := f.bridge.StartLink(ctx, testBase, "https://gate.example.com/oauth/authorize?x=1")
	require.NoError(t, err)

	u, err := url.Parse(location)
	require.NoError(t, err)
	assert.Equal(t, testBase+"/auth/callback", u.Query().Get("redirect_uri"))
	state := u.Query().Get("state")
	assert.Len(t, state, oauth.StateLength)

	next, ok, err := f.store.TakePendingRedirect(ctx, state)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "https://gate.example.com/oauth/authorize?x=1", next)

	_, err = f.bridge.StartLink(ctx, testBase, "javascript:alert(1)")
	var lerr *LinkError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 400, lerr.Status)
}

func TestCompleteLink_WithNext(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	location, err := f.bridge.StartLink(ctx, testBase, testBase+"/oauth/authorize?response_type=code&linked=0")
	require.NoError(t, err)
	u, _ := url.Parse(location)
	state := u.Query().Get("state")

	res, err := f.bridge.CompleteLink(ctx, testBase, "c1", state)
	require.NoError(t, err)
	assert.Equal(t, testBase+"/auth/callback", f.linker.exchangedFor)

	r, err := url.Parse(res.Redirect)
	require.NoError(t, err)
	assert.Equal(t, "/oauth/authorize", r.Path)
	assert.Equal(t, "1", r.Query().Get("linked"))
	assert.Equal(t, "ou_alice", r.Query().Get("userKey"))
	assert.Equal(t, "code", r.Query().Get("response_type"))

	tok, err := f.store.Lookup(ctx, "ou_alice")
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "u-at-c1", tok.AccessToken)
	assert.Equal(t, epoch.Add(2*time.Hour), tok.ExpiresAt)

	legacy, err := f.store.Legacy(ctx)
	require.NoError(t, err)
	require.NotNil(t, legacy)
	assert.Equal(t, "ou_alice", legacy.UserID)

	// pending redirects are single use
	res, err = f.bridge.CompleteLink(ctx, testBase, "c2", state)
	require.NoError(t, err)
	assert.Empty(t, res.Redirect)
}

func TestCompleteLink_Failures(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	_, err := f.bridge.CompleteLink(ctx, testBase, "", "s")
	var lerr *LinkError
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, "missing code", lerr.Message)

	f.linker.exchangeErr = upstream.ErrExchangeFailed
	_, err = f.bridge.CompleteLink(ctx, testBase, "c", "s")
	require.True(t, errors.As(err, &lerr))
	assert.Equal(t, 500, lerr.Status)
	assert.Equal(t, "token exchange failed", lerr.Message)
	assert.ErrorIs(t, err, upstream.ErrExchangeFailed)
}

func TestCompleteLink_ProfileFailureIsIgnored(t *testing.T) {
	f := newFixture(t, Config{})
	f.linker.userInfoErr = errors.New("profile unavailable")

	res, err := f.bridge.CompleteLink(context.Background(), testBase, "c1", "")
	require.NoError(t, err)
	assert.Empty(t, res.Token.UserID)
	assert.Equal(t, "", res.DisplayName())

	legacy, err := f.store.Legacy(context.Background())
	require.NoError(t, err)
	require.NotNil(t, legacy)
	assert.Equal(t, "u-at-c1", legacy.AccessToken)
}

func TestCompleteLink_ProfileFailureWithNextDoesNotLoop(t *testing.T) {
	f := newFixture(t, Config{})
	f.linker.userInfoErr = errors.New("profile unavailable")
	ctx := context.Background()

	location, err := f.bridge.StartLink(ctx, testBase, testBase+"/oauth/authorize?response_type=code")
	require.NoError(t, err)
	u, _ := url.Parse(location)

	res, err := f.bridge.CompleteLink(ctx, testBase, "c1", u.Query().Get("state"))
	assert.Nil(t, res)
	var lerr *LinkError
	require.ErrorAs(t, err, &lerr)
	assert.ErrorIs(t, err, ErrUnidentifiedAccount)
	assert.Equal(t, http.StatusBadGateway, lerr.Status)

	// the credential is still usable through the legacy record
	legacy, err := f.store.Legacy(ctx)
	require.NoError(t, err)
	require.NotNil(t, legacy)
	assert.Equal(t, "u-at-c1", legacy.AccessToken)
}

func TestStatus(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	st, err := f.bridge.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.OK)
	assert.False(t, st.Authorized)
	assert.NotEmpty(t, st.Message)

	_, err = f.bridge.CompleteLink(ctx, testBase, "c1", "")
	require.NoError(t, err)

	f.clock.Advance(90 * time.Minute)
	st, err = f.bridge.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Authorized)
	assert.Equal(t, "Alice", st.User.Name)
	assert.Equal(t, "1800s", st.Token.ExpiresIn)
	assert.False(t, st.Token.Expired)
	assert.True(t, st.Token.WillAutoRefresh)

	f.clock.Advance(time.Hour)
	st, err = f.bridge.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, "0s", st.Token.ExpiresIn)
	assert.True(t, st.Token.Expired)
}

func TestOAuthError_Is(t *testing.T) {
	assert.True(t, errors.Is(ErrPKCEVerificationFailed, ErrInvalidGrant))
	assert.False(t, errors.Is(ErrInvalidGrant, ErrPKCEVerificationFailed))
	assert.False(t, errors.Is(ErrUnsupportedGrantType, ErrInvalidGrant))
	assert.Equal(t, "invalid_grant: PKCE verification failed", ErrPKCEVerificationFailed.Error())
}
