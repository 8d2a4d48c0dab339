package bridge

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	"larkgate/internal/store"
	"larkgate/internal/upstream"
	"larkgate/pkg/logging"
	"larkgate/pkg/oauth"
)

// DefaultScope is granted when an authorize request names none.
const DefaultScope = "tools"

// Linker is the slice of the upstream client the linking flow needs.
type Linker interface {
	upstream.Exchanger
	AuthorizeURL(redirectURI, scope, state string) string
	FetchUserInfo(ctx context.Context, accessToken string) (*upstream.UserInfo, error)
}

// Config carries the static settings of a Bridge.
type Config struct {
	// ClientID is used when an authorize request omits client_id.
	ClientID string
	// ClientSecret, when set, is checked against a client_secret presented
	// at the token endpoint.
	ClientSecret string
	// CallbackPath is where the upstream provider returns the browser.
	CallbackPath string
}

// Bridge issues its own OAuth credentials to clients and links them to
// upstream identities.
type Bridge struct {
	store    *store.TokenStore
	upstream Linker
	cfg      Config
	clock    clockwork.Clock
}

// New creates a Bridge.
func New(s *store.TokenStore, linker Linker, cfg Config, clock clockwork.Clock) *Bridge {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.CallbackPath == "" {
		cfg.CallbackPath = "/auth/callback"
	}
	return &Bridge{store: s, upstream: linker, cfg: cfg, clock: clock}
}

// AuthorizeRequest is an incoming authorization-code request.
type AuthorizeRequest struct {
	ResponseType        string
	ClientID            string
	RedirectURI         string
	Scope               string
	State               string
	CodeChallenge       string
	CodeChallengeMethod string

	// Linked and UserKey are set when the browser returns from linking.
	Linked  bool
	UserKey string

	// BaseURL is the public origin of this service. CurrentURL is the full
	// URL of the request being served.
	BaseURL    string
	CurrentURL string
}

// Authorize validates req and returns where to send the browser: either the
// linking page, when no identity is attached yet, or the client's
// redirect_uri carrying a fresh code.
func (b *Bridge) Authorize(ctx context.Context, req AuthorizeRequest) (string, error) {
	if req.ResponseType != "code" {
		return "", ErrUnsupportedResponseType.withDescription("unsupported response_type")
	}

	clientID := strings.TrimSpace(req.ClientID)
	if clientID == "" {
		clientID = strings.TrimSpace(b.cfg.ClientID)
	}
	if clientID == "" || req.RedirectURI == "" {
		return "", ErrMissingParameter
	}

	method, err := oauth.ValidateChallengeMethod(req.CodeChallengeMethod)
	if err != nil && req.CodeChallenge != "" {
		return "", ErrInvalidRequest.withDescription(err.Error())
	}

	if !req.Linked || req.UserKey == "" {
		return strings.TrimRight(req.BaseURL, "/") + "/auth?next=" + url.QueryEscape(req.CurrentURL), nil
	}

	redirect, err := url.Parse(req.RedirectURI)
	if err != nil || !redirect.IsAbs() {
		return "", ErrInvalidRequest.withDescription("redirect_uri must be an absolute URL")
	}

	scope := req.Scope
	if scope == "" {
		scope = DefaultScope
	}

	code, err := oauth.RandomToken(oauth.CodeLength)
	if err != nil {
		return "", err
	}
	rec := &store.AuthorizationCode{
		UserKey:             req.UserKey,
		ClientID:            clientID,
		RedirectURI:         req.RedirectURI,
		Scope:               scope,
		CodeChallenge:       req.CodeChallenge,
		CodeChallengeMethod: method,
		IssuedAt:            b.clock.Now(),
	}
	if err := b.store.SaveAuthorizationCode(ctx, code, rec); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}
	logging.Debug("Bridge", "Issued authorization code %s for client %s", logging.Redact(code), clientID)

	q := redirect.Query()
	q.Set("code", code)
	if req.State != "" {
		q.Set("state", req.State)
	}
	redirect.RawQuery = q.Encode()
	return redirect.String(), nil
}

// Grant types accepted by Token.
const (
	GrantAuthorizationCode = "authorization_code"
	GrantRefreshToken      = "refresh_token"
)

// TokenRequest is a token endpoint request.
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	CodeVerifier string
	RefreshToken string
	ClientID     string
	ClientSecret string
}

// TokenResponse is the successful token endpoint body.
type TokenResponse struct {
	TokenType    string `json:"token_type"`
	AccessToken  string `json:"access_token"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
}

// Token redeems an authorization code or a refresh token.
func (b *Bridge) Token(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	if b.cfg.ClientSecret != "" && req.ClientSecret != "" && req.ClientSecret != b.cfg.ClientSecret {
		return nil, ErrInvalidClient.withDescription("client authentication failed")
	}

	switch req.GrantType {
	case GrantAuthorizationCode:
		return b.redeemCode(ctx, req)
	case GrantRefreshToken:
		return b.redeemRefresh(ctx, req)
	default:
		return nil, ErrUnsupportedGrantType
	}
}

func (b *Bridge) redeemCode(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	rec, err := b.store.AuthorizationCode(ctx, req.Code)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrInvalidGrant
	}
	if req.RedirectURI != rec.RedirectURI {
		return nil, ErrRedirectURIMismatch
	}
	if !oauth.VerifyPKCE(req.CodeVerifier, rec.CodeChallenge, rec.CodeChallengeMethod) {
		return nil, ErrPKCEVerificationFailed
	}

	if err := b.store.DeleteAuthorizationCode(ctx, req.Code); err != nil {
		return nil, err
	}

	grant := &store.GrantRecord{UserKey: rec.UserKey, Scope: rec.Scope}
	access, err := b.issueAccessToken(ctx, grant)
	if err != nil {
		return nil, err
	}
	refresh, err := oauth.RandomToken(oauth.RefreshTokenLength)
	if err != nil {
		return nil, err
	}
	if err := b.store.SaveRefreshToken(ctx, refresh, grant); err != nil {
		return nil, err
	}

	logging.Info("Bridge", "Issued tokens for %s via authorization_code", logging.Redact(rec.UserKey))
	return b.tokenResponse(access, refresh, grant.Scope), nil
}

func (b *Bridge) redeemRefresh(ctx context.Context, req TokenRequest) (*TokenResponse, error) {
	grant, err := b.store.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, ErrInvalidGrant
	}

	access, err := b.issueAccessToken(ctx, grant)
	if err != nil {
		return nil, err
	}

	logging.Info("Bridge", "Issued access token for %s via refresh_token", logging.Redact(grant.UserKey))
	return b.tokenResponse(access, req.RefreshToken, grant.Scope), nil
}

func (b *Bridge) issueAccessToken(ctx context.Context, grant *store.GrantRecord) (string, error) {
	access, err := oauth.RandomToken(oauth.AccessTokenLength)
	if err != nil {
		return "", err
	}
	if err := b.store.SaveAccessToken(ctx, access, grant); err != nil {
		return "", err
	}
	return access, nil
}

func (b *Bridge) tokenResponse(access, refresh, scope string) *TokenResponse {
	if scope == "" {
		scope = DefaultScope
	}
	return &TokenResponse{
		TokenType:    "Bearer",
		AccessToken:  access,
		ExpiresIn:    int64(store.AccessTokenTTL / time.Second),
		RefreshToken: refresh,
		Scope:        scope,
	}
}

// CallbackPath is the route the upstream redirects back to.
func (b *Bridge) CallbackPath() string {
	return b.cfg.CallbackPath
}

// CallbackURL is the absolute upstream redirect target for baseURL.
func (b *Bridge) CallbackURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + b.cfg.CallbackPath
}

// StartLink begins linking an upstream account and returns the upstream
// authorization URL. A non-empty next is remembered for the callback.
func (b *Bridge) StartLink(ctx context.Context, baseURL, next string) (string, error) {
	state, err := oauth.RandomToken(oauth.StateLength)
	if err != nil {
		return "", err
	}
	if next != "" {
		if !isHTTPURL(next) {
			return "", &LinkError{Message: "next must be an absolute http(s) URL", Status: http.StatusBadRequest}
		}
		if err := b.store.SavePendingRedirect(ctx, state, next); err != nil {
			return "", fmt.Errorf("failed to save pending redirect: %w", err)
		}
	}
	return b.upstream.AuthorizeURL(b.CallbackURL(baseURL), "", state), nil
}

// LinkResult describes a completed link.
type LinkResult struct {
	Token *store.StoredToken
	// Redirect is where to continue, with linked=1 and userKey attached.
	// Empty when the flow was started without a return URL.
	Redirect string
}

// DisplayName is the name shown to the user on the success page.
func (r *LinkResult) DisplayName() string {
	if r.Token.Name != "" {
		return r.Token.Name
	}
	return r.Token.UserID
}

// CompleteLink exchanges the upstream code, stores the resulting token and
// works out where the browser goes next.
func (b *Bridge) CompleteLink(ctx context.Context, baseURL, code, state string) (*LinkResult, error) {
	if code == "" {
		return nil, &LinkError{Message: "missing code", Status: http.StatusBadRequest}
	}

	var next string
	if state != "" {
		n, ok, err := b.store.TakePendingRedirect(ctx, state)
		if err != nil {
			return nil, err
		}
		if ok {
			next = n
		}
	}

	tokens, err := b.upstream.ExchangeCode(ctx, code, b.CallbackURL(baseURL))
	if err != nil {
		logging.Error("Bridge", err, "Upstream code exchange failed")
		return nil, &LinkError{Message: "token exchange failed", Status: http.StatusInternalServerError, Err: err}
	}

	tok := &store.StoredToken{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		ExpiresAt:    b.clock.Now().Add(time.Duration(tokens.ExpiresIn) * time.Second),
	}
	info, err := b.upstream.FetchUserInfo(ctx, tokens.AccessToken)
	if err != nil {
		logging.Warn("Bridge", "User info lookup failed, linking without profile: %v", err)
	} else if info != nil {
		tok.UserID = info.UserID
		tok.Name = info.Name
		tok.Email = info.Email
	}

	if err := b.store.Put(ctx, tok, tok.UserID); err != nil {
		return nil, fmt.Errorf("failed to store linked token: %w", err)
	}
	logging.Info("Bridge", "Linked upstream identity %s", logging.Redact(tok.UserID))

	res := &LinkResult{Token: tok}
	if next != "" {
		if tok.UserID == "" {
			return nil, &LinkError{
				Message: "could not identify the linked account, try linking again",
				Status:  http.StatusBadGateway,
				Err:     ErrUnidentifiedAccount,
			}
		}
		u, err := url.Parse(next)
		if err != nil {
			return nil, &LinkError{Message: "invalid return URL", Status: http.StatusBadRequest, Err: err}
		}
		q := u.Query()
		q.Set("linked", "1")
		q.Set("userKey", tok.UserID)
		u.RawQuery = q.Encode()
		res.Redirect = u.String()
	}
	return res, nil
}

// StatusUser is the linked identity in a status report.
type StatusUser struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
	Email  string `json:"email,omitempty"`
}

// StatusToken describes the stored credential's lifetime.
type StatusToken struct {
	ExpiresIn       string `json:"expiresIn"`
	Expired         bool   `json:"expired"`
	WillAutoRefresh bool   `json:"willAutoRefresh"`
}

// Status is the /auth/status body.
type Status struct {
	OK         bool         `json:"ok"`
	Authorized bool         `json:"authorized"`
	Message    string       `json:"message,omitempty"`
	User       *StatusUser  `json:"user,omitempty"`
	Token      *StatusToken `json:"token,omitempty"`
}

// Status reports on the most recently linked identity.
func (b *Bridge) Status(ctx context.Context) (*Status, error) {
	tok, err := b.store.Legacy(ctx)
	if err != nil {
		return nil, err
	}
	if tok == nil {
		return &Status{OK: true, Message: "No account linked. Visit /auth to authorize."}, nil
	}

	now := b.clock.Now()
	remaining := tok.ExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return &Status{
		OK:         true,
		Authorized: true,
		User:       &StatusUser{UserID: tok.UserID, Name: tok.Name, Email: tok.Email},
		Token: &StatusToken{
			ExpiresIn:       fmt.Sprintf("%ds", int64(remaining/time.Second)),
			Expired:         tok.Expired(now),
			WillAutoRefresh: true,
		},
	}, nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
