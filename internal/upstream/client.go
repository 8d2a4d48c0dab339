package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"

	"larkgate/internal/config"
	"larkgate/pkg/logging"
)

// Upstream endpoint paths, relative to the configured origin.
const (
	AuthorizePath = "/open-apis/authen/v1/authorize"
	TokenPath     = "/open-apis/authen/v2/oauth/token"
	UserInfoPath  = "/open-apis/authen/v1/user_info"
)

// ErrExchangeFailed is returned whenever the upstream token endpoint does not
// yield a usable token, for both code exchange and refresh.
var ErrExchangeFailed = errors.New("token exchange failed")

// Tokens is the result of a successful exchange or refresh.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int64 // seconds
}

// UserInfo is the subset of the upstream profile kept with a linked token.
type UserInfo struct {
	UserID string
	Name   string
	Email  string
}

// Exchanger turns an authorization code into tokens.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error)
}

// Refresher obtains new tokens from a refresh token.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Tokens, error)
}

// Client talks to the upstream OAuth endpoints.
type Client struct {
	baseURL    string
	conf       oauth2.Config
	httpClient *http.Client
}

// NewClient creates a client for the upstream described by cfg. A nil
// httpClient gets one with cfg.Timeout.
func NewClient(cfg config.UpstreamConfig, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		baseURL:    base,
		httpClient: httpClient,
		conf: oauth2.Config{
			ClientID:     cfg.AppID,
			ClientSecret: cfg.AppSecret,
			Scopes:       strings.Fields(cfg.Scopes),
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + AuthorizePath,
				TokenURL:  base + TokenPath,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
	}
}

// BaseURL returns the upstream origin without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// HTTPClient returns the client used for upstream calls.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// AuthorizeURL builds the upstream consent URL. An empty scope uses the
// configured scopes.
func (c *Client) AuthorizeURL(redirectURI, scope, state string) string {
	conf := c.conf
	conf.RedirectURL = redirectURI
	if scope != "" {
		conf.Scopes = strings.Fields(scope)
	}
	return conf.AuthCodeURL(state)
}

// ExchangeCode implements Exchanger.
func (c *Client) ExchangeCode(ctx context.Context, code, redirectURI string) (*Tokens, error) {
	conf := c.conf
	conf.RedirectURL = redirectURI

	tok, err := conf.Exchange(c.withHTTPClient(ctx), code)
	if err != nil {
		logging.Debug("Upstream", "Code exchange failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	return toTokens(tok), nil
}

// Refresh implements Refresher. The upstream may rotate the refresh token;
// when it does not, the presented one is kept.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Tokens, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("%w: no refresh token", ErrExchangeFailed)
	}

	src := c.conf.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		logging.Debug("Upstream", "Refresh failed: %v", err)
		return nil, fmt.Errorf("%w: %w", ErrExchangeFailed, err)
	}
	return toTokens(tok), nil
}

// FetchUserInfo reads the profile of the token's owner.
func (c *Client) FetchUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+UserInfoPath, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("user info request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read user info: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user info request failed with status %d", resp.StatusCode)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("user info response is not JSON")
	}
	if code := gjson.GetBytes(body, "code"); code.Exists() && code.Int() != 0 {
		return nil, fmt.Errorf("user info error %d: %s", code.Int(), gjson.GetBytes(body, "msg").String())
	}

	name := gjson.GetBytes(body, "data.name").String()
	if name == "" {
		name = gjson.GetBytes(body, "data.en_name").String()
	}
	return &UserInfo{
		UserID: gjson.GetBytes(body, "data.user_id").String(),
		Name:   name,
		Email:  gjson.GetBytes(body, "data.email").String(),
	}, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func toTokens(tok *oauth2.Token) *Tokens {
	return &Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    expiresIn(tok),
	}
}

// expiresIn prefers the raw expires_in field and falls back to the parsed
// expiry.
func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	}
	if tok.ExpiresIn > 0 {
		return tok.ExpiresIn
	}
	if !tok.Expiry.IsZero() {
		if d := time.Until(tok.Expiry); d > 0 {
			return int64(d.Round(time.Second) / time.Second)
		}
	}
	return 0
}
