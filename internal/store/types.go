package store

import "time"

// Record lifetimes.
const (
	PendingRedirectTTL   = 10 * time.Minute
	AuthorizationCodeTTL = 5 * time.Minute
	AccessTokenTTL       = time.Hour
	RefreshTokenTTL      = 30 * 24 * time.Hour
)

// LegacyKey holds the most recently linked identity. It serves callers that
// present no credential at all.
const LegacyKey = "token"

// StoredToken is an upstream credential linked to one end user.
type StoredToken struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name,omitempty"`
	Email        string    `json:"email,omitempty"`
}

// Expired reports whether the access token is past its expiry at now.
func (t *StoredToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// AuthorizationCode is a self-issued, single-use authorization code record.
type AuthorizationCode struct {
	UserKey             string    `json:"userKey"`
	ClientID            string    `json:"client_id"`
	RedirectURI         string    `json:"redirect_uri"`
	Scope               string    `json:"scope"`
	CodeChallenge       string    `json:"code_challenge,omitempty"`
	CodeChallengeMethod string    `json:"code_challenge_method,omitempty"`
	IssuedAt            time.Time `json:"issued_at"`
}

// GrantRecord maps a self-issued access or refresh token to an identity.
type GrantRecord struct {
	UserKey string `json:"userKey"`
	Scope   string `json:"scope"`
}

// Key helpers. All persisted state lives under these names.
func tokenKey(identity string) string { return "token:" + identity }
func nextKey(state string) string     { return "next:" + state }
func codeKey(code string) string      { return "code:" + code }
func accessKey(token string) string   { return "access:" + token }
func refreshKey(token string) string  { return "refresh:" + token }
