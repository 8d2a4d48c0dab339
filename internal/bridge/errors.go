package bridge

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrUnidentifiedAccount means the upstream profile lookup failed, so a
// pending redirect has no userKey to carry back.
var ErrUnidentifiedAccount = errors.New("upstream did not report the linked account")

// OAuthError is a failure reported to an OAuth client. Code and Description
// map onto the RFC 6749 error and error_description fields.
type OAuthError struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on Code, and on Description when the target carries one. So
// errors.Is(err, ErrInvalidGrant) holds for every invalid_grant while
// errors.Is(err, ErrPKCEVerificationFailed) holds only for that failure.
func (e *OAuthError) Is(target error) bool {
	t, ok := target.(*OAuthError)
	if !ok {
		return false
	}
	if e.Code != t.Code {
		return false
	}
	return t.Description == "" || t.Description == e.Description
}

func (e *OAuthError) withDescription(desc string) *OAuthError {
	return &OAuthError{Code: e.Code, Description: desc, Status: e.Status}
}

var (
	ErrInvalidRequest          = &OAuthError{Code: "invalid_request", Status: http.StatusBadRequest}
	ErrInvalidClient           = &OAuthError{Code: "invalid_client", Status: http.StatusUnauthorized}
	ErrInvalidGrant            = &OAuthError{Code: "invalid_grant", Status: http.StatusBadRequest}
	ErrUnsupportedGrantType    = &OAuthError{Code: "unsupported_grant_type", Status: http.StatusBadRequest}
	ErrUnsupportedResponseType = &OAuthError{Code: "unsupported_response_type", Status: http.StatusBadRequest}
	ErrPKCEVerificationFailed  = ErrInvalidGrant.withDescription("PKCE verification failed")
	ErrRedirectURIMismatch     = ErrInvalidGrant.withDescription("redirect_uri mismatch")
	ErrMissingParameter        = ErrInvalidRequest.withDescription("missing client_id or redirect_uri")
	ErrUnsupportedMediaType    = &OAuthError{
		Code:        "invalid_request",
		Description: "expected application/x-www-form-urlencoded",
		Status:      http.StatusUnsupportedMediaType,
	}
)

// LinkError is a failure of the account-linking flow.
type LinkError struct {
	Message string
	Status  int
	Err     error
}

func (e *LinkError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *LinkError) Unwrap() error { return e.Err }
