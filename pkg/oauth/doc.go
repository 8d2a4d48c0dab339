// Package oauth provides the small OAuth 2.0 building blocks shared by the
// authorization bridge and the token resolver.
//
// # Core Components
//
//   - PKCE: S256 challenge computation and verifier checks (RFC 7636)
//   - RandomToken: alphanumeric codes, states and opaque tokens
//   - Bearer parsing: extracting the credential from an Authorization header
//
// # Usage
//
//	import "larkgate/pkg/oauth"
//
//	code, err := oauth.RandomToken(oauth.CodeLength)
//	if !oauth.VerifyPKCE(verifier, challenge, method) {
//	    // reject the grant
//	}
//	token, ok := oauth.ExtractBearer(r.Header.Get("Authorization"))
package oauth
