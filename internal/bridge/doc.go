// Package bridge is the OAuth facade clients authorize against.
//
// It plays two roles joined only by the upstream user id ("userKey"):
//
//   - an authorization server issuing its own codes, access tokens and
//     refresh tokens (/oauth/authorize, /oauth/token), and
//   - an upstream OAuth client that links a browser session to a Feishu
//     identity (/auth, /auth/callback, /auth/status).
//
// An authorize request with no linked identity is bounced through /auth with
// itself as the return URL. Once linking completes the browser comes back with
// linked=1 and userKey set, and a code bound to that identity is issued.
package bridge
