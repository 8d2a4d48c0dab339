// Package proxy executes arbitrary calls against the upstream open API on
// behalf of a linked user.
//
// NormalizeRequest is the single place loosely typed arguments become a
// Request. Execute corrects the path, encodes the body (json, text, form or
// multipart), attaches the user's token and shapes the reply into an
// Envelope. When the upstream rejects the token, either with HTTP 401 or an
// in-band expiry code, the call is retried once with a refreshed token.
package proxy
