// Package store is the typed record layer over a kv.Store.
//
// Key layout:
//
//	token:<identity>   linked upstream token (no expiry)
//	token              most recently linked upstream token
//	next:<state>       post-link redirect (10 minutes, single use)
//	code:<code>        self-issued authorization code (5 minutes, single use)
//	access:<token>     self-issued access token (1 hour)
//	refresh:<token>    self-issued refresh token (30 days)
//
// The self-issued namespaces (access, refresh) and the upstream namespace
// (token) never share values; they meet only through the user key.
package store
