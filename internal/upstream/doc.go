// Package upstream is the OAuth client for the Feishu/Lark open platform.
//
// It builds consent URLs, exchanges authorization codes, refreshes tokens
// and reads the profile of a token's owner. Every token endpoint failure is
// reported as ErrExchangeFailed so callers never see partial results.
package upstream
