package oauth

import (
	"regexp"
	"strings"
)

var bearerPattern = regexp.MustCompile(`(?i)^Bearer\s+(.+)$`)

// ExtractBearer returns the credential of an "Authorization: Bearer <token>"
// header value. ok is false when the header is absent or uses another scheme.
func ExtractBearer(header string) (string, bool) {
	m := bearerPattern.FindStringSubmatch(strings.TrimSpace(header))
	if m == nil {
		return "", false
	}
	token := strings.TrimSpace(m[1])
	return token, token != ""
}

// HasBearerPrefix reports whether the header starts with "bearer "
// case-insensitively, regardless of whether a credential follows.
func HasBearerPrefix(header string) bool {
	return len(header) >= 7 && strings.EqualFold(header[:7], "bearer ")
}
