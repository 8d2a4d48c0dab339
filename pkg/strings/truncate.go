// Package strings holds small text helpers shared by the command line
// renderers.
package strings

import (
	"strings"
)

// ellipsis marks text that was cut.
const ellipsis = "..."

// OneLine collapses every run of whitespace, newlines included, into a
// single space.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Ellipsize flattens s with OneLine and cuts it to at most maxLen runes,
// ending cut text with "...". maxLen below 4 is treated as 4.
func Ellipsize(s string, maxLen int) string {
	maxLen = max(maxLen, len(ellipsis)+1)
	s = OneLine(s)

	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}
