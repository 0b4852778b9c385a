// Package normalize holds the small input clean-ups shared by every surface.
package normalize

import "strings"

const (
	// DefaultLimit is used when a caller does not ask for a page size.
	DefaultLimit = 100
	// MaxLimit caps any page size a client can request.
	MaxLimit = 1000
)

// Email returns a normalized form of an email address suitable for
// storage and comparisons. Normalization currently trims surrounding
// whitespace and lower-cases the address.
func Email(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}

// Limit maps a requested page size onto the accepted range: non-positive
// values fall back to DefaultLimit and anything above MaxLimit is clamped.
func Limit(n int) int {
	if n <= 0 {
		return DefaultLimit
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
