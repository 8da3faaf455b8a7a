package auth

import "strings"

// NormalizeEmail maps an email address to its stored form. Every path
// that writes or looks up a user must go through this, or lookups for
// addresses typed with different casing will miss.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
