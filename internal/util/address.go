package util

import (
	"regexp"
	"strings"
)

var nonDigits = regexp.MustCompile(`\D+`)

// NormalizeAddress strips everything but digits, so "+55 (11) 98765-4321"
// and "5511987654321" compare equal. Channel suffixes like "@c.us" go too.
func NormalizeAddress(raw string) string {
	s := strings.TrimSpace(raw)
	if i := strings.IndexByte(s, '@'); i >= 0 {
		s = s[:i]
	}
	return nonDigits.ReplaceAllString(s, "")
}

// ValidAddress accepts 10 to 13 digits after normalization.
func ValidAddress(raw string) bool {
	n := len(NormalizeAddress(raw))
	return n >= 10 && n <= 13
}
