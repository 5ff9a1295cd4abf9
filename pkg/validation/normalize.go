package validation

import "strings"

// NormalizeISBN drops separators and uppercases a trailing check
// digit so storage and search compare canonical forms. Characters
// that cannot appear in an ISBN are kept so validation can reject
// the value instead of silently repairing it.
func NormalizeISBN(s string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(s) {
		switch {
		case r == '-' || r == ' ':
		case r == 'x':
			b.WriteRune('X')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// isValidISBN expects a normalized value: ten characters where only
// the last may be X, or thirteen digits.
func isValidISBN(s string) bool {
	switch len(s) {
	case 10:
		for i, r := range s {
			if r >= '0' && r <= '9' {
				continue
			}
			if r == 'X' && i == 9 {
				continue
			}
			return false
		}
		return true
	case 13:
		for _, r := range s {
			if r < '0' || r > '9' {
				return false
			}
		}
		return true
	default:
		return false
	}
}
