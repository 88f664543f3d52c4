package engine

import (
	"strings"
	"unicode"
)

// HostName converts a Go or kebab-case name into the snake_case identifier
// scripts use:
//   - "get-value" -> "get_value"
//   - "UserID" -> "user_id"
//   - "parseHTTPHeader" -> "parse_http_header"
//   - "poll" -> "poll" (no change)
func HostName(name string) string {
	runes := []rune(name)
	var b strings.Builder
	b.Grow(len(name) + 4)

	for i, r := range runes {
		switch {
		case r == '-' || r == ' ' || r == '.':
			b.WriteByte('_')
		case unicode.IsUpper(r):
			if i > 0 && needsBreak(runes, i) {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// needsBreak reports whether an underscore goes before the upper-case rune
// at i: after a lower-case letter or digit, or at the end of an acronym.
func needsBreak(runes []rune, i int) bool {
	prev := runes[i-1]
	if prev == '_' || prev == '-' || prev == ' ' || prev == '.' {
		return false
	}
	if unicode.IsLower(prev) || unicode.IsDigit(prev) {
		return true
	}
	return i+1 < len(runes) && unicode.IsLower(runes[i+1])
}

// ValidIdent reports whether s is a valid Starlark identifier.
func ValidIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}
