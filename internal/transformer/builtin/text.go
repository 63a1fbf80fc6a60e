// Package builtin holds the field-level repair rules the normalizer composes
// into per-table plans. Every function here is pure and safe for concurrent
// use; ok=false always means "the value cannot be salvaged".
package builtin

import (
	"strings"
	"unicode"
)

// CleanText trims the value, replaces non-breaking spaces (including the
// mojibake "Â " left by double-decoded latin1) with plain spaces and strips
// control characters. Blank results report ok=false.
func CleanText(s string) (string, bool) {
	if strings.Contains(s, "Â ") {
		s = strings.ReplaceAll(s, "Â ", " ")
	}
	if strings.IndexFunc(s, needsScrub) >= 0 {
		s = strings.Map(func(r rune) rune {
			switch {
			case r == ' ':
				return ' '
			case unicode.IsControl(r):
				return -1
			}
			return r
		}, s)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

func needsScrub(r rune) bool { return r == ' ' || unicode.IsControl(r) }
