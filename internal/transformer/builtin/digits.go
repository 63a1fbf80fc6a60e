package builtin

import (
	"strconv"
	"strings"
)

// Digits drops every byte that is not an ASCII digit.
func Digits(s string) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			clean = false
			break
		}
	}
	if clean {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if c := s[i]; c >= '0' && c <= '9' {
			b.WriteByte(c)
		}
	}
	return b.String()
}

// FixedDigits keeps the digits of s and requires exactly width of them.
// Values are never padded: a short identifier is a different identifier.
func FixedDigits(s string, width int) (string, bool) {
	d := Digits(s)
	if len(d) != width {
		return "", false
	}
	return d, true
}

// ParseInt parses a base-10 integer, accepting a trailing ".0" as produced by
// spreadsheet exports.
func ParseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, true
	}
	if strings.IndexByte(s, '.') >= 0 {
		if f, err := strconv.ParseFloat(s, 64); err == nil && f == float64(int64(f)) {
			return int64(f), true
		}
	}
	return 0, false
}

// Flag normalizes an S/N indicator.
func Flag(s string) (string, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "S":
		return "S", true
	case "N":
		return "N", true
	}
	return "", false
}
