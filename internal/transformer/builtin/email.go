package builtin

import (
	"regexp"
	"strings"
)

var (
	// plausibleEmail accepts anything shaped like local@domain.tld.
	plausibleEmail = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	// strictEmail is the RFC 5322 subset used by most mail providers.
	strictEmail = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?(?:\.[a-z0-9](?:[a-z0-9\-]*[a-z0-9])?)*\.[a-z]{2,}$`)
)

// Email validates the address syntactically. strict lower-cases the value and
// applies the tighter grammar.
func Email(s string, strict bool) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	if !strict {
		return s, plausibleEmail.MatchString(s)
	}
	s = strings.ToLower(s)
	if strings.Contains(s, "..") {
		return "", false
	}
	return s, strictEmail.MatchString(s)
}
