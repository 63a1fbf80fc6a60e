package builtin

import "strings"

// DDD reduces an area code to its digits. Up to four digits are accepted
// because the registry pads some codes with leading zeros.
func DDD(s string) (string, bool) {
	d := Digits(s)
	if d == "" || len(d) > 4 {
		return "", false
	}
	return d, true
}

// Phone reduces a subscriber number to its digits (8 or 9 expected, anything
// between 7 and 11 kept).
func Phone(s string) (string, bool) {
	d := Digits(s)
	if len(d) < 7 || len(d) > 11 {
		return "", false
	}
	return d, true
}

// E164 renders a Brazilian number as +55<area><subscriber>. The area code is
// stripped of leading zeros and must have two digits; the subscriber must have
// eight or nine.
func E164(ddd, number string) (string, bool) {
	a := strings.TrimLeft(Digits(ddd), "0")
	n := Digits(number)
	if len(a) != 2 || (len(n) != 8 && len(n) != 9) {
		return "", false
	}
	return "+55" + a + n, true
}
