package builtin

import (
	"sort"
	"strconv"
	"strings"
)

// Activity parses a primary CNAE code. The registry publishes it as seven
// digits; punctuated forms ("4930-2/02") are accepted.
func Activity(s string) (int64, bool) {
	d, ok := FixedDigits(s, 7)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(d, 10, 64)
	return n, err == nil
}

// ActivityList splits a free-text list of secondary CNAE codes into a proper
// array of 7-digit codes. Separators are ';', ',', whitespace and braces;
// fragments containing anything but digits, or longer than seven digits, are
// dropped. Shorter codes are left-padded since leading zeros are routinely
// lost by upstream exports.
//
// With dedupe, the result is sorted and repeated codes are removed.
// An empty result reports ok=false.
func ActivityList(s string, dedupe bool) ([]string, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		switch r {
		case ';', ',', '{', '}', ' ', '\t', '\n', '\r', '|':
			return true
		}
		return false
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `"'`)
		if f == "" || len(f) > 7 || !allDigits(f) {
			continue
		}
		if len(f) < 7 {
			f = strings.Repeat("0", 7-len(f)) + f
		}
		out = append(out, f)
	}
	if len(out) == 0 {
		return nil, false
	}
	if dedupe {
		sort.Strings(out)
		w := 1
		for i := 1; i < len(out); i++ {
			if out[i] != out[w-1] {
				out[w] = out[i]
				w++
			}
		}
		out = out[:w]
	}
	return out, true
}
