package builtin

import "time"

// Date parses the registry's YYYYMMDD layout without allocating. Zero dates
// ("0", "00000000") and impossible calendar dates report ok=false.
func Date(s string) (time.Time, bool) {
	if len(s) != 8 {
		return time.Time{}, false
	}
	var v [8]int
	for i := 0; i < 8; i++ {
		c := s[i] - '0'
		if c > 9 {
			return time.Time{}, false
		}
		v[i] = int(c)
	}
	year := v[0]*1000 + v[1]*100 + v[2]*10 + v[3]
	mon := v[4]*10 + v[5]
	day := v[6]*10 + v[7]
	if year < 1800 || mon < 1 || mon > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(mon), day, 0, 0, 0, 0, time.UTC)
	// time.Date normalizes Feb 30 into March; reject instead.
	if t.Day() != day || int(t.Month()) != mon {
		return time.Time{}, false
	}
	return t, true
}
