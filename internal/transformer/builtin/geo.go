package builtin

import "strings"

// federativeUnits lists the 27 Brazilian UFs plus EX, used by the registry for
// establishments abroad.
var federativeUnits = map[string]struct{}{
	"AC": {}, "AL": {}, "AP": {}, "AM": {}, "BA": {}, "CE": {}, "DF": {},
	"ES": {}, "GO": {}, "MA": {}, "MT": {}, "MS": {}, "MG": {}, "PA": {},
	"PB": {}, "PR": {}, "PE": {}, "PI": {}, "RJ": {}, "RN": {}, "RS": {},
	"RO": {}, "RR": {}, "SC": {}, "SP": {}, "SE": {}, "TO": {}, "EX": {},
}

// CEP normalizes a postal code to exactly eight digits.
func CEP(s string) (string, bool) { return FixedDigits(s, 8) }

// UF normalizes a federative unit code and checks it against the known set.
func UF(s string) (string, bool) {
	u := strings.ToUpper(strings.TrimSpace(s))
	if len(u) != 2 {
		return "", false
	}
	_, ok := federativeUnits[u]
	return u, ok
}
