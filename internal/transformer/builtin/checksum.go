package builtin

// ValidCNPJ reports whether d is a 14-digit CNPJ with correct check digits.
// Sequences of a single repeated digit are rejected.
func ValidCNPJ(d string) bool {
	if len(d) != 14 || !allDigits(d) || repeated(d) {
		return false
	}
	w1 := []int{5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{6, 5, 4, 3, 2, 9, 8, 7, 6, 5, 4, 3, 2}
	return checkDigit(d[:12], w1) == int(d[12]-'0') &&
		checkDigit(d[:13], w2) == int(d[13]-'0')
}

// ValidCPF reports whether d is an 11-digit CPF with correct check digits.
func ValidCPF(d string) bool {
	if len(d) != 11 || !allDigits(d) || repeated(d) {
		return false
	}
	w1 := []int{10, 9, 8, 7, 6, 5, 4, 3, 2}
	w2 := []int{11, 10, 9, 8, 7, 6, 5, 4, 3, 2}
	return checkDigit(d[:9], w1) == int(d[9]-'0') &&
		checkDigit(d[:10], w2) == int(d[10]-'0')
}

// checkDigit is the mod-11 rule shared by CPF and CNPJ.
func checkDigit(d string, weights []int) int {
	sum := 0
	for i, w := range weights {
		sum += int(d[i]-'0') * w
	}
	r := sum % 11
	if r < 2 {
		return 0
	}
	return 11 - r
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func repeated(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// PartnerID classifies a partner identifier. Masked CPFs as published by the
// registry ("***123456**") carry no check digits and are kept verbatim.
// Unmasked 11- or 14-digit values must pass their checksum.
func PartnerID(s string) (string, bool) {
	if len(s) == 11 && s[0] == '*' {
		return s, true
	}
	d := Digits(s)
	switch len(d) {
	case 11:
		return d, ValidCPF(d)
	case 14:
		return d, ValidCNPJ(d)
	}
	return "", false
}
