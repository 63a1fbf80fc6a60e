package builtin

import (
	"strings"

	"github.com/jackc/pgx/v5/pgtype"
)

// Money parses the Brazilian decimal notation used for share capital
// ("1.234.567,89") into a NUMERIC value. Plain "1234.56" is accepted too.
func Money(s string) (pgtype.Numeric, bool) {
	var n pgtype.Numeric
	s = strings.TrimSpace(s)
	if s == "" {
		return n, false
	}
	if strings.IndexByte(s, ',') >= 0 {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.Replace(s, ",", ".", 1)
	}
	neg := strings.HasPrefix(s, "-")
	body := strings.TrimPrefix(s, "-")
	dot := 0
	for i := 0; i < len(body); i++ {
		switch c := body[i]; {
		case c == '.':
			dot++
		case c < '0' || c > '9':
			return n, false
		}
	}
	if body == "" || body == "." || dot > 1 {
		return n, false
	}
	if neg {
		body = "-" + body
	}
	if err := n.Scan(body); err != nil {
		return pgtype.Numeric{}, false
	}
	return n, n.Valid
}
