package transformer

import (
	"math"
	"math/big"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
)

// shapeCheck returns a predicate rejecting coerced values that the column's
// SQL type cannot store, or nil when the type is unbounded.
func shapeCheck(sh schema.Shape) func(v any) bool {
	switch {
	case sh.MaxLen > 0:
		return func(v any) bool {
			s, ok := v.(string)
			return !ok || utf8.RuneCountInString(s) <= sh.MaxLen
		}
	case sh.Int32:
		return func(v any) bool {
			i, ok := v.(int64)
			return !ok || fitsInt32(i)
		}
	case sh.IntDigits > 0:
		return func(v any) bool {
			n, ok := v.(pgtype.Numeric)
			return !ok || integerDigits(n) <= sh.IntDigits
		}
	}
	return nil
}

func fitsInt32(i int64) bool { return i >= math.MinInt32 && i <= math.MaxInt32 }

// integerDigits counts the digits left of the decimal point.
func integerDigits(n pgtype.Numeric) int {
	if !n.Valid || n.Int == nil || n.Int.Sign() == 0 {
		return 0
	}
	d := len(new(big.Int).Abs(n.Int).String()) + int(n.Exp)
	return max(d, 0)
}
