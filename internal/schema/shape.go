package schema

import (
	"regexp"
	"strconv"
	"strings"
)

// Shape is the storage limit a column's SQL type imposes on its values.
// Zero fields mean "unbounded".
type Shape struct {
	// MaxLen is the character limit of VARCHAR(n).
	MaxLen int
	// Int32 is set for INTEGER columns.
	Int32 bool
	// IntDigits is precision minus scale of NUMERIC(p,s).
	IntDigits int
}

var (
	varcharType = regexp.MustCompile(`^VARCHAR\((\d+)\)$`)
	numericType = regexp.MustCompile(`^NUMERIC\((\d+),\s*(\d+)\)$`)
)

// Shape derives the storage limit from SQLType.
func (c Column) Shape() Shape {
	typ := strings.ToUpper(strings.TrimSpace(c.SQLType))
	switch {
	case typ == "INTEGER" || typ == "INT" || typ == "INT4":
		return Shape{Int32: true}
	case varcharType.MatchString(typ):
		n, _ := strconv.Atoi(varcharType.FindStringSubmatch(typ)[1])
		return Shape{MaxLen: n}
	case numericType.MatchString(typ):
		m := numericType.FindStringSubmatch(typ)
		p, _ := strconv.Atoi(m[1])
		s, _ := strconv.Atoi(m[2])
		return Shape{IntDigits: p - s}
	}
	return Shape{}
}
