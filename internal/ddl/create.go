// Package ddl defines a small model for the load tables and renders the
// Postgres statements used to reset them.
//
// Identifiers are always double-quoted, so mixed-case or reserved names survive
// the round-trip. Constraint statements live with the integrity stages; this
// package only covers table lifecycle (create, drop, logged/unlogged) plus the
// quoting helpers both sides share.
package ddl

import (
	"fmt"
	"strings"
)

// BuildCreateTableSQL renders a deterministic CREATE TABLE IF NOT EXISTS
// statement for t.
//
// Rules:
//   - t.FQN must be non-empty.
//   - Each column must have a non-empty Name and SQLType.
//   - Columns render in the given order.
func BuildCreateTableSQL(t TableDef) (string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return "", fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return "", fmt.Errorf("ddl: at least one column is required")
	}

	cols := make([]string, 0, len(t.Columns))

	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return "", fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return "", fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(QuoteIdent(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !c.Nullable {
			sb.WriteString(" NOT NULL")
		}
		cols = append(cols, sb.String())
	}

	kw := "TABLE"
	if t.Unlogged {
		kw = "UNLOGGED TABLE"
	}
	return fmt.Sprintf(
		"CREATE %s IF NOT EXISTS %s (\n  %s\n);",
		kw,
		QuoteFQN(fqn),
		strings.Join(cols, ",\n  "),
	), nil
}

// DropTableSQL renders DROP TABLE IF EXISTS ... CASCADE.
func DropTableSQL(fqn string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s CASCADE;", QuoteFQN(fqn))
}

// CreateSchemaSQL renders CREATE SCHEMA IF NOT EXISTS.
func CreateSchemaSQL(schema string) string {
	return fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s;", QuoteIdent(schema))
}

// SetLoggedSQL renders ALTER TABLE ... SET LOGGED.
func SetLoggedSQL(fqn string) string {
	return fmt.Sprintf("ALTER TABLE %s SET LOGGED;", QuoteFQN(fqn))
}

// AnalyzeSQL renders ANALYZE for fqn.
func AnalyzeSQL(fqn string) string {
	return fmt.Sprintf("ANALYZE %s;", QuoteFQN(fqn))
}

// QuoteIdent quotes a single identifier segment for Postgres:
//
//	QuoteIdent(`codigo`)     => `"codigo"`
//	QuoteIdent(`weird"name`) => `"weird""name"`
func QuoteIdent(id string) string {
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// QuoteFQN quotes a possibly schema-qualified name like "rfb.paises" to
// `"rfb"."paises"`. Empty segments are ignored.
func QuoteFQN(f string) string {
	parts := strings.Split(f, ".")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		out = append(out, QuoteIdent(p))
	}
	return strings.Join(out, ".")
}

// QuoteList quotes and joins identifiers with ", ".
func QuoteList(ids []string) string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = QuoteIdent(id)
	}
	return strings.Join(out, ", ")
}
