// Package schema describes the CNPJ tables: their columns, the repair rule
// applied to each column, which fields identify a row, and the keys, indexes
// and foreign keys created after the load.
//
// The catalog is static. Everything downstream (the normalizer, the quarantine
// router, the DDL builder and the post-load integrity stages) derives its
// behavior from these definitions rather than from per-table code paths.
package schema

import (
	"fmt"

	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
)

// Kind classifies a table by its role in the referential graph.
type Kind int

const (
	// Reference tables are small code -> label maps.
	Reference Kind = iota
	// Entity is the primary record table (empresas).
	Entity
	// Child tables reference the entity table by cnpj_basico.
	Child
)

func (k Kind) String() string {
	switch k {
	case Reference:
		return "reference"
	case Entity:
		return "entity"
	case Child:
		return "child"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Rule names the normalization applied to a column.
type Rule int

const (
	RuleText        Rule = iota // trimmed free text
	RuleCode                    // integer reference code
	RuleInt                     // small integer enumeration
	RuleDigits                  // fixed-width numeric identifier (Width)
	RuleDate                    // YYYYMMDD
	RuleMoney                   // "1.234,56"
	RuleFlag                    // S/N
	RuleCEP                     // 8-digit postal code
	RuleUF                      // 2-letter federative unit
	RuleEmail                   // e-mail address
	RuleDDD                     // phone area code
	RulePhone                   // phone number, paired with a DDD column
	RuleActivity                // 7-digit primary CNAE code
	RuleActivityList            // secondary CNAE list -> TEXT[]
	RulePartnerID               // CPF/CNPJ of a partner, possibly masked
	RuleDerived                 // filled by the normalizer, absent from source files
)

// Column is one table column.
type Column struct {
	Name    string
	SQLType string
	Rule    Rule
	// Width is the exact digit count for RuleDigits.
	Width int
	// Pair is the DDD column a RulePhone column is dialed with.
	Pair string
}

// ForeignKey is a single-column reference from a table into Ref.
type ForeignKey struct {
	Name      string
	Column    string
	Ref       string
	RefColumn string
}

// Index is a secondary, non-unique index.
type Index struct {
	Name    string
	Columns []string
}

// Table is the full definition of one CNPJ table.
type Table struct {
	Name    string
	Kind    Kind
	Columns []Column
	// Key is the primary key column list; empty for key-less tables.
	Key []string
	// Critical fields identify the row; a row whose critical field cannot be
	// salvaged is rejected instead of nulled.
	Critical []string
	// Identifier lists the columns that concatenate into a full CNPJ whose
	// check digits are verified. A failure rejects the row.
	Identifier  []string
	ForeignKeys []ForeignKey
	Indexes     []Index
	// FilePattern matches the extracted source files for this table.
	FilePattern string
}

// ColumnNames returns every column name in declaration order.
func (t Table) ColumnNames() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		out = append(out, c.Name)
	}
	return out
}

// SourceColumns returns the positional layout of the source files, which is
// the column list without derived columns.
func (t Table) SourceColumns() []string {
	out := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if c.Rule == RuleDerived {
			continue
		}
		out = append(out, c.Name)
	}
	return out
}

// Column looks up a column by name.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// IsCritical reports whether name is a row-identifying field.
func (t Table) IsCritical(name string) bool {
	for _, c := range t.Critical {
		if c == name {
			return true
		}
	}
	return false
}

// ForeignKeyFor returns the foreign key declared on column, if any.
func (t Table) ForeignKeyFor(column string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Column == column {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

// KeyName is the primary key constraint name, following the Postgres default.
func (t Table) KeyName() string { return t.Name + "_pkey" }

// FQN returns "<schema>.<table>".
func (t Table) FQN(schemaName string) string {
	if schemaName == "" {
		return t.Name
	}
	return schemaName + "." + t.Name
}

// TableDef converts the definition into the generic DDL model. Keys are not
// part of it; the integrity stages add them after the load.
func (t Table) TableDef(schemaName string, unlogged bool) ddl.TableDef {
	cols := make([]ddl.ColumnDef, 0, len(t.Columns))
	for _, c := range t.Columns {
		cols = append(cols, ddl.ColumnDef{
			Name:     c.Name,
			SQLType:  c.SQLType,
			Nullable: !t.IsCritical(c.Name),
		})
	}
	return ddl.TableDef{FQN: t.FQN(schemaName), Columns: cols, Unlogged: unlogged}
}
