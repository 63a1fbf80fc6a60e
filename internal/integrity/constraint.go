// Package integrity runs the post-load sequence that makes a freshly loaded,
// constraint-free schema referentially consistent:
//
//	domain backfill -> primary keys -> orphan cleanup -> indexes -> foreign keys
//
// Every stage is idempotent. Constraints are created only after a catalog
// lookup reports them absent, and the backfill and orphan statements are
// anti-joins, so a partially completed sequence can simply be run again.
package integrity

import (
	"fmt"
	"strings"

	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
)

// ConstraintKind distinguishes the catalog objects the applier manages.
type ConstraintKind int

const (
	PrimaryKey ConstraintKind = iota
	Index
	ForeignKey
)

func (k ConstraintKind) String() string {
	switch k {
	case PrimaryKey:
		return "primary_key"
	case Index:
		return "index"
	case ForeignKey:
		return "foreign_key"
	}
	return fmt.Sprintf("constraint_kind(%d)", int(k))
}

// Constraint is one named catalog object and the statement that creates it.
type Constraint struct {
	Kind    ConstraintKind
	Name    string
	Schema  string
	Table   string
	Columns []string
	// RefTable and RefColumn are set for foreign keys.
	RefTable  string
	RefColumn string
}

func (c Constraint) fqn() string {
	if c.Schema == "" {
		return c.Table
	}
	return c.Schema + "." + c.Table
}

// Definition renders the creation statement.
func (c Constraint) Definition() string {
	switch c.Kind {
	case PrimaryKey:
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s PRIMARY KEY (%s);",
			ddl.QuoteFQN(c.fqn()), ddl.QuoteIdent(c.Name), ddl.QuoteList(c.Columns))
	case Index:
		return fmt.Sprintf("CREATE INDEX %s ON %s (%s);",
			ddl.QuoteIdent(c.Name), ddl.QuoteFQN(c.fqn()), ddl.QuoteList(c.Columns))
	case ForeignKey:
		ref := c.RefTable
		if c.Schema != "" {
			ref = c.Schema + "." + ref
		}
		return fmt.Sprintf("ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
			ddl.QuoteFQN(c.fqn()), ddl.QuoteIdent(c.Name), ddl.QuoteList(c.Columns),
			ddl.QuoteFQN(ref), ddl.QuoteIdent(c.RefColumn))
	}
	return ""
}

const (
	constraintExistsSQL = `SELECT EXISTS (
  SELECT 1 FROM pg_catalog.pg_constraint c
  JOIN pg_catalog.pg_namespace n ON n.oid = c.connamespace
  WHERE c.conname = $1 AND n.nspname = $2
)`
	indexExistsSQL = `SELECT EXISTS (
  SELECT 1 FROM pg_catalog.pg_class c
  JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
  WHERE c.relkind = 'i' AND c.relname = $1 AND n.nspname = $2
)`
)

// presenceQuery returns the catalog lookup for c.
func (c Constraint) presenceQuery() (string, []any) {
	ns := c.Schema
	if ns == "" {
		ns = "public"
	}
	if c.Kind == Index {
		return indexExistsSQL, []any{c.Name, ns}
	}
	return constraintExistsSQL, []any{c.Name, ns}
}

func (c Constraint) String() string {
	return c.Kind.String() + " " + c.Name + " on " + c.fqn() + "(" + strings.Join(c.Columns, ",") + ")"
}

// Plan is the ordered set of constraints for a catalog.
type Plan struct {
	// ReferenceKeys are the primary keys of the reference tables.
	ReferenceKeys []Constraint
	// TableKeys are the primary keys of the entity and child tables.
	TableKeys   []Constraint
	Indexes     []Constraint
	ForeignKeys []Constraint
}

// BuildPlan derives the constraint plan from tables. Foreign keys are ordered
// so the entity table's keys come before those of child tables.
func BuildPlan(schemaName string, tables []schema.Table) Plan {
	var p Plan
	for _, t := range tables {
		if len(t.Key) > 0 {
			c := Constraint{Kind: PrimaryKey, Name: t.KeyName(), Schema: schemaName, Table: t.Name, Columns: t.Key}
			if t.Kind == schema.Reference {
				p.ReferenceKeys = append(p.ReferenceKeys, c)
			} else {
				p.TableKeys = append(p.TableKeys, c)
			}
		}
		for _, ix := range t.Indexes {
			p.Indexes = append(p.Indexes, Constraint{
				Kind: Index, Name: ix.Name, Schema: schemaName, Table: t.Name, Columns: ix.Columns,
			})
		}
	}
	for _, kind := range []schema.Kind{schema.Reference, schema.Entity, schema.Child} {
		for _, t := range tables {
			if t.Kind != kind {
				continue
			}
			for _, fk := range t.ForeignKeys {
				p.ForeignKeys = append(p.ForeignKeys, Constraint{
					Kind:      ForeignKey,
					Name:      fk.Name,
					Schema:    schemaName,
					Table:     t.Name,
					Columns:   []string{fk.Column},
					RefTable:  fk.Ref,
					RefColumn: fk.RefColumn,
				})
			}
		}
	}
	return p
}

// All returns every constraint in application order.
func (p Plan) All() []Constraint {
	out := make([]Constraint, 0, len(p.ReferenceKeys)+len(p.TableKeys)+len(p.Indexes)+len(p.ForeignKeys))
	out = append(out, p.ReferenceKeys...)
	out = append(out, p.TableKeys...)
	out = append(out, p.Indexes...)
	return append(out, p.ForeignKeys...)
}
