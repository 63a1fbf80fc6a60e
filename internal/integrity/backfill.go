package integrity

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
)

// DefaultSentinelLabel prefixes the name of every synthesized reference row;
// the code follows in parentheses.
const DefaultSentinelLabel = "NOT PRESENT IN SOURCE"

// Backfiller inserts sentinel rows into reference tables for every code that
// a referencing table uses but the reference table lacks.
type Backfiller struct {
	repo   storage.Repository
	schema string
	label  string
	log    *zap.Logger
}

// NewBackfiller returns a Backfiller. An empty label uses
// DefaultSentinelLabel.
func NewBackfiller(repo storage.Repository, schemaName, label string, log *zap.Logger) *Backfiller {
	if label == "" {
		label = DefaultSentinelLabel
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Backfiller{repo: repo, schema: schemaName, label: label, log: log}
}

func (b *Backfiller) fqn(table string) string {
	if b.schema == "" {
		return ddl.QuoteIdent(table)
	}
	return ddl.QuoteFQN(b.schema + "." + table)
}

// BackfillSQL renders the anti-join insert for one foreign key of child. The
// label is bound as $1.
func (b *Backfiller) BackfillSQL(child string, fk schema.ForeignKey) string {
	col := ddl.QuoteIdent(fk.Column)
	ref := ddl.QuoteIdent(fk.RefColumn)
	return fmt.Sprintf(`INSERT INTO %[1]s (%[2]s, "nome")
SELECT DISTINCT c.%[3]s, $1::text || ' (' || c.%[3]s::text || ')'
FROM %[4]s c
WHERE c.%[3]s IS NOT NULL
  AND NOT EXISTS (SELECT 1 FROM %[1]s r WHERE r.%[2]s = c.%[3]s)`,
		b.fqn(fk.Ref), ref, col, b.fqn(child))
}

// Run backfills every foreign key from tables into a reference table and
// returns the number of sentinels inserted per reference table.
func (b *Backfiller) Run(ctx context.Context, tables []schema.Table) (map[string]int64, error) {
	inserted := map[string]int64{}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			ref, ok := schema.Lookup(fk.Ref)
			if !ok || ref.Kind != schema.Reference {
				continue
			}
			n, err := b.repo.Exec(ctx, b.BackfillSQL(t.Name, fk), b.label)
			if err != nil {
				return inserted, fmt.Errorf("backfill %s from %s.%s: %w", fk.Ref, t.Name, fk.Column, err)
			}
			inserted[fk.Ref] += n
			if n > 0 {
				b.log.Info("sentinel rows inserted",
					zap.String("reference", fk.Ref),
					zap.String("table", t.Name),
					zap.String("column", fk.Column),
					zap.Int64("rows", n),
				)
			}
		}
	}
	return inserted, nil
}
