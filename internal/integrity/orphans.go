package integrity

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
)

// ErrMissingParentKey is returned when orphan cleanup is attempted before the
// entity table's primary key exists.
var ErrMissingParentKey = errors.New("integrity: entity primary key is not present")

// OrphanCleaner deletes child rows whose entity parent does not exist.
type OrphanCleaner struct {
	repo    storage.Repository
	applier *Applier
	schema  string
	log     *zap.Logger
}

// NewOrphanCleaner returns an OrphanCleaner.
func NewOrphanCleaner(repo storage.Repository, schemaName string, log *zap.Logger) *OrphanCleaner {
	if log == nil {
		log = zap.NewNop()
	}
	return &OrphanCleaner{repo: repo, applier: NewApplier(repo, log), schema: schemaName, log: log}
}

// OrphanSQL renders the anti-join delete for child against parent via fk.
func (o *OrphanCleaner) OrphanSQL(child string, fk schema.ForeignKey) string {
	q := func(t string) string {
		if o.schema == "" {
			return ddl.QuoteIdent(t)
		}
		return ddl.QuoteFQN(o.schema + "." + t)
	}
	return fmt.Sprintf(`DELETE FROM %s c
WHERE NOT EXISTS (SELECT 1 FROM %s p WHERE p.%s = c.%s)`,
		q(child), q(fk.Ref), ddl.QuoteIdent(fk.RefColumn), ddl.QuoteIdent(fk.Column))
}

// Run deletes orphans from every table holding a foreign key into the entity
// table and returns the deleted count per table.
func (o *OrphanCleaner) Run(ctx context.Context, tables []schema.Table) (map[string]int64, error) {
	deleted := map[string]int64{}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			parent, ok := schema.Lookup(fk.Ref)
			if !ok || parent.Kind != schema.Entity {
				continue
			}
			pk := Constraint{Kind: PrimaryKey, Name: parent.KeyName(), Schema: o.schema, Table: parent.Name}
			present, err := o.applier.Present(ctx, pk)
			if err != nil {
				return deleted, err
			}
			if !present {
				return deleted, fmt.Errorf("clean %s: %w", t.Name, ErrMissingParentKey)
			}

			n, err := o.repo.Exec(ctx, o.OrphanSQL(t.Name, fk))
			if err != nil {
				return deleted, fmt.Errorf("delete orphans from %s: %w", t.Name, err)
			}
			deleted[t.Name] += n
			o.log.Info("orphan rows deleted", zap.String("table", t.Name), zap.Int64("rows", n))
		}
	}
	return deleted, nil
}
