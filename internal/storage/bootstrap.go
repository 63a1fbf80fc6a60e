package storage

import (
	"context"
	"fmt"

	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
)

// Bootstrap creates schemaName and every table in defs. With reset, each
// table is dropped first so a load starts from empty tables.
func Bootstrap(ctx context.Context, repo Repository, schemaName string, defs []ddl.TableDef, reset bool) error {
	if _, err := repo.Exec(ctx, ddl.CreateSchemaSQL(schemaName)); err != nil {
		return fmt.Errorf("create schema %s: %w", schemaName, err)
	}
	for _, td := range defs {
		if reset {
			if _, err := repo.Exec(ctx, ddl.DropTableSQL(td.FQN)); err != nil {
				return fmt.Errorf("drop %s: %w", td.FQN, err)
			}
		}
		stmt, err := ddl.BuildCreateTableSQL(td)
		if err != nil {
			return fmt.Errorf("build DDL for %s: %w", td.FQN, err)
		}
		if _, err := repo.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("create %s: %w", td.FQN, err)
		}
	}
	return nil
}
