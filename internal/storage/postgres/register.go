package postgres

import (
	"context"

	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
)

// open is replaced in tests to avoid a live server.
var open = Open

func init() {
	storage.Register(storage.KindPostgres, func(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
		return open(ctx, Config{DSN: cfg.DSN, MaxConns: cfg.MaxConns})
	})
}
