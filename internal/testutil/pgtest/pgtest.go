//go:build integration

// Package pgtest starts a disposable Postgres for integration tests. When
// TEST_PG_DSN is set that database is used instead of a container.
package pgtest

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage/postgres"
)

// DSN returns a connection string to a Postgres the test may freely modify.
func DSN(t *testing.T) string {
	t.Helper()

	if dsn := os.Getenv("TEST_PG_DSN"); dsn != "" {
		return dsn
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("cnpj"),
		tcpostgres.WithUsername("cnpj"),
		tcpostgres.WithPassword("cnpj"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(ctr); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	return dsn
}

// Repository opens a storage.Repository against DSN(t).
func Repository(t *testing.T) storage.Repository {
	t.Helper()

	repo, err := postgres.Open(context.Background(), postgres.Config{DSN: DSN(t)})
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(repo.Close)
	return repo
}
