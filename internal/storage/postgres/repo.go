// Package postgres implements storage.Repository on pgx v5. Bulk appends use
// COPY inside a transaction so a chunk is either fully visible or absent.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds Postgres repository configuration.
type Config struct {
	DSN      string
	MaxConns int32
}

// pool is the subset of *pgxpool.Pool the repository uses. Tests replace it
// with an in-memory double.
type pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Repository is a Postgres-backed storage.Repository.
type Repository struct {
	pool pool
}

// Open connects a pgx pool and pings it.
func Open(ctx context.Context, cfg Config) (*Repository, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("pgxpool: %w", err)
	}
	if err := p.Ping(ctx); err != nil {
		p.Close()
		return nil, fmt.Errorf("pgxpool: ping: %w", err)
	}
	return &Repository{pool: p}, nil
}

// CopyFrom appends rows to table ("schema.table") with COPY in one
// transaction.
func (r *Repository) CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin copy into %s: %w", table, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	n, err := tx.CopyFrom(ctx, splitFQN(table), columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, fmt.Errorf("copy into %s: %w", table, describe(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit copy into %s: %w", table, err)
	}
	return n, nil
}

// Exec runs sql and returns the affected row count.
func (r *Repository) Exec(ctx context.Context, sql string, args ...any) (int64, error) {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return 0, describe(err)
	}
	return tag.RowsAffected(), nil
}

// Exists runs a query that yields one boolean.
func (r *Repository) Exists(ctx context.Context, sql string, args ...any) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, sql, args...).Scan(&ok); err != nil {
		return false, describe(err)
	}
	return ok, nil
}

// Close releases the pool.
func (r *Repository) Close() { r.pool.Close() }

// describe keeps the server's detail and SQLSTATE visible while preserving
// the *pgconn.PgError for errors.As.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (detail: %s)", err, pgErr.Detail)
	}
	return err
}

// splitFQN converts "schema.table" into a pgx.Identifier {"schema","table"}.
func splitFQN(fqn string) pgx.Identifier {
	parts := strings.Split(fqn, ".")
	id := make(pgx.Identifier, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			id = append(id, p)
		}
	}
	return id
}
