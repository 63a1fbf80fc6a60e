// Package storage holds the storage-agnostic contracts used by the loader and
// the post-load integrity stages, plus a small factory that lets backends
// register themselves by kind.
package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Repository is the database boundary. Implementations must be safe for
// concurrent use by one goroutine per table.
type Repository interface {
	// CopyFrom bulk-appends rows to table inside a single transaction: either
	// every row is appended or none is.
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
	// Exec runs a statement and returns the number of affected rows.
	Exec(ctx context.Context, sql string, args ...any) (int64, error)
	// Exists runs a query returning a single boolean column.
	Exists(ctx context.Context, sql string, args ...any) (bool, error)
	Close()
}

// KindPostgres is the kind registered by the postgres package.
const KindPostgres = "postgres"

// Config selects and configures a backend.
type Config struct {
	Kind string
	DSN  string
	// MaxConns bounds the connection pool; 0 keeps the driver default.
	MaxConns int32
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register makes a backend available under kind, replacing any previous
// registration.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository using the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storage: unknown kind %q (registered: %s); is the backend package imported?",
			cfg.Kind, strings.Join(ListKinds(), ", "))
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
