package integrity

import (
	"context"
	"regexp"
	"strings"
	"sync"
)

var createdName = regexp.MustCompile(`(?:ADD CONSTRAINT|CREATE INDEX) "([^"]+)"`)

// catalogRepo is an in-memory storage.Repository that tracks which named
// objects exist and records every statement.
type catalogRepo struct {
	mu      sync.Mutex
	present map[string]bool
	stmts   []string
	args    [][]any
	// affected returns the row count for INSERT/DELETE statements.
	affected func(sql string) int64
	// fail returns an error for a statement, if any.
	fail func(sql string) error
}

func newCatalogRepo() *catalogRepo {
	return &catalogRepo{present: map[string]bool{}}
}

func (r *catalogRepo) CopyFrom(context.Context, string, []string, [][]any) (int64, error) {
	return 0, nil
}

func (r *catalogRepo) Exec(_ context.Context, sql string, args ...any) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		if err := r.fail(sql); err != nil {
			return 0, err
		}
	}
	r.stmts = append(r.stmts, sql)
	r.args = append(r.args, args)
	if m := createdName.FindStringSubmatch(sql); m != nil {
		r.present[m[1]] = true
	}
	if r.affected != nil && (strings.HasPrefix(sql, "INSERT") || strings.HasPrefix(sql, "DELETE")) {
		return r.affected(sql), nil
	}
	return 0, nil
}

func (r *catalogRepo) Exists(_ context.Context, _ string, args ...any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.present[args[0].(string)], nil
}

func (r *catalogRepo) Close() {}

func (r *catalogRepo) statements(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, s := range r.stmts {
		if strings.HasPrefix(s, prefix) {
			out = append(out, s)
		}
	}
	return out
}

type eventRecorder struct {
	mu     sync.Mutex
	events map[string]int64
}

func (e *eventRecorder) RecordPostLoad(stage, table string, n int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.events == nil {
		e.events = map[string]int64{}
	}
	e.events[stage+"/"+table] += n
}
