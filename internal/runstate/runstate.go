// Package runstate keeps a small SQLite ledger of pipeline stages so a rerun
// can skip work that already completed.
package runstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Status of a stage entry.
type Status string

const (
	Running   Status = "running"
	Completed Status = "completed"
	Failed    Status = "failed"
)

// Entry is one stage execution.
type Entry struct {
	RunID    string
	Stage    string
	Status   Status
	Started  time.Time
	Finished time.Time
	Error    string
}

var migrations = []string{`CREATE TABLE IF NOT EXISTS stages (
	run_id      TEXT NOT NULL,
	stage       TEXT NOT NULL,
	status      TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER,
	error       TEXT,
	PRIMARY KEY (run_id, stage)
)`, `CREATE TABLE IF NOT EXISTS meta (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`}

// Ledger records stage transitions.
type Ledger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the ledger database at path.
func Open(ctx context.Context, path string) (*Ledger, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("runstate: path must not be empty")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("runstate: open: %w", err)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("runstate: ping: %w", err)
	}
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			db.Close()
			return nil, fmt.Errorf("runstate: migrate: %w", err)
		}
	}
	return &Ledger{db: db, now: time.Now}, nil
}

// Begin marks stage as running for runID.
func (l *Ledger) Begin(ctx context.Context, runID, stage string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO stages (run_id, stage, status, started_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (run_id, stage) DO UPDATE SET status = excluded.status,
		   started_at = excluded.started_at, finished_at = NULL, error = NULL`,
		runID, stage, string(Running), l.now().UnixNano())
	if err != nil {
		return fmt.Errorf("runstate: begin %s: %w", stage, err)
	}
	return nil
}

// Finish closes the stage as completed, or failed when cause is non-nil.
func (l *Ledger) Finish(ctx context.Context, runID, stage string, cause error) error {
	status, msg := Completed, sql.NullString{}
	if cause != nil {
		status = Failed
		msg = sql.NullString{String: cause.Error(), Valid: true}
	}
	res, err := l.db.ExecContext(ctx,
		`UPDATE stages SET status = ?, finished_at = ?, error = ? WHERE run_id = ? AND stage = ?`,
		string(status), l.now().UnixNano(), msg, runID, stage)
	if err != nil {
		return fmt.Errorf("runstate: finish %s: %w", stage, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("runstate: finish %s: stage was never begun in run %s", stage, runID)
	}
	return nil
}

// Last returns the most recent entry for stage across all runs.
func (l *Ledger) Last(ctx context.Context, stage string) (Entry, bool, error) {
	var (
		e        Entry
		status   string
		started  int64
		finished sql.NullInt64
		msg      sql.NullString
	)
	err := l.db.QueryRowContext(ctx,
		`SELECT run_id, stage, status, started_at, finished_at, error
		   FROM stages WHERE stage = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, stage).
		Scan(&e.RunID, &e.Stage, &status, &started, &finished, &msg)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("runstate: last %s: %w", stage, err)
	}
	e.Status = Status(status)
	e.Started = time.Unix(0, started)
	if finished.Valid {
		e.Finished = time.Unix(0, finished.Int64)
	}
	e.Error = msg.String
	return e, true, nil
}

// Completed reports whether the latest execution of stage completed.
func (l *Ledger) Completed(ctx context.Context, stage string) (bool, error) {
	e, ok, err := l.Last(ctx, stage)
	if err != nil || !ok {
		return false, err
	}
	return e.Status == Completed, nil
}

// Track runs fn between Begin and Finish.
func (l *Ledger) Track(ctx context.Context, runID, stage string, fn func(context.Context) error) error {
	if err := l.Begin(ctx, runID, stage); err != nil {
		return err
	}
	runErr := fn(ctx)
	// Record the outcome even if ctx was canceled.
	if err := l.Finish(context.WithoutCancel(ctx), runID, stage, runErr); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

// SetMeta stores value under key, replacing any previous value.
func (l *Ledger) SetMeta(ctx context.Context, key, value string) error {
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO meta (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, l.now().UnixNano())
	if err != nil {
		return fmt.Errorf("runstate: set %s: %w", key, err)
	}
	return nil
}

// Meta returns the value stored under key.
func (l *Ledger) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := l.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("runstate: get %s: %w", key, err)
	}
	return v, true, nil
}

// Close closes the database.
func (l *Ledger) Close() error { return l.db.Close() }
