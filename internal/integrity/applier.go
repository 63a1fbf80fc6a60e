package integrity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
)

// Outcome is the result of EnsureConstraint.
type Outcome string

const (
	Created        Outcome = "created"
	AlreadyPresent Outcome = "already_present"
)

// SQLSTATEs raised when the object appeared between the lookup and the
// creation statement.
const (
	sqlstateDuplicateObject = "42710"
	sqlstateDuplicateTable  = "42P07"
)

// Applier creates constraints that are not yet present.
type Applier struct {
	repo storage.Repository
	log  *zap.Logger
}

// NewApplier returns an Applier executing against repo.
func NewApplier(repo storage.Repository, log *zap.Logger) *Applier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Applier{repo: repo, log: log}
}

// Present reports whether c exists in the catalog.
func (a *Applier) Present(ctx context.Context, c Constraint) (bool, error) {
	q, args := c.presenceQuery()
	ok, err := a.repo.Exists(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("check %s %s: %w", c.Kind, c.Name, err)
	}
	return ok, nil
}

// EnsureConstraint moves c from absent to present. It never drops or alters
// an existing object; any failure other than pre-existence is returned
// wrapped with the constraint name.
func (a *Applier) EnsureConstraint(ctx context.Context, c Constraint) (Outcome, error) {
	present, err := a.Present(ctx, c)
	if err != nil {
		return "", err
	}
	if present {
		a.log.Debug("constraint already present", zap.String("kind", c.Kind.String()), zap.String("name", c.Name))
		return AlreadyPresent, nil
	}
	if _, err := a.repo.Exec(ctx, c.Definition()); err != nil {
		if isDuplicate(err) {
			return AlreadyPresent, nil
		}
		return "", fmt.Errorf("create %s %s on %s: %w", c.Kind, c.Name, c.fqn(), err)
	}
	a.log.Info("constraint created",
		zap.String("kind", c.Kind.String()),
		zap.String("name", c.Name),
		zap.String("table", c.Table),
	)
	return Created, nil
}

// Tally counts outcomes of a batch of EnsureConstraint calls.
type Tally struct {
	Created        []string `json:"created"`
	AlreadyPresent []string `json:"already_present"`
}

func (t *Tally) add(name string, o Outcome) {
	if o == Created {
		t.Created = append(t.Created, name)
		return
	}
	t.AlreadyPresent = append(t.AlreadyPresent, name)
}

// EnsureAll applies cs in order and stops at the first failure.
func (a *Applier) EnsureAll(ctx context.Context, cs []Constraint) (Tally, error) {
	var t Tally
	for _, c := range cs {
		o, err := a.EnsureConstraint(ctx, c)
		if err != nil {
			return t, err
		}
		t.add(c.Name, o)
	}
	return t, nil
}

func isDuplicate(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == sqlstateDuplicateObject || pgErr.Code == sqlstateDuplicateTable
}
