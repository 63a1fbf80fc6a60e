package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	copied     [][]any
	table      pgx.Identifier
	copyErr    error
	committed  bool
	rolledBack bool
}

func (f *fakeTx) CopyFrom(_ context.Context, table pgx.Identifier, _ []string, src pgx.CopyFromSource) (int64, error) {
	if f.copyErr != nil {
		return 0, f.copyErr
	}
	f.table = table
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return 0, err
		}
		f.copied = append(f.copied, v)
	}
	return int64(len(f.copied)), src.Err()
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return nil
}

func (f *fakeTx) Rollback(context.Context) error {
	if f.committed {
		return pgx.ErrTxClosed
	}
	f.rolledBack = true
	return nil
}

type fakeRow struct {
	val bool
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*bool)) = r.val
	return nil
}

type fakePool struct {
	tx     *fakeTx
	tag    string
	execs  []string
	args   [][]any
	row    fakeRow
	closed bool
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) { return p.tx, nil }

func (p *fakePool) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execs = append(p.execs, sql)
	p.args = append(p.args, args)
	return pgconn.NewCommandTag(p.tag), nil
}

func (p *fakePool) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	p.execs = append(p.execs, sql)
	p.args = append(p.args, args)
	return p.row
}

func (p *fakePool) Close() { p.closed = true }

func TestCopyFrom_CommitsChunk(t *testing.T) {
	t.Parallel()

	tx := &fakeTx{}
	r := &Repository{pool: &fakePool{tx: tx}}

	n, err := r.CopyFrom(context.Background(), "rfb.paises", []string{"codigo", "nome"},
		[][]any{{int64(105), "BRASIL"}, {int64(249), "ESTADOS UNIDOS"}})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, pgx.Identifier{"rfb", "paises"}, tx.table)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestCopyFrom_RollsBackOnError(t *testing.T) {
	t.Parallel()

	pgErr := &pgconn.PgError{Code: "22001", Message: "value too long", Detail: "column cep"}
	tx := &fakeTx{copyErr: pgErr}
	r := &Repository{pool: &fakePool{tx: tx}}

	_, err := r.CopyFrom(context.Background(), "rfb.estabelecimentos", []string{"cep"}, [][]any{{"123456789"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detail: column cep")
	var got *pgconn.PgError
	assert.True(t, errors.As(err, &got))
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestCopyFrom_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	r := &Repository{pool: &fakePool{}}
	n, err := r.CopyFrom(context.Background(), "rfb.paises", nil, nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestExecAndExists(t *testing.T) {
	t.Parallel()

	p := &fakePool{tag: "DELETE 3", row: fakeRow{val: true}}
	r := &Repository{pool: p}

	n, err := r.Exec(context.Background(), "DELETE FROM x WHERE y = $1", 1)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	ok, err := r.Exists(context.Background(), "SELECT EXISTS (SELECT 1)")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []any{1}, p.args[0])

	r.Close()
	assert.True(t, p.closed)
}

func TestExists_PropagatesErrors(t *testing.T) {
	t.Parallel()

	r := &Repository{pool: &fakePool{row: fakeRow{err: pgx.ErrNoRows}}}
	_, err := r.Exists(context.Background(), "SELECT false WHERE false")
	assert.ErrorIs(t, err, pgx.ErrNoRows)
}

func TestSplitFQN(t *testing.T) {
	t.Parallel()

	assert.Equal(t, pgx.Identifier{"rfb", "socios"}, splitFQN("rfb.socios"))
	assert.Equal(t, pgx.Identifier{"socios"}, splitFQN("socios"))
}
