package source

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danalec/CNPJ-Receita-Federal/internal/quarantine"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestDir_FilesMatchPatternInOrder(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "K3241.K03200Y1.D40511.SIMPLES.CSV.D40511", "")
	writeFile(t, dir, "K3241.K03200Y0.D40511.SIMPLES.CSV.D40511", "")
	writeFile(t, dir, "F.K03200$Z.D40511.PAISCSV", "")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "SIMPLES.dir"), 0o755))

	simples, _ := schema.Lookup(schema.Simples)
	files, err := Dir{Root: dir}.Files(simples)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "K3241.K03200Y0.D40511.SIMPLES.CSV.D40511", filepath.Base(files[0]))
}

func TestDir_RowsStreamsEveryFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "A.PAISCSV", "\"105\";\"BRASIL\"\n")
	writeFile(t, dir, "B.PAISCSV", "\"249\";\"ESTADOS UNIDOS\"\n")

	paises, _ := schema.Lookup(schema.Paises)
	out := make(chan records.Record, 4)
	d := Dir{Root: dir, Log: zaptest.NewLogger(t)}
	require.NoError(t, d.Rows(context.Background(), paises, out))
	close(out)

	var codes []any
	for r := range out {
		codes = append(codes, r["codigo"])
	}
	assert.Equal(t, []any{"105", "249"}, codes)
}

func TestDir_NoFilesIsNotAnError(t *testing.T) {
	t.Parallel()

	cnaes, _ := schema.Lookup(schema.Cnaes)
	out := make(chan records.Record, 1)
	assert.NoError(t, Dir{Root: t.TempDir()}.Rows(context.Background(), cnaes, out))
	assert.Empty(t, out)
}

type memSink struct {
	mu   sync.Mutex
	recs map[string][]quarantine.Record
}

func (m *memSink) Write(table string, recs []quarantine.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.recs == nil {
		m.recs = map[string][]quarantine.Record{}
	}
	m.recs[table] = append(m.recs[table], recs...)
	return nil
}

func TestDir_MalformedLinesAreQuarantined(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeFile(t, dir, "A.PAISCSV", "\"105\";\"BRASIL\"\n\"1\"0\"6\";\"X\"\n\"249\";\"EUA\";\"extra\"\n")

	paises, _ := schema.Lookup(schema.Paises)
	sink := &memSink{}
	out := make(chan records.Record, 4)
	d := Dir{Root: dir, Opts: Options{Encoding: EncodingUTF8}, Log: zaptest.NewLogger(t), Quarantine: sink, RunID: "run-1"}
	require.NoError(t, d.Rows(context.Background(), paises, out))
	close(out)

	var codes []any
	for r := range out {
		codes = append(codes, r["codigo"])
	}
	assert.Equal(t, []any{"105", "249"}, codes, "the long line still loads")

	got := sink.recs[schema.Paises]
	require.Len(t, got, 1)
	assert.Equal(t, quarantine.MalformedLine, got[0].Reason)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, schema.Paises, got[0].Table)
	assert.Equal(t, "A.PAISCSV", got[0].Payload["file"])
	assert.Equal(t, 2, got[0].Payload["line"])
	assert.NotEmpty(t, got[0].Payload["error"])
}
