package jsonl

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func countLines(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var v map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &v), "line %d is not JSON", n+1)
		n++
	}
	require.NoError(t, sc.Err())
	return n
}

func TestStore_PartitionsByDayAndTable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Now: fixedClock(time.Date(2024, 5, 2, 23, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	require.NoError(t, s.Append("empresas", map[string]any{"a": 1}, map[string]any{"a": 2}))
	require.NoError(t, s.Append("socios", map[string]any{"b": 1}))
	require.NoError(t, s.Close())

	assert.Equal(t, 2, countLines(t, filepath.Join(dir, "2024-05-02", "empresas.jsonl")))
	assert.Equal(t, 1, countLines(t, filepath.Join(dir, "2024-05-02", "socios.jsonl")))
}

func TestStore_RotatesAtSizeCap(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, MaxBytes: 64, Now: fixedClock(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	rec := map[string]string{"payload": "0123456789012345678901234567890123456789"} // ~52 bytes per line
	for i := 0; i < 3; i++ {
		require.NoError(t, s.Append("estabelecimentos", rec))
	}
	require.NoError(t, s.Close())

	day := filepath.Join(dir, "2024-05-02")
	assert.Equal(t, 1, countLines(t, filepath.Join(day, "estabelecimentos.jsonl")))
	assert.Equal(t, 1, countLines(t, filepath.Join(day, "estabelecimentos_1.jsonl")))
	assert.Equal(t, 1, countLines(t, filepath.Join(day, "estabelecimentos_2.jsonl")))
}

func TestStore_ResumesNewestFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := fixedClock(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))
	day := filepath.Join(dir, "2024-05-02")
	require.NoError(t, os.MkdirAll(day, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(day, "simples_3.jsonl"), []byte("{\"old\":true}\n"), 0o644))

	s, err := Open(Options{Dir: dir, Now: now})
	require.NoError(t, err)
	require.NoError(t, s.Append("simples", map[string]bool{"new": true}))
	require.NoError(t, s.Close())

	assert.Equal(t, 2, countLines(t, filepath.Join(day, "simples_3.jsonl")))
}

func TestStore_ConcurrentAppends(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Now: fixedClock(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				assert.NoError(t, s.Append("empresas", map[string]int{"w": w, "i": i}))
			}
		}(w)
	}
	wg.Wait()
	require.NoError(t, s.Close())

	assert.Equal(t, 800, countLines(t, filepath.Join(dir, "2024-05-02", "empresas.jsonl")))
}

func TestStore_PrunesExpiredDays(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	for _, d := range []string{"2024-04-01", "2024-05-01", "notadate"} {
		require.NoError(t, os.MkdirAll(filepath.Join(dir, d), 0o755))
	}
	_, err := Open(Options{Dir: dir, RetentionDays: 7, Now: fixedClock(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	assert.NoDirExists(t, filepath.Join(dir, "2024-04-01"))
	assert.DirExists(t, filepath.Join(dir, "2024-05-01"))
	assert.DirExists(t, filepath.Join(dir, "notadate"))
}

func TestStore_WriteDocument(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	s, err := Open(Options{Dir: dir, Now: fixedClock(time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC))})
	require.NoError(t, err)

	path, err := s.WriteDocument("empresas_summary", map[string]int{"rows_total": 3})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2024-05-02", "empresas_summary.json"), path)

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	var got map[string]int
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, 3, got["rows_total"])
}

func TestOpen_RequiresDir(t *testing.T) {
	t.Parallel()

	_, err := Open(Options{})
	assert.Error(t, err)
}
