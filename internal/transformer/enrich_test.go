package transformer

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadEnricher(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cepPath := filepath.Join(dir, "cep.csv")
	munPath := filepath.Join(dir, "municipios.csv")
	require.NoError(t, os.WriteFile(cepPath, []byte("cep;municipio;uf\n01001-000;São Paulo;sp\nbad;X;SP\n"), 0o644))
	require.NoError(t, os.WriteFile(munPath, []byte("codigo;nome;uf\n7107;SAO PAULO;SP\n9701;BRASILIA;DF\n"), 0o644))

	e, err := LoadEnricher(cepPath, munPath)
	require.NoError(t, err)

	p, ok := e.Place("01001000")
	require.True(t, ok)
	assert.Equal(t, Place{Municipio: "São Paulo", UF: "SP"}, p)

	code, ok := e.MunicipioCode("são paulo", "SP")
	require.True(t, ok)
	assert.EqualValues(t, 7107, code)

	code, ok = e.MunicipioCode("Brasília", "")
	require.True(t, ok, "name-only fallback")
	assert.EqualValues(t, 9701, code)
}

func TestLoadEnricher_Optional(t *testing.T) {
	t.Parallel()

	e, err := LoadEnricher("", "")
	require.NoError(t, err)
	assert.Nil(t, e)

	_, ok := e.Place("01001000")
	assert.False(t, ok, "nil enricher performs no lookups")

	_, err = LoadEnricher(filepath.Join(t.TempDir(), "missing.csv"), "")
	assert.Error(t, err)
}

func TestFoldName_Concurrent(t *testing.T) {
	t.Parallel()

	names := []struct{ in, want string }{
		{"São  Paulo", "SAO PAULO"},
		{"Brasília", "BRASILIA"},
		{"  Itaú de Minas ", "ITAU DE MINAS"},
		{"Santa Bárbara d'Oeste", "SANTA BARBARA D'OESTE"},
	}
	var wg sync.WaitGroup
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for _, n := range names {
					if got := FoldName(n.in); got != n.want {
						t.Errorf("FoldName(%q) = %q, want %q", n.in, got, n.want)
						return
					}
				}
			}
		}()
	}
	wg.Wait()
}
