package quarantine

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danalec/CNPJ-Receita-Federal/internal/jsonl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

func lookup(t *testing.T, name string) schema.Table {
	t.Helper()
	tb, ok := schema.Lookup(name)
	require.True(t, ok)
	return tb
}

func TestRouter_Route(t *testing.T) {
	t.Parallel()

	est := lookup(t, schema.Estabelecimentos)
	soc := lookup(t, schema.Socios)
	valid := records.Record{"cnpj_basico": "11222333", "cnpj_ordem": "0001", "cnpj_dv": "81"}

	tests := []struct {
		name   string
		router Router
		table  schema.Table
		res    transformer.Result
		want   Decision
	}{
		{
			name:  "accept clean row",
			table: est,
			res:   transformer.Result{Row: valid},
			want:  Decision{Accept: true},
		},
		{
			name:  "critical null",
			table: est,
			res:   transformer.Result{Row: records.Record{"cnpj_basico": "11222333"}},
			want:  Decision{Reason: CriticalFieldsNull, Fields: []string{"cnpj_ordem", "cnpj_dv"}},
		},
		{
			name:  "invalid identifier",
			table: est,
			res: transformer.Result{Row: valid, Issues: []transformer.FieldIssue{
				{Field: "cnpj_basico", Kind: transformer.IssueChecksum},
				{Field: "cnpj_ordem", Kind: transformer.IssueChecksum},
				{Field: "cnpj_dv", Kind: transformer.IssueChecksum},
			}},
			want: Decision{Reason: InvalidIdentifier, Fields: []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"}},
		},
		{
			name:  "partner checksum is not fatal",
			table: soc,
			res: transformer.Result{Row: records.Record{"cnpj_basico": "11222333"}, Issues: []transformer.FieldIssue{
				{Field: "cnpj_cpf_socio", Kind: transformer.IssueChecksum},
			}},
			want: Decision{Accept: true},
		},
		{
			name:  "unresolved fk non-strict",
			table: soc,
			res: transformer.Result{Row: records.Record{"cnpj_basico": "11222333"}, Issues: []transformer.FieldIssue{
				{Field: "qualificacao_socio_codigo", Kind: transformer.IssueUnresolvedFK},
			}},
			want: Decision{Accept: true},
		},
		{
			name:   "unresolved fk strict",
			router: Router{Strict: true},
			table:  soc,
			res: transformer.Result{Row: records.Record{"cnpj_basico": "11222333"}, Issues: []transformer.FieldIssue{
				{Field: "qualificacao_socio_codigo", Kind: transformer.IssueUnresolvedFK},
			}},
			want: Decision{Reason: FKViolation, Fields: []string{"qualificacao_socio_codigo"}},
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.router.Route(tc.table, tc.res))
		})
	}
}

// TestRouter_EndToEndWithNormalizer checks that a failing establishment
// check digit is rejected as invalid_identifier.
func TestRouter_EndToEndWithNormalizer(t *testing.T) {
	t.Parallel()

	est := lookup(t, schema.Estabelecimentos)
	n := transformer.New(transformer.Options{Profile: transformer.ProfileBasic})
	res := n.Normalize(est, records.Record{"cnpj_basico": "11222333", "cnpj_ordem": "0001", "cnpj_dv": "99"})

	d := Router{}.Route(est, res)
	assert.False(t, d.Accept)
	assert.Equal(t, InvalidIdentifier, d.Reason)
}

func TestStore_Write(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	now := time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC)
	files, err := jsonl.Open(jsonl.Options{Dir: dir, Now: func() time.Time { return now }})
	require.NoError(t, err)
	s := NewStore(files)

	require.NoError(t, s.Write("empresas", []Record{{
		Time: now, RunID: "r1", Table: "empresas", Chunk: 3, Reason: CriticalFieldsNull,
		Fields: []string{"cnpj_basico"}, Payload: records.Record{"cnpj_basico": "123"},
	}}))
	require.NoError(t, s.Write("empresas", nil))
	require.NoError(t, s.Close())

	f, err := os.Open(filepath.Join(dir, "2024-05-02", "empresas.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	var got map[string]any
	require.NoError(t, json.Unmarshal(sc.Bytes(), &got))
	assert.Equal(t, "critical_fields_null", got["reason"])
	assert.EqualValues(t, 3, got["chunk"])
	assert.Equal(t, map[string]any{"cnpj_basico": "123"}, got["payload"])
	assert.False(t, sc.Scan(), "exactly one record")
}
