package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/danalec/CNPJ-Receita-Federal/internal/gate"
	"github.com/danalec/CNPJ-Receita-Federal/internal/quarantine"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/telemetry"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

type harness struct {
	proc    *Processor
	loader  *fakeLoader
	sink    *fakeSink
	out     *memAppender
	agg     *telemetry.Aggregator
	domains *transformer.DomainSet
}

type harnessOpts struct {
	gate   gate.Config
	strict bool
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	h := &harness{
		loader:  &fakeLoader{},
		sink:    &fakeSink{},
		out:     &memAppender{},
		domains: transformer.NewDomainSet(),
	}
	h.agg = telemetry.New(h.out, telemetry.Options{RunID: "run-test"})
	proc, err := NewProcessor(ProcessorConfig{
		Schema:     "rfb",
		Normalizer: transformer.New(transformer.Options{Profile: transformer.ProfileBasic, Domains: h.domains}),
		Router:     quarantine.Router{Strict: o.strict},
		Gate:       gate.New(o.gate, zaptest.NewLogger(t)),
		Keys:       NewKeyGuard(),
		Loader:     h.loader,
		Quarantine: h.sink,
		Telemetry:  h.agg,
		Domains:    h.domains,
		Log:        zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	h.proc = proc
	return h
}

func unit(basico, ordem, dv string) records.Record {
	return records.Record{
		"cnpj_basico": basico, "cnpj_ordem": ordem, "cnpj_dv": dv,
		"cnae_fiscal_secundaria": "4711302,5611201",
		"uf":                     "SP",
	}
}

func TestProcess_RoutesRows(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	est := mustTable(t, schema.Estabelecimentos)

	v, err := h.proc.Process(context.Background(), Chunk{Table: est, Seq: 0, Rows: []records.Record{
		unit("11222333", "0001", "81"),
		unit("11222333", "0001", "82"),
		unit("", "0001", "81"),
		unit("11222333", "0001", "81"),
		unit("11444777", "0001", "61"),
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusLoaded, v.Status)
	assert.Equal(t, int64(2), v.Loaded)
	assert.Equal(t, 3, v.Quarantined)
	assert.Equal(t, map[quarantine.Reason]int{
		quarantine.InvalidIdentifier:  1,
		quarantine.CriticalFieldsNull: 1,
		quarantine.DuplicateKey:       1,
	}, h.sink.reasons())

	rows := h.loader.rowsFor("rfb.estabelecimentos")
	require.Len(t, rows, 2)
	cols := est.ColumnNames()
	for i, c := range cols {
		if c == "cnae_fiscal_secundaria" {
			assert.Equal(t, []string{"4711302", "5611201"}, rows[0][i], "activity lists load as arrays")
		}
	}
	assert.Equal(t, 1, h.out.count(schema.Estabelecimentos), "one telemetry record per chunk")
	s := h.agg.Summaries()[0]
	assert.Equal(t, int64(1), s.InvalidIdentifier)
	assert.Equal(t, int64(5), s.RowsTotal)
}

func TestProcess_DuplicateKeyAcrossChunks(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{})
	est := mustTable(t, schema.Estabelecimentos)
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Chunk{Table: est, Seq: 0, Rows: []records.Record{unit("11222333", "0001", "81")}})
	require.NoError(t, err)
	v, err := h.proc.Process(ctx, Chunk{Table: est, Seq: 1, Rows: []records.Record{unit("11222333", "0001", "81")}})
	require.NoError(t, err)

	assert.Zero(t, v.Loaded)
	assert.Len(t, h.loader.rowsFor("rfb.estabelecimentos"), 1, "the triplet is never present twice")
	assert.Equal(t, 1, h.sink.reasons()[quarantine.DuplicateKey])
}

func TestProcess_GateSkipsWholeChunk(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{gate: gate.Config{
		Enabled: true, MinRows: 2, MaxChangedRatio: 0.5, MaxNullDeltaRatio: 0.5,
	}})
	emp := mustTable(t, schema.Empresas)
	rows := []records.Record{
		{"cnpj_basico": "11222333", "capital_social": "abc"},
		{"cnpj_basico": "11444777", "capital_social": "xyz"},
		{"cnpj_basico": "12345678", "capital_social": "1,00"},
	}

	v, err := h.proc.Process(context.Background(), Chunk{Table: emp, Seq: 3, Rows: rows})
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, v.Status)
	assert.Equal(t, quarantine.QualityGate, v.Reason)
	assert.Equal(t, "capital_social", v.Gate.Column)
	assert.Empty(t, h.loader.calls, "nothing is loaded from a skipped chunk")
	assert.Equal(t, map[quarantine.Reason]int{quarantine.QualityGate: 3}, h.sink.reasons())
	assert.Equal(t, 1, h.out.count(schema.Empresas))

	line := h.out.lines[schema.Empresas][0].(telemetry.ChunkRecord)
	assert.Equal(t, telemetry.VerdictQualityGate, line.Verdict)
	assert.Equal(t, 3, line.Chunk)
	assert.Equal(t, "run-test", h.sink.recs[0].RunID)
	assert.Equal(t, "abc", h.sink.recs[0].Payload["capital_social"], "the original payload is kept")

	// Keys from a skipped chunk are not remembered.
	v, err = h.proc.Process(context.Background(), Chunk{Table: emp, Seq: 4, Rows: rows[:1]})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Loaded)
}

func TestProcess_GateKeepsRowLevelReasons(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{gate: gate.Config{
		Enabled: true, MinRows: 2, MaxChangedRatio: 0.5, MaxNullDeltaRatio: 0.5,
	}})
	emp := mustTable(t, schema.Empresas)

	v, err := h.proc.Process(context.Background(), Chunk{Table: emp, Seq: 0, Rows: []records.Record{
		{"capital_social": "abc"},
		{"cnpj_basico": "11444777", "capital_social": "xyz"},
		{"cnpj_basico": "11444777", "capital_social": "qq"},
		{"cnpj_basico": "12345678", "capital_social": "1,00"},
	}})
	require.NoError(t, err)

	assert.Equal(t, StatusSkipped, v.Status)
	assert.Equal(t, 4, v.Quarantined)
	assert.Equal(t, map[quarantine.Reason]int{
		quarantine.CriticalFieldsNull: 1,
		quarantine.DuplicateKey:       1,
		quarantine.QualityGate:        2,
	}, h.sink.reasons())

	line := h.out.lines[schema.Empresas][0].(telemetry.ChunkRecord)
	assert.Equal(t, 2, line.Quarantined[string(quarantine.QualityGate)])
	assert.Equal(t, 1, line.Quarantined[string(quarantine.DuplicateKey)])
}

func TestProcess_StrictForeignKeys(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOpts{strict: true})
	ctx := context.Background()

	_, err := h.proc.Process(ctx, Chunk{Table: mustTable(t, schema.Qualificacoes), Rows: []records.Record{
		{"codigo": "49", "nome": "SOCIO-ADMINISTRADOR"},
	}})
	require.NoError(t, err)
	assert.True(t, h.domains.Has(schema.Qualificacoes, 49), "loaded reference codes feed the domain set")
	h.domains.MarkLoaded(schema.Qualificacoes)

	v, err := h.proc.Process(ctx, Chunk{Table: mustTable(t, schema.Socios), Rows: []records.Record{
		{"cnpj_basico": "11222333", "qualificacao_socio_codigo": "49"},
		{"cnpj_basico": "11222333", "qualificacao_socio_codigo": "99"},
	}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Loaded)
	assert.Equal(t, 1, h.sink.reasons()[quarantine.FKViolation])
}

func TestProcess_FatalErrors(t *testing.T) {
	t.Parallel()

	emp := mustTable(t, schema.Empresas)
	rows := []records.Record{{"cnpj_basico": "11222333"}}

	t.Run("loader", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		h.loader.err = errors.New("connection reset")
		_, err := h.proc.Process(context.Background(), Chunk{Table: emp, Rows: rows})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "load empresas chunk 0")

		h.loader.err = nil
		v, err := h.proc.Process(context.Background(), Chunk{Table: emp, Seq: 1, Rows: rows})
		require.NoError(t, err)
		assert.Equal(t, int64(1), v.Loaded, "a failed load does not remember keys")
	})

	t.Run("quarantine", func(t *testing.T) {
		h := newHarness(t, harnessOpts{})
		h.sink.err = errors.New("disk full")
		_, err := h.proc.Process(context.Background(), Chunk{Table: emp, Rows: []records.Record{{"cnpj_basico": "1"}}})
		require.Error(t, err)
		assert.Empty(t, h.loader.calls)
	})
}

func TestNewProcessor_RequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := NewProcessor(ProcessorConfig{})
	assert.Error(t, err)
}

func TestKeyGuard_KeylessTablesAdmitAll(t *testing.T) {
	t.Parallel()

	b := NewKeyGuard().Batch(mustTable(t, schema.Socios))
	row := records.Record{"cnpj_basico": "11222333"}
	assert.True(t, b.Admit(row))
	assert.True(t, b.Admit(row))
}
