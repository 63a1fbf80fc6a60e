// Package telemetry accumulates per-chunk and per-table repair statistics.
//
// Every processed chunk produces one TelemetryRecord line in the telemetry
// store. Running totals per table and day feed the end-of-run summary
// document and the optional metrics export. Metrics are best-effort; only a
// failure to write the telemetry file itself is reported to the caller.
package telemetry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/gate"
	"github.com/danalec/CNPJ-Receita-Federal/internal/metrics"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Chunk verdicts.
const (
	VerdictLoaded      = "loaded"
	VerdictQualityGate = "quality_gate"
)

// Appender is the record-per-line store telemetry is written to.
type Appender interface {
	Append(table string, values ...any) error
}

// DocumentWriter persists the per-table summary documents.
type DocumentWriter interface {
	WriteDocument(name string, v any) (string, error)
}

// ChunkRecord is the telemetry line written once per processed chunk.
type ChunkRecord struct {
	Time           time.Time          `json:"ts"`
	RunID          string             `json:"run_id"`
	Table          string             `json:"table"`
	Chunk          int                `json:"chunk"`
	Profile        string             `json:"profile"`
	Verdict        string             `json:"verdict"`
	Rows           int                `json:"rows"`
	Loaded         int64              `json:"loaded"`
	Quarantined    map[string]int     `json:"quarantined,omitempty"`
	InvalidIDs     int                `json:"invalid_ids"`
	ChangedCounts  map[string]int     `json:"changed_counts"`
	NullDeltas     map[string]int     `json:"null_deltas"`
	Gate           gate.Verdict       `json:"gate"`
	Samples        []transformer.Diff `json:"sample_diffs,omitempty"`
	EnrichmentHits map[string]int     `json:"enrichment_hits,omitempty"`
}

// Options configures an Aggregator.
type Options struct {
	RunID string
	// MaxSamples caps the before/after samples kept per table and day.
	MaxSamples int
	Now        func() time.Time
	Log        *zap.Logger
}

// Aggregator is safe for concurrent use by one worker per table.
type Aggregator struct {
	opts Options
	out  Appender

	mu     sync.Mutex
	tables map[string]*totals
}

// New returns an Aggregator writing chunk records to out.
func New(out Appender, opts Options) *Aggregator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 20
	}
	return &Aggregator{opts: opts, out: out, tables: make(map[string]*totals)}
}

// RunID returns the run identifier stamped on every record.
func (a *Aggregator) RunID() string { return a.opts.RunID }

func (a *Aggregator) totalsFor(table string) *totals {
	day := a.opts.Now().UTC().Format("2006-01-02")
	key := table + "|" + day

	a.mu.Lock()
	defer a.mu.Unlock()
	t, ok := a.tables[key]
	if !ok {
		t = newTotals(table, day)
		a.tables[key] = t
	}
	return t
}

// RecordChunk writes rec and folds it into the running totals. rec.Time and
// rec.RunID are filled when empty.
func (a *Aggregator) RecordChunk(rec ChunkRecord) error {
	if rec.Time.IsZero() {
		rec.Time = a.opts.Now().UTC()
	}
	if rec.RunID == "" {
		rec.RunID = a.opts.RunID
	}
	if err := a.out.Append(rec.Table, rec); err != nil {
		return err
	}

	t := a.totalsFor(rec.Table)
	t.mu.Lock()
	t.chunks++
	t.rows += int64(rec.Rows)
	t.loaded += rec.Loaded
	t.invalidIDs += int64(rec.InvalidIDs)
	if rec.Verdict == VerdictQualityGate {
		t.gateSkipped++
	}
	for r, n := range rec.Quarantined {
		t.quarantined[r] += int64(n)
	}
	for c, n := range rec.ChangedCounts {
		t.changed[c] += int64(n)
	}
	for c, n := range rec.NullDeltas {
		t.nullDelta[c] += int64(n)
	}
	for s, n := range rec.EnrichmentHits {
		t.enrichment[s] += int64(n)
	}
	for _, d := range rec.Samples {
		if len(t.samples) >= a.opts.MaxSamples {
			break
		}
		t.samples = append(t.samples, d)
	}
	t.mu.Unlock()

	a.export(rec)
	return nil
}

func (a *Aggregator) export(rec ChunkRecord) {
	verdict := "loaded"
	if rec.Verdict == VerdictQualityGate {
		verdict = "skipped"
		metrics.RecordRow(rec.Table, "gate_skipped", int64(rec.Rows))
	}
	metrics.RecordChunk(rec.Table, verdict)
	metrics.RecordRow(rec.Table, "processed", int64(rec.Rows))
	metrics.RecordRow(rec.Table, "loaded", rec.Loaded)
	metrics.RecordRow(rec.Table, "invalid_identifier", int64(rec.InvalidIDs))
	for _, n := range rec.Quarantined {
		metrics.RecordRow(rec.Table, "quarantined", int64(n))
	}
	for c, n := range rec.ChangedCounts {
		metrics.RecordRepair(rec.Table, c, "changed", int64(n))
	}
	for c, n := range rec.NullDeltas {
		metrics.RecordRepair(rec.Table, c, "nulled", int64(n))
	}
	for s, n := range rec.EnrichmentHits {
		metrics.RecordRepair(rec.Table, s, "enriched", int64(n))
	}
}

// ObserveLoaded updates per-column min/max/null profiles with rows that were
// appended to table.
func (a *Aggregator) ObserveLoaded(table string, columns []string, rows []records.Record) {
	t := a.totalsFor(table)
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, r := range rows {
		for _, c := range columns {
			p, ok := t.columns[c]
			if !ok {
				p = &columnProfile{}
				t.columns[c] = p
			}
			p.observe(r[c])
		}
	}
}

// RecordPostLoad counts a post-load event against table: "sentinels" or
// "orphans_deleted".
func (a *Aggregator) RecordPostLoad(stage, table string, n int64) {
	t := a.totalsFor(table)
	t.mu.Lock()
	t.postLoad[stage] += n
	t.mu.Unlock()
	metrics.RecordIntegrity(stage, table, n)
}

// Summaries returns one summary per table and day, sorted by table.
func (a *Aggregator) Summaries() []Summary {
	a.mu.Lock()
	all := make([]*totals, 0, len(a.tables))
	for _, t := range a.tables {
		all = append(all, t)
	}
	a.mu.Unlock()

	out := make([]Summary, 0, len(all))
	for _, t := range all {
		out = append(out, t.summary(a.opts.RunID))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Day < out[j].Day
	})
	return out
}

// WriteSummaries writes one "<table>_<day>_summary" document per table and
// day and logs each path.
func (a *Aggregator) WriteSummaries(w DocumentWriter) error {
	for _, s := range a.Summaries() {
		path, err := w.WriteDocument(s.Table+"_"+s.Day+"_summary", s)
		if err != nil {
			return err
		}
		a.opts.Log.Info("telemetry summary written",
			zap.String("table", s.Table),
			zap.Int64("rows_total", s.RowsTotal),
			zap.Int64("rows_loaded", s.RowsLoaded),
			zap.String("path", path),
		)
	}
	return nil
}
