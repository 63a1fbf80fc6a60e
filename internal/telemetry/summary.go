package telemetry

import (
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
)

// Summary is the end-of-run document for one table and day.
type Summary struct {
	RunID             string                   `json:"run_id"`
	Table             string                   `json:"table"`
	Day               string                   `json:"day"`
	RowsTotal         int64                    `json:"rows_total"`
	RowsLoaded        int64                    `json:"rows_loaded"`
	ChunksProcessed   int64                    `json:"chunks_processed"`
	ChunksGateSkipped int64                    `json:"chunks_gate_skipped"`
	InvalidIdentifier int64                    `json:"invalid_identifier"`
	Quarantined       map[string]int64         `json:"quarantined"`
	ChangedCounts     map[string]int64         `json:"changed_counts"`
	NullDeltas        map[string]int64         `json:"null_deltas"`
	EnrichmentHits    map[string]int64         `json:"enrichment_hits,omitempty"`
	PostLoad          map[string]int64         `json:"post_load,omitempty"`
	Samples           []transformer.Diff       `json:"sample_diffs,omitempty"`
	Columns           map[string]ColumnProfile `json:"columns,omitempty"`
}

// ColumnProfile is the min/max/null profile of one loaded column. Min and Max
// are rendered as text; arrays only count nulls.
type ColumnProfile struct {
	Nulls   int64  `json:"nulls"`
	NonNull int64  `json:"non_null"`
	Min     string `json:"min,omitempty"`
	Max     string `json:"max,omitempty"`
}

type totals struct {
	mu sync.Mutex

	table, day  string
	chunks      int64
	rows        int64
	loaded      int64
	gateSkipped int64
	invalidIDs  int64
	quarantined map[string]int64
	changed     map[string]int64
	nullDelta   map[string]int64
	enrichment  map[string]int64
	postLoad    map[string]int64
	samples     []transformer.Diff
	columns     map[string]*columnProfile
}

func newTotals(table, day string) *totals {
	return &totals{
		table:       table,
		day:         day,
		quarantined: map[string]int64{},
		changed:     map[string]int64{},
		nullDelta:   map[string]int64{},
		enrichment:  map[string]int64{},
		postLoad:    map[string]int64{},
		columns:     map[string]*columnProfile{},
	}
}

func (t *totals) summary(runID string) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{
		RunID:             runID,
		Table:             t.table,
		Day:               t.day,
		RowsTotal:         t.rows,
		RowsLoaded:        t.loaded,
		ChunksProcessed:   t.chunks,
		ChunksGateSkipped: t.gateSkipped,
		InvalidIdentifier: t.invalidIDs,
		Quarantined:       copyCounts(t.quarantined),
		ChangedCounts:     copyCounts(t.changed),
		NullDeltas:        copyCounts(t.nullDelta),
		EnrichmentHits:    copyCounts(t.enrichment),
		PostLoad:          copyCounts(t.postLoad),
		Samples:           append([]transformer.Diff(nil), t.samples...),
		Columns:           make(map[string]ColumnProfile, len(t.columns)),
	}
	for name, p := range t.columns {
		s.Columns[name] = p.export()
	}
	return s
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// columnProfile keeps typed extremes so integers and dates compare by value.
type columnProfile struct {
	nulls, nonNull int64

	kind       byte // 'i' int64, 'f' float64, 't' time, 's' string
	minI, maxI int64
	minF, maxF float64
	minT, maxT time.Time
	minS, maxS string
}

func (p *columnProfile) observe(v any) {
	if v == nil {
		p.nulls++
		return
	}
	p.nonNull++
	first := p.nonNull == 1
	switch x := v.(type) {
	case int64:
		if first || x < p.minI {
			p.minI = x
		}
		if first || x > p.maxI {
			p.maxI = x
		}
		p.kind = 'i'
	case pgtype.Numeric:
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return
		}
		if first || f.Float64 < p.minF {
			p.minF = f.Float64
		}
		if first || f.Float64 > p.maxF {
			p.maxF = f.Float64
		}
		p.kind = 'f'
	case time.Time:
		if first || x.Before(p.minT) {
			p.minT = x
		}
		if first || x.After(p.maxT) {
			p.maxT = x
		}
		p.kind = 't'
	case string:
		if first || x < p.minS {
			p.minS = x
		}
		if first || x > p.maxS {
			p.maxS = x
		}
		p.kind = 's'
	}
}

func (p *columnProfile) export() ColumnProfile {
	out := ColumnProfile{Nulls: p.nulls, NonNull: p.nonNull}
	switch p.kind {
	case 'i':
		out.Min, out.Max = fmt.Sprint(p.minI), fmt.Sprint(p.maxI)
	case 'f':
		out.Min, out.Max = fmt.Sprintf("%.2f", p.minF), fmt.Sprintf("%.2f", p.maxF)
	case 't':
		out.Min, out.Max = p.minT.Format("2006-01-02"), p.maxT.Format("2006-01-02")
	case 's':
		out.Min, out.Max = p.minS, p.maxS
	}
	return out
}
