// Package gate implements the per-chunk quality gate: a chunk whose repair
// volume is anomalously high is skipped as a whole instead of being loaded
// with heuristically patched values.
package gate

import (
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
)

// Config holds the gate thresholds.
type Config struct {
	Enabled bool
	// MinRows is the smallest chunk the gate evaluates; smaller chunks
	// always pass.
	MinRows int
	// MaxChangedRatio is the largest tolerated fraction of rows whose value
	// changed in any single column.
	MaxChangedRatio float64
	// MaxNullDeltaRatio is the largest tolerated fraction of rows whose value
	// was nulled in any single column.
	MaxNullDeltaRatio float64
	// Severity is the log level used when the gate trips.
	Severity zapcore.Level
}

// Metric names reported in a Verdict.
const (
	MetricChanged   = "changed_ratio"
	MetricNullDelta = "null_delta_ratio"
)

// Stats aggregates a chunk's normalization results.
type Stats struct {
	Rows      int            `json:"rows"`
	Changed   map[string]int `json:"changed_counts"`
	NullDelta map[string]int `json:"null_deltas"`
}

// NewStats returns empty stats.
func NewStats() Stats {
	return Stats{Changed: map[string]int{}, NullDelta: map[string]int{}}
}

// Observe folds one row's result into s.
func (s *Stats) Observe(res transformer.Result) {
	if s.Changed == nil {
		s.Changed = map[string]int{}
	}
	if s.NullDelta == nil {
		s.NullDelta = map[string]int{}
	}
	s.Rows++
	for _, c := range res.Changed {
		s.Changed[c]++
	}
	for _, c := range res.Nulled {
		s.NullDelta[c]++
	}
}

// Verdict is the gate's decision for one chunk.
type Verdict struct {
	Pass bool `json:"pass"`
	// Evaluated is false when the gate is disabled or the chunk is smaller
	// than MinRows.
	Evaluated bool    `json:"evaluated"`
	Column    string  `json:"column,omitempty"`
	Metric    string  `json:"metric,omitempty"`
	Ratio     float64 `json:"ratio,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
}

// Gate evaluates chunk statistics against Config.
type Gate struct {
	cfg Config
	log *zap.Logger
}

// New returns a Gate. A nil logger discards trip events.
func New(cfg Config, log *zap.Logger) *Gate {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gate{cfg: cfg, log: log}
}

// Evaluate checks s. Columns are visited in name order so the reported
// column is deterministic.
func (g *Gate) Evaluate(table string, chunk int, s Stats) Verdict {
	if !g.cfg.Enabled || s.Rows == 0 || s.Rows < g.cfg.MinRows {
		return Verdict{Pass: true}
	}

	v := Verdict{Pass: true, Evaluated: true}
	if col, r, ok := worst(s.Changed, s.Rows, g.cfg.MaxChangedRatio); ok {
		v = Verdict{Evaluated: true, Column: col, Metric: MetricChanged, Ratio: r, Threshold: g.cfg.MaxChangedRatio}
	} else if col, r, ok := worst(s.NullDelta, s.Rows, g.cfg.MaxNullDeltaRatio); ok {
		v = Verdict{Evaluated: true, Column: col, Metric: MetricNullDelta, Ratio: r, Threshold: g.cfg.MaxNullDeltaRatio}
	}

	if !v.Pass {
		if ce := g.log.Check(g.cfg.Severity, "quality gate tripped; chunk skipped"); ce != nil {
			ce.Write(
				zap.String("table", table),
				zap.Int("chunk", chunk),
				zap.Int("rows", s.Rows),
				zap.String("column", v.Column),
				zap.String("metric", v.Metric),
				zap.Float64("ratio", v.Ratio),
				zap.Float64("threshold", v.Threshold),
			)
		}
	}
	return v
}

// worst returns the first column, in name order, whose ratio exceeds max.
func worst(counts map[string]int, rows int, max float64) (string, float64, bool) {
	if max <= 0 {
		return "", 0, false
	}
	cols := make([]string, 0, len(counts))
	for c := range counts {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		if r := float64(counts[c]) / float64(rows); r > max {
			return c, r, true
		}
	}
	return "", 0, false
}
