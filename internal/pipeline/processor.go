// Package pipeline drives the per-chunk path (normalize, route, gate, load)
// and the table-level runner that feeds it.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/gate"
	"github.com/danalec/CNPJ-Receita-Federal/internal/quarantine"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/telemetry"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Chunk is a contiguous slice of source rows for one table.
type Chunk struct {
	Table schema.Table
	Seq   int
	Rows  []records.Record
}

// Status is the outcome of a chunk.
type Status string

const (
	StatusLoaded  Status = "loaded"
	StatusSkipped Status = "skipped"
)

// Verdict reports what happened to a chunk.
type Verdict struct {
	Status      Status
	Loaded      int64
	Reason      quarantine.Reason
	Stats       gate.Stats
	Gate        gate.Verdict
	Quarantined int
}

// Loader appends rows atomically. storage.Repository satisfies it.
type Loader interface {
	CopyFrom(ctx context.Context, table string, columns []string, rows [][]any) (int64, error)
}

// ChunkRecorder receives per-chunk telemetry. *telemetry.Aggregator
// satisfies it.
type ChunkRecorder interface {
	RunID() string
	RecordChunk(rec telemetry.ChunkRecord) error
	ObserveLoaded(table string, columns []string, rows []records.Record)
}

// ProcessorConfig wires a Processor.
type ProcessorConfig struct {
	Schema     string
	Normalizer *transformer.Normalizer
	Router     quarantine.Router
	Gate       *gate.Gate
	// Keys rejects duplicate keys; nil disables the check.
	Keys       *KeyGuard
	Loader     Loader
	Quarantine quarantine.Sink
	Telemetry  ChunkRecorder
	// Domains receives the codes of loaded reference tables; may be nil.
	Domains *transformer.DomainSet
	Log     *zap.Logger
	Now     func() time.Time
}

// maxChunkSamples caps the before/after diffs carried per chunk record.
const maxChunkSamples = 20

// Processor runs one chunk through normalize, route, gate and load. It is
// safe for concurrent use across tables; chunks of a single table must be
// processed in order by one goroutine.
type Processor struct {
	cfg ProcessorConfig
}

// NewProcessor validates cfg and returns a Processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	switch {
	case cfg.Normalizer == nil:
		return nil, fmt.Errorf("pipeline: normalizer is required")
	case cfg.Gate == nil:
		return nil, fmt.Errorf("pipeline: gate is required")
	case cfg.Loader == nil:
		return nil, fmt.Errorf("pipeline: loader is required")
	case cfg.Quarantine == nil:
		return nil, fmt.Errorf("pipeline: quarantine sink is required")
	case cfg.Telemetry == nil:
		return nil, fmt.Errorf("pipeline: telemetry is required")
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Processor{cfg: cfg}, nil
}

// Process handles c. Row and chunk level problems are reported in the
// Verdict; an error means quarantine, telemetry or the load itself failed and
// the run cannot continue.
func (p *Processor) Process(ctx context.Context, c Chunk) (Verdict, error) {
	start := p.cfg.Now()
	t := c.Table
	stats := gate.NewStats()
	keys := (*KeyBatch)(nil)
	if p.cfg.Keys != nil {
		keys = p.cfg.Keys.Batch(t)
	}

	var (
		accepted  []records.Record
		admitted  []records.Record // raw input of accepted, for the gate
		rejected  []quarantine.Record
		byReason  = map[string]int{}
		samples   []transformer.Diff
		enriched  = map[string]int{}
		invalidID int
	)
	reject := func(raw records.Record, reason quarantine.Reason, fields []string) {
		rejected = append(rejected, quarantine.Record{
			Time:    start.UTC(),
			RunID:   p.cfg.Telemetry.RunID(),
			Table:   t.Name,
			Chunk:   c.Seq,
			Reason:  reason,
			Fields:  fields,
			Payload: raw,
		})
		byReason[string(reason)]++
	}

	for _, raw := range c.Rows {
		res := p.cfg.Normalizer.Normalize(t, raw)
		stats.Observe(res)
		if room := maxChunkSamples - len(samples); room > 0 && len(res.Samples) > 0 {
			samples = append(samples, res.Samples[:min(room, len(res.Samples))]...)
		}
		for _, pv := range res.Provenance {
			enriched[pv]++
		}

		d := p.cfg.Router.Route(t, res)
		if !d.Accept {
			if d.Reason == quarantine.InvalidIdentifier {
				invalidID++
			}
			reject(raw, d.Reason, d.Fields)
			continue
		}
		if keys != nil && !keys.Admit(res.Row) {
			reject(raw, quarantine.DuplicateKey, t.Key)
			continue
		}
		accepted = append(accepted, res.Row)
		admitted = append(admitted, raw)
	}

	gv := p.cfg.Gate.Evaluate(t.Name, c.Seq, stats)
	rec := telemetry.ChunkRecord{
		Time:           start.UTC(),
		Table:          t.Name,
		Chunk:          c.Seq,
		Profile:        string(p.cfg.Normalizer.Profile()),
		Rows:           len(c.Rows),
		InvalidIDs:     invalidID,
		ChangedCounts:  stats.Changed,
		NullDeltas:     stats.NullDelta,
		Gate:           gv,
		Samples:        samples,
		EnrichmentHits: enriched,
	}

	if !gv.Pass {
		// Rows already rejected keep their own reason.
		for _, raw := range admitted {
			reject(raw, quarantine.QualityGate, nil)
		}
		if err := p.cfg.Quarantine.Write(t.Name, rejected); err != nil {
			return Verdict{}, fmt.Errorf("quarantine %s chunk %d: %w", t.Name, c.Seq, err)
		}
		rec.Verdict = telemetry.VerdictQualityGate
		rec.Quarantined = byReason
		if err := p.cfg.Telemetry.RecordChunk(rec); err != nil {
			return Verdict{}, fmt.Errorf("telemetry %s chunk %d: %w", t.Name, c.Seq, err)
		}
		return Verdict{
			Status:      StatusSkipped,
			Reason:      quarantine.QualityGate,
			Stats:       stats,
			Gate:        gv,
			Quarantined: len(rejected),
		}, nil
	}

	if err := p.cfg.Quarantine.Write(t.Name, rejected); err != nil {
		return Verdict{}, fmt.Errorf("quarantine %s chunk %d: %w", t.Name, c.Seq, err)
	}

	cols := t.ColumnNames()
	values := make([][]any, len(accepted))
	for i, r := range accepted {
		values[i] = r.Values(cols)
	}
	loaded, err := p.cfg.Loader.CopyFrom(ctx, t.FQN(p.cfg.Schema), cols, values)
	if err != nil {
		return Verdict{}, fmt.Errorf("load %s chunk %d: %w", t.Name, c.Seq, err)
	}
	if keys != nil {
		keys.Commit()
	}
	if p.cfg.Domains != nil && t.Kind == schema.Reference {
		for _, r := range accepted {
			if code, ok := r[t.Key[0]].(int64); ok {
				p.cfg.Domains.Add(t.Name, code)
			}
		}
	}
	p.cfg.Telemetry.ObserveLoaded(t.Name, cols, accepted)

	rec.Verdict = telemetry.VerdictLoaded
	rec.Loaded = loaded
	rec.Quarantined = byReason
	if err := p.cfg.Telemetry.RecordChunk(rec); err != nil {
		return Verdict{}, fmt.Errorf("telemetry %s chunk %d: %w", t.Name, c.Seq, err)
	}

	elapsed := p.cfg.Now().Sub(start)
	rps := float64(0)
	if elapsed > 0 {
		rps = float64(len(c.Rows)) / elapsed.Seconds()
	}
	p.cfg.Log.Info("chunk loaded",
		zap.String("table", t.Name),
		zap.Int("chunk", c.Seq),
		zap.Int("rows", len(c.Rows)),
		zap.Int64("loaded", loaded),
		zap.Int("quarantined", len(rejected)),
		zap.Float64("rps", rps),
	)
	return Verdict{
		Status:      StatusLoaded,
		Loaded:      loaded,
		Stats:       stats,
		Gate:        gv,
		Quarantined: len(rejected),
	}, nil
}
