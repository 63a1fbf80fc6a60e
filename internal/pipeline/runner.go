package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Source streams the raw rows of a table into out. It must return promptly
// once ctx is done and must not close out.
type Source interface {
	Rows(ctx context.Context, t schema.Table, out chan<- records.Record) error
}

// RunnerOptions configures a Runner.
type RunnerOptions struct {
	ChunkSize int
	// Workers bounds how many tables load at once.
	Workers int
	// Buffer is the row channel capacity between source and processor.
	Buffer int
}

// TableResult summarizes one table's load.
type TableResult struct {
	Table       string        `json:"table"`
	Chunks      int           `json:"chunks"`
	Skipped     int           `json:"chunks_skipped"`
	Rows        int64         `json:"rows"`
	Loaded      int64         `json:"loaded"`
	Quarantined int64         `json:"quarantined"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Runner loads tables with one worker per table. Reference tables load first
// so their code sets are known while the other tables are normalized.
type Runner struct {
	src     Source
	proc    *Processor
	domains *transformer.DomainSet
	opts    RunnerOptions
	log     *zap.Logger
}

// NewRunner returns a Runner. domains may be nil.
func NewRunner(src Source, proc *Processor, domains *transformer.DomainSet, opts RunnerOptions, log *zap.Logger) *Runner {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = 200_000
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Buffer <= 0 {
		opts.Buffer = 4096
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{src: src, proc: proc, domains: domains, opts: opts, log: log}
}

// Run loads tables and returns per-table results in the order given.
func (r *Runner) Run(ctx context.Context, tables []schema.Table) ([]TableResult, error) {
	var refs, rest []schema.Table
	for _, t := range tables {
		if t.Kind == schema.Reference {
			refs = append(refs, t)
		} else {
			rest = append(rest, t)
		}
	}

	var (
		mu      sync.Mutex
		results = make(map[string]TableResult, len(tables))
	)
	phase := func(ts []schema.Table) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Workers)
		for _, t := range ts {
			t := t
			g.Go(func() error {
				res, err := r.loadTable(gctx, t)
				if err != nil {
					return err
				}
				if r.domains != nil && t.Kind == schema.Reference {
					r.domains.MarkLoaded(t.Name)
					r.log.Debug("reference codes known", zap.String("table", t.Name), zap.Int("codes", r.domains.Size(t.Name)))
				}
				mu.Lock()
				results[t.Name] = res
				mu.Unlock()
				return nil
			})
		}
		return g.Wait()
	}

	if err := phase(refs); err != nil {
		return nil, err
	}
	if err := phase(rest); err != nil {
		return nil, err
	}

	out := make([]TableResult, 0, len(tables))
	for _, t := range tables {
		out = append(out, results[t.Name])
	}
	return out, nil
}

// loadTable streams t's rows in chunks through the processor.
func (r *Runner) loadTable(ctx context.Context, t schema.Table) (TableResult, error) {
	start := time.Now()
	res := TableResult{Table: t.Name}
	rows := make(chan records.Record, r.opts.Buffer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(rows)
		if err := r.src.Rows(gctx, t, rows); err != nil {
			return fmt.Errorf("read %s: %w", t.Name, err)
		}
		return nil
	})
	g.Go(func() error {
		_, err := storage.LoadBatches(gctx, rows, r.opts.ChunkSize,
			func(ctx context.Context, seq int, batch []records.Record) (int64, error) {
				v, err := r.proc.Process(ctx, Chunk{Table: t, Seq: seq, Rows: batch})
				if err != nil {
					return 0, err
				}
				res.Chunks++
				res.Rows += int64(len(batch))
				res.Loaded += v.Loaded
				res.Quarantined += int64(v.Quarantined)
				if v.Status == StatusSkipped {
					res.Skipped++
				}
				return v.Loaded, nil
			}, r.log)
		return err
	})
	if err := g.Wait(); err != nil {
		return res, err
	}

	res.Elapsed = time.Since(start)
	r.log.Info("table loaded",
		zap.String("table", t.Name),
		zap.Int("chunks", res.Chunks),
		zap.Int("chunks_skipped", res.Skipped),
		zap.Int64("rows", res.Rows),
		zap.Int64("loaded", res.Loaded),
		zap.Int64("quarantined", res.Quarantined),
		zap.Duration("elapsed", res.Elapsed.Truncate(time.Millisecond)),
	)
	return res, nil
}
