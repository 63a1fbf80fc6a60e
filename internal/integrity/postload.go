package integrity

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/metrics"
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
)

const tracerName = "github.com/danalec/CNPJ-Receita-Federal/internal/integrity"

// Stage names, used for spans, metrics and telemetry events.
const (
	StageBackfill       = "backfill"
	StageReferenceKeys  = "reference_keys"
	StageTableKeys      = "table_keys"
	StageOrphans        = "orphans"
	StageIndexes        = "indexes"
	StageForeignKeys    = "foreign_keys"
	StageSetLogged      = "set_logged"
	StageAnalyze        = "analyze"
	EventSentinels      = "sentinels"
	EventOrphansDeleted = "orphans_deleted"
	EventCreated        = "constraints_created"
	EventAlreadyPresent = "constraints_already_present"
)

// Recorder receives post-load event counts. *telemetry.Aggregator satisfies it.
type Recorder interface {
	RecordPostLoad(stage, table string, n int64)
}

// Options configures the post-load sequence.
type Options struct {
	Schema string
	// Backfill toggles the domain backfill stage.
	Backfill      bool
	SentinelLabel string
	// SetLogged switches the UNLOGGED load tables to logged once constraints
	// exist.
	SetLogged bool
	Analyze   bool
}

// Report summarizes one post-load run.
type Report struct {
	Sentinels map[string]int64 `json:"sentinels"`
	Orphans   map[string]int64 `json:"orphans_deleted"`
	Tally
}

// PostLoad runs the fixed post-load sequence. It must not run concurrently
// with itself against the same schema; callers hold the single-instance lock.
type PostLoad struct {
	repo   storage.Repository
	tables []schema.Table
	opts   Options
	rec    Recorder
	log    *zap.Logger
	tracer trace.Tracer
}

// NewPostLoad returns a PostLoad over tables. rec may be nil.
func NewPostLoad(repo storage.Repository, tables []schema.Table, opts Options, rec Recorder, log *zap.Logger) *PostLoad {
	if log == nil {
		log = zap.NewNop()
	}
	return &PostLoad{
		repo:   repo,
		tables: tables,
		opts:   opts,
		rec:    rec,
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *PostLoad) record(event, table string, n int64) {
	if p.rec != nil && n > 0 {
		p.rec.RecordPostLoad(event, table, n)
	}
}

// step wraps fn in a span, a duration metric and a log line.
func (p *PostLoad) step(ctx context.Context, name string, fn func(context.Context) error) error {
	ctx, span := p.tracer.Start(ctx, "postload."+name, trace.WithAttributes(
		attribute.String("db.schema", p.opts.Schema),
	))
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	d := time.Since(start)
	metrics.RecordStep("postload", name, err, d)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.log.Error("post-load stage failed", zap.String("stage", name), zap.Duration("elapsed", d), zap.Error(err))
		return fmt.Errorf("%s: %w", name, err)
	}
	span.SetStatus(codes.Ok, "")
	p.log.Info("post-load stage done", zap.String("stage", name), zap.Duration("elapsed", d))
	return nil
}

type stage struct {
	name string
	fn   func(context.Context) error
}

// Run executes backfill, primary keys, orphan cleanup, indexes and foreign
// keys in that order, then the optional SET LOGGED and ANALYZE passes. Each
// stage completes for every table before the next starts.
func (p *PostLoad) Run(ctx context.Context) (Report, error) {
	rep := Report{Sentinels: map[string]int64{}, Orphans: map[string]int64{}}
	plan := BuildPlan(p.opts.Schema, p.tables)
	applier := NewApplier(p.repo, p.log)

	ensure := func(cs []Constraint) func(context.Context) error {
		return func(ctx context.Context) error {
			for _, c := range cs {
				o, err := applier.EnsureConstraint(ctx, c)
				if err != nil {
					return err
				}
				rep.Tally.add(c.Name, o)
				if o == Created {
					p.record(EventCreated, c.Table, 1)
				} else {
					p.record(EventAlreadyPresent, c.Table, 1)
				}
			}
			return nil
		}
	}

	steps := []stage{
		{StageBackfill, func(ctx context.Context) error {
			if !p.opts.Backfill {
				p.log.Info("domain backfill disabled")
				return nil
			}
			n, err := NewBackfiller(p.repo, p.opts.Schema, p.opts.SentinelLabel, p.log).Run(ctx, p.tables)
			for ref, c := range n {
				rep.Sentinels[ref] = c
				p.record(EventSentinels, ref, c)
			}
			return err
		}},
		{StageReferenceKeys, ensure(plan.ReferenceKeys)},
		{StageTableKeys, ensure(plan.TableKeys)},
		{StageOrphans, func(ctx context.Context) error {
			n, err := NewOrphanCleaner(p.repo, p.opts.Schema, p.log).Run(ctx, p.tables)
			for t, c := range n {
				rep.Orphans[t] = c
				p.record(EventOrphansDeleted, t, c)
			}
			return err
		}},
		{StageIndexes, ensure(plan.Indexes)},
		{StageForeignKeys, ensure(plan.ForeignKeys)},
	}
	if p.opts.SetLogged {
		steps = append(steps, stage{StageSetLogged, p.eachTable(ddl.SetLoggedSQL)})
	}
	if p.opts.Analyze {
		steps = append(steps, stage{StageAnalyze, p.eachTable(ddl.AnalyzeSQL)})
	}

	for _, s := range steps {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		if err := p.step(ctx, s.name, s.fn); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

func (p *PostLoad) eachTable(render func(fqn string) string) func(context.Context) error {
	return func(ctx context.Context) error {
		for _, t := range p.tables {
			if _, err := p.repo.Exec(ctx, render(t.FQN(p.opts.Schema))); err != nil {
				return fmt.Errorf("%s: %w", t.Name, err)
			}
		}
		return nil
	}
}
