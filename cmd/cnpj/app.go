package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/danalec/CNPJ-Receita-Federal/internal/config"
	"github.com/danalec/CNPJ-Receita-Federal/internal/ddl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/gate"
	"github.com/danalec/CNPJ-Receita-Federal/internal/integrity"
	"github.com/danalec/CNPJ-Receita-Federal/internal/jsonl"
	"github.com/danalec/CNPJ-Receita-Federal/internal/lock"
	"github.com/danalec/CNPJ-Receita-Federal/internal/metrics"
	"github.com/danalec/CNPJ-Receita-Federal/internal/metrics/datadog"
	"github.com/danalec/CNPJ-Receita-Federal/internal/metrics/prompush"
	"github.com/danalec/CNPJ-Receita-Federal/internal/pipeline"
	"github.com/danalec/CNPJ-Receita-Federal/internal/quarantine"
	"github.com/danalec/CNPJ-Receita-Federal/internal/runstate"
	"github.com/danalec/CNPJ-Receita-Federal/internal/source"
	"github.com/danalec/CNPJ-Receita-Federal/internal/storage"
	"github.com/danalec/CNPJ-Receita-Federal/internal/telemetry"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"

	_ "github.com/danalec/CNPJ-Receita-Federal/internal/storage/postgres"
)

// Ledger stage names.
const (
	stageLoad        = "load"
	stageConstraints = "constraints"
)

// Test seams.
var (
	newRepositoryFn = storage.New
	newRunID        = uuid.NewString
)

// app holds everything a command needs for one run.
type app struct {
	cfg    config.Config
	log    *zap.Logger
	runID  string
	repo   storage.Repository
	ledger *runstate.Ledger
	lock   *lock.Lock

	// tfiles and agg are shared by both stages so that run writes one
	// summary covering the load and the post-load events.
	tfiles *jsonl.Store
	agg    *telemetry.Aggregator
	loaded bool
}

// openApp takes the single-instance lock, then opens the ledger, the
// metrics backend and the database.
func openApp(ctx context.Context, cfg config.Config, log *zap.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, runID: newRunID()}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	for _, p := range []string{cfg.State.LockPath, cfg.State.LedgerPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("state dir: %w", err)
		}
	}
	if a.lock, err = lock.Acquire(cfg.State.LockPath); err != nil {
		return nil, err
	}
	if a.ledger, err = runstate.Open(ctx, cfg.State.LedgerPath); err != nil {
		return nil, err
	}
	if a.tfiles, err = openStore(cfg.Telemetry.Dir, cfg.Telemetry.MaxBytes, cfg.Telemetry.RetentionDays); err != nil {
		return nil, fmt.Errorf("telemetry store: %w", err)
	}
	a.agg = telemetry.New(a.tfiles, telemetry.Options{
		RunID:      a.runID,
		MaxSamples: cfg.Telemetry.MaxSamples,
		Log:        log,
	})
	if err := setupMetrics(cfg.Metrics, log); err != nil {
		return nil, err
	}
	a.repo, err = newRepositoryFn(ctx, storage.Config{
		Kind:     storage.KindPostgres,
		DSN:      cfg.Database.DSN,
		MaxConns: cfg.Database.MaxConns,
	})
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	log.Info("run started", zap.String("run_id", a.runID), zap.String("schema", cfg.Database.Schema))
	return a, nil
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	if a.repo != nil {
		a.repo.Close()
	}
	if err := metrics.Flush(); err != nil {
		a.log.Warn("metrics flush failed", zap.Error(err))
	}
	if a.tfiles != nil {
		if err := a.tfiles.Close(); err != nil {
			a.log.Warn("close telemetry store", zap.Error(err))
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.log.Warn("close run ledger", zap.Error(err))
		}
	}
	if err := a.lock.Release(); err != nil {
		a.log.Warn("release lock", zap.Error(err))
	}
}

// setupMetrics installs the configured metrics backend. Metrics stay on the
// no-op backend when disabled.
func setupMetrics(m config.Metrics, log *zap.Logger) error {
	if !m.Enabled {
		return nil
	}
	var (
		b   metrics.Backend
		err error
	)
	switch m.Backend {
	case config.BackendProm:
		b, err = prompush.NewBackend(prompush.Config{Job: m.Job, GatewayURL: m.Destination})
	case config.BackendTextfile:
		b, err = prompush.NewBackend(prompush.Config{Job: m.Job, TextfilePath: m.Destination})
	case config.BackendDatadog:
		b, err = datadog.NewBackend(datadog.Config{Addr: m.Destination, GlobalTags: []string{"job:" + m.Job}})
	default:
		err = fmt.Errorf("unknown metrics backend %q", m.Backend)
	}
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}
	metrics.SetBackend(b)
	log.Info("metrics enabled", zap.String("backend", m.Backend), zap.String("destination", m.Destination))
	return nil
}

// openStore opens a JSONL store under dir, partitioned by day.
func openStore(dir string, maxBytes int64, retention int) (*jsonl.Store, error) {
	return jsonl.Open(jsonl.Options{Dir: dir, MaxBytes: maxBytes, RetentionDays: retention})
}

// load recreates the schema and streams every configured table through the
// chunk processor.
func (a *app) load(ctx context.Context) ([]pipeline.TableResult, error) {
	cfg := a.cfg
	tables, err := cfg.Tables()
	if err != nil {
		return nil, err
	}
	profile, err := cfg.RepairProfile()
	if err != nil {
		return nil, err
	}
	gcfg, err := cfg.GateConfig()
	if err != nil {
		return nil, err
	}
	enricher, err := transformer.LoadEnricher(cfg.Repair.CEPMap, cfg.Repair.MunicipioMap)
	if err != nil {
		return nil, err
	}

	qfiles, err := openStore(cfg.Quarantine.Dir, cfg.Quarantine.MaxBytes, cfg.Quarantine.RetentionDays)
	if err != nil {
		return nil, fmt.Errorf("quarantine store: %w", err)
	}
	defer qfiles.Close()

	qstore := quarantine.NewStore(qfiles)

	defs := make([]ddl.TableDef, 0, len(tables))
	for _, t := range tables {
		defs = append(defs, t.TableDef(cfg.Database.Schema, cfg.Load.UseUnlogged))
	}
	if err := storage.Bootstrap(ctx, a.repo, cfg.Database.Schema, defs, true); err != nil {
		return nil, err
	}

	domains := transformer.NewDomainSet()
	proc, err := pipeline.NewProcessor(pipeline.ProcessorConfig{
		Schema: cfg.Database.Schema,
		Normalizer: transformer.New(transformer.Options{
			Profile:          profile,
			Enricher:         enricher,
			Domains:          domains,
			NullUnresolvedFK: cfg.Quarantine.NullUnresolvedFK,
		}),
		Router:     quarantine.Router{Strict: cfg.Quarantine.StrictFK},
		Gate:       gate.New(gcfg, a.log),
		Keys:       pipeline.NewKeyGuard(),
		Loader:     a.repo,
		Quarantine: qstore,
		Telemetry:  a.agg,
		Domains:    domains,
		Log:        a.log,
	})
	if err != nil {
		return nil, err
	}

	src := source.Dir{
		Root: cfg.Source.Dir,
		Opts: source.Options{
			Comma:      cfg.Delimiter(),
			Encoding:   cfg.Source.Encoding,
			LazyQuotes: cfg.Source.LazyQuotes,
			StripBOM:   cfg.Source.StripBOM,
		},
		Log:        a.log,
		Quarantine: qstore,
		RunID:      a.runID,
	}
	runner := pipeline.NewRunner(src, proc, domains, pipeline.RunnerOptions{
		ChunkSize: cfg.Load.ChunkSize,
		Workers:   cfg.Load.Workers,
		Buffer:    cfg.Load.Buffer,
	}, a.log)

	start := time.Now()
	results, err := runner.Run(ctx, tables)
	if err != nil {
		return results, err
	}
	for _, r := range results {
		a.log.Info("table loaded",
			zap.String("table", r.Table),
			zap.Int64("rows", r.Rows),
			zap.Int64("loaded", r.Loaded),
			zap.Int64("quarantined", r.Quarantined),
			zap.Int("chunks_skipped", r.Skipped),
			zap.Duration("elapsed", r.Elapsed),
		)
	}
	a.loaded = true
	if err := a.agg.WriteSummaries(a.tfiles); err != nil {
		return results, fmt.Errorf("telemetry summary: %w", err)
	}
	a.log.Info("load finished", zap.Int("tables", len(results)), zap.Duration("elapsed", time.Since(start)))
	return results, nil
}

// constraints runs the post-load sequence over every configured table.
func (a *app) constraints(ctx context.Context) (integrity.Report, error) {
	cfg := a.cfg
	tables, err := cfg.Tables()
	if err != nil {
		return integrity.Report{}, err
	}
	pl := integrity.NewPostLoad(a.repo, tables, integrity.Options{
		Schema:        cfg.Database.Schema,
		Backfill:      cfg.Integrity.Backfill,
		SentinelLabel: cfg.Integrity.SentinelLabel,
		SetLogged:     cfg.Load.UseUnlogged && cfg.Load.SetLoggedAfterCopy,
		Analyze:       cfg.Load.Analyze,
	}, a.agg, a.log)

	rep, err := pl.Run(ctx)
	if err != nil {
		return rep, err
	}
	path, err := a.tfiles.WriteDocument("postload_report", rep)
	if err != nil {
		return rep, fmt.Errorf("post-load report: %w", err)
	}
	a.log.Info("constraints applied",
		zap.Int("created", len(rep.Tally.Created)),
		zap.Int("already_present", len(rep.Tally.AlreadyPresent)),
		zap.String("report", path),
	)
	return rep, nil
}

func (a *app) trackedLoad(ctx context.Context) (res []pipeline.TableResult, err error) {
	err = a.ledger.Track(ctx, a.runID, stageLoad, func(ctx context.Context) error {
		res, err = a.load(ctx)
		return err
	})
	return res, err
}

func (a *app) trackedConstraints(ctx context.Context) (rep integrity.Report, err error) {
	err = a.ledger.Track(ctx, a.runID, stageConstraints, func(ctx context.Context) error {
		rep, err = a.constraints(ctx)
		return err
	})
	return rep, err
}

// run loads, unless the ledger says the last load completed and force is
// off, and then applies constraints unless they are skipped.
func (a *app) run(ctx context.Context, force bool) error {
	done, err := a.ledger.Completed(ctx, stageLoad)
	if err != nil {
		return err
	}
	switch {
	case done && !force:
		a.log.Info("load already completed; skipping (use --force to reload)")
	default:
		if _, err := a.trackedLoad(ctx); err != nil {
			return err
		}
	}

	if a.cfg.Load.SkipConstraints {
		a.log.Info("constraints skipped by load.skip_constraints")
		return nil
	}
	if _, err := a.trackedConstraints(ctx); err != nil {
		return err
	}
	if !a.loaded {
		return nil
	}
	// Rewrite the load summaries with the post-load events folded in.
	if err := a.agg.WriteSummaries(a.tfiles); err != nil {
		return fmt.Errorf("telemetry summary: %w", err)
	}
	return nil
}
