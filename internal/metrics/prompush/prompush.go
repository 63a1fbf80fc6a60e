// Package prompush implements a Prometheus backend for the metrics package.
//
// Collectors live in a private registry. Flush delivers them in one or both
// of two ways:
//
//   - pushed to a Pushgateway, grouped under the configured job;
//   - written to a node_exporter textfile (atomically, via a temp file).
//
// All Prometheus-specific dependencies stay inside this package.
package prompush

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/danalec/CNPJ-Receita-Federal/internal/metrics"
)

// Config selects where Flush delivers metrics. At least one of GatewayURL or
// TextfilePath is required.
type Config struct {
	Job          string
	GatewayURL   string // e.g. http://pushgateway:9091
	TextfilePath string // e.g. /var/lib/node_exporter/cnpj.prom
}

// Backend is a Prometheus metrics backend.
type Backend struct {
	cfg Config
	reg *prometheus.Registry

	stepCounter    *prometheus.CounterVec
	stepDuration   *prometheus.SummaryVec
	rowCounter     *prometheus.CounterVec
	chunkCounter   *prometheus.CounterVec
	repairCounter  *prometheus.CounterVec
	integrityCount *prometheus.CounterVec
}

// NewBackend constructs a backend and registers its collectors.
func NewBackend(cfg Config) (*Backend, error) {
	if cfg.GatewayURL == "" && cfg.TextfilePath == "" {
		return nil, errors.New("prompush: gateway URL or textfile path is required")
	}
	if cfg.Job == "" {
		cfg.Job = "cnpj"
	}

	b := &Backend{
		cfg: cfg,
		reg: prometheus.NewRegistry(),
		stepCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Run step executions, partitioned by step and status.",
		}, []string{"step", "status"}),
		stepDuration: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of run steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		}, []string{"step", "status"}),
		rowCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RowsTotal,
			Help: "Rows per table and kind (processed, loaded, quarantined, ...).",
		}, []string{"table", "kind"}),
		chunkCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.ChunksTotal,
			Help: "Chunks per table and verdict.",
		}, []string{"table", "verdict"}),
		repairCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.RepairRowsTotal,
			Help: "Values repaired by the normalizer per table, column and kind.",
		}, []string{"table", "column", "kind"}),
		integrityCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metrics.IntegrityTotal,
			Help: "Post-load events per stage and table.",
		}, []string{"stage", "table"}),
	}

	for name, c := range map[string]prometheus.Collector{
		"step counter":      b.stepCounter,
		"step summary":      b.stepDuration,
		"row counter":       b.rowCounter,
		"chunk counter":     b.chunkCounter,
		"repair counter":    b.repairCounter,
		"integrity counter": b.integrityCount,
	} {
		if err := b.reg.Register(c); err != nil {
			return nil, fmt.Errorf("prompush: register %s: %w", name, err)
		}
	}
	return b, nil
}

func (b *Backend) IncCounter(name string, delta float64, l metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		b.stepCounter.WithLabelValues(l["step"], l["status"]).Add(delta)
	case metrics.RowsTotal:
		b.rowCounter.WithLabelValues(l["table"], l["kind"]).Add(delta)
	case metrics.ChunksTotal:
		b.chunkCounter.WithLabelValues(l["table"], l["verdict"]).Add(delta)
	case metrics.RepairRowsTotal:
		b.repairCounter.WithLabelValues(l["table"], l["column"], l["kind"]).Add(delta)
	case metrics.IntegrityTotal:
		b.integrityCount.WithLabelValues(l["stage"], l["table"]).Add(delta)
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, l metrics.Labels) {
	if name != metrics.StepDuration {
		return
	}
	b.stepDuration.WithLabelValues(l["step"], l["status"]).Observe(value)
}

// Flush writes the textfile and/or pushes to the gateway. Both are attempted
// even when one fails.
func (b *Backend) Flush() error {
	var errs []error
	if b.cfg.TextfilePath != "" {
		if err := prometheus.WriteToTextfile(b.cfg.TextfilePath, b.reg); err != nil {
			errs = append(errs, fmt.Errorf("prompush: textfile: %w", err))
		}
	}
	if b.cfg.GatewayURL != "" {
		if err := push.New(b.cfg.GatewayURL, b.cfg.Job).Gatherer(b.reg).Push(); err != nil {
			errs = append(errs, fmt.Errorf("prompush: push: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Gatherer exposes the registry, mainly for tests.
func (b *Backend) Gatherer() prometheus.Gatherer { return b.reg }
