// Package metrics provides a small, backend-agnostic abstraction for the
// loader's operational counters.
//
//   - Backend is a narrow interface (counters, histograms, flush).
//   - A global, pluggable backend defaults to a no-op implementation, so the
//     Record* helpers are always safe to call.
//   - Concrete systems (Prometheus push/textfile, DogStatsD) live in
//     subpackages; the rest of the code depends only on this package.
//
// Metrics are a side channel. Nothing here returns an error to the data path.
package metrics

import "time"

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Metric names.
const (
	StepTotal       = "cnpj_step_total"
	StepDuration    = "cnpj_step_duration_seconds"
	RowsTotal       = "cnpj_rows_total"
	ChunksTotal     = "cnpj_chunks_total"
	RepairRowsTotal = "cnpj_auto_repair_rows_total"
	IntegrityTotal  = "cnpj_integrity_total"
)

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or writes out metrics, if the backend needs it.
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(name string, delta float64, labels Labels)       {}
func (nopBackend) ObserveHistogram(name string, value float64, labels Labels) {}
func (nopBackend) Flush() error                                               { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing one.
// Call it once during startup, before any worker starts.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep measures latency plus success/failure of a run step
// (load, backfill, primary_keys, ...).
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{"job": job, "step": step, "status": status}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRow counts rows per table and kind. Kinds: processed, loaded,
// quarantined, gate_skipped, invalid_identifier.
func RecordRow(table, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RowsTotal, float64(delta), Labels{"table": table, "kind": kind})
}

// RecordChunk counts a processed chunk by verdict (loaded, skipped).
func RecordChunk(table, verdict string) {
	backend.IncCounter(ChunksTotal, 1, Labels{"table": table, "verdict": verdict})
}

// RecordRepair counts repaired values per column. Kinds: changed, nulled,
// enriched.
func RecordRepair(table, column, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RepairRowsTotal, float64(delta), Labels{"table": table, "column": column, "kind": kind})
}

// RecordIntegrity counts post-load events: sentinels inserted, orphans
// deleted, constraints created or already present.
func RecordIntegrity(stage, table string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(IntegrityTotal, float64(delta), Labels{"stage": stage, "table": table})
}
