package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeBackend is a simple in-memory Backend implementation for tests.
type fakeBackend struct {
	mu sync.Mutex

	callsCounters   []counterCall
	callsHistograms []histCall
	flushCount      int
}

type counterCall struct {
	name   string
	delta  float64
	labels Labels
}

type histCall struct {
	name   string
	value  float64
	labels Labels
}

func (f *fakeBackend) IncCounter(name string, delta float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsCounters = append(f.callsCounters, counterCall{name, delta, labels})
}

func (f *fakeBackend) ObserveHistogram(name string, value float64, labels Labels) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callsHistograms = append(f.callsHistograms, histCall{name, value, labels})
}

func (f *fakeBackend) Flush() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushCount++
	return nil
}

func swap(t *testing.T) *fakeBackend {
	t.Helper()
	orig := backend
	t.Cleanup(func() { backend = orig })
	fb := &fakeBackend{}
	backend = fb
	return fb
}

func TestRecordStep_SuccessAndFailure(t *testing.T) {
	fb := swap(t)

	RecordStep("cnpj", "backfill", nil, 2*time.Second)
	RecordStep("cnpj", "foreign_keys", errors.New("boom"), 1500*time.Millisecond)

	if len(fb.callsCounters) != 2 || len(fb.callsHistograms) != 2 {
		t.Fatalf("calls = %d counters, %d histograms; want 2, 2", len(fb.callsCounters), len(fb.callsHistograms))
	}
	if c := fb.callsCounters[0]; c.name != StepTotal || c.labels["status"] != "success" || c.labels["step"] != "backfill" {
		t.Fatalf("counter[0] = %#v", c)
	}
	if c := fb.callsCounters[1]; c.labels["status"] != "failure" {
		t.Fatalf("counter[1].status = %q; want failure", c.labels["status"])
	}
	if h := fb.callsHistograms[1]; h.name != StepDuration || h.value < 1.499 || h.value > 1.501 {
		t.Fatalf("hist[1] = %#v; want ~1.5s", h)
	}
}

func TestRecordHelpers_IgnoreNonPositive(t *testing.T) {
	fb := swap(t)

	RecordRow("empresas", "loaded", 3)
	RecordRow("empresas", "loaded", 0)
	RecordRepair("estabelecimentos", "cep", "changed", 2)
	RecordRepair("estabelecimentos", "cep", "changed", -1)
	RecordIntegrity("backfill", "paises", 4)
	RecordIntegrity("backfill", "paises", 0)
	RecordChunk("socios", "skipped")

	want := []counterCall{
		{RowsTotal, 3, Labels{"table": "empresas", "kind": "loaded"}},
		{RepairRowsTotal, 2, Labels{"table": "estabelecimentos", "column": "cep", "kind": "changed"}},
		{IntegrityTotal, 4, Labels{"stage": "backfill", "table": "paises"}},
		{ChunksTotal, 1, Labels{"table": "socios", "verdict": "skipped"}},
	}
	if len(fb.callsCounters) != len(want) {
		t.Fatalf("got %d counter calls; want %d", len(fb.callsCounters), len(want))
	}
	for i, w := range want {
		got := fb.callsCounters[i]
		if got.name != w.name || got.delta != w.delta {
			t.Errorf("counter[%d] = %s/%v; want %s/%v", i, got.name, got.delta, w.name, w.delta)
		}
		for k, v := range w.labels {
			if got.labels[k] != v {
				t.Errorf("counter[%d].labels[%s] = %q; want %q", i, k, got.labels[k], v)
			}
		}
	}
}

func TestSetBackendAndFlush(t *testing.T) {
	orig := backend
	defer func() { backend = orig }()

	fb := &fakeBackend{}
	SetBackend(fb)
	if backend != fb {
		t.Fatal("SetBackend did not replace global backend")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush returned error: %v", err)
	}
	if fb.flushCount != 1 {
		t.Fatalf("expected flushCount=1, got %d", fb.flushCount)
	}

	SetBackend(nil)
	if backend != fb {
		t.Fatal("SetBackend(nil) should not change backend")
	}
}
