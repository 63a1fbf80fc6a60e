package quarantine

import (
	"time"

	"github.com/danalec/CNPJ-Receita-Federal/internal/jsonl"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Record is one quarantined row.
type Record struct {
	Time    time.Time      `json:"ts"`
	RunID   string         `json:"run_id"`
	Table   string         `json:"table"`
	Chunk   int            `json:"chunk"`
	Reason  Reason         `json:"reason"`
	Fields  []string       `json:"fields,omitempty"`
	Payload records.Record `json:"payload"`
}

// Sink receives quarantined rows. Write must be safe for concurrent use and
// must return an error only when the rows could not be persisted.
type Sink interface {
	Write(table string, recs []Record) error
}

// Store persists quarantine records in a day- and table-partitioned JSONL
// store.
type Store struct {
	files *jsonl.Store
}

// NewStore wraps an opened jsonl store.
func NewStore(files *jsonl.Store) *Store { return &Store{files: files} }

// Write appends recs to table's partition.
func (s *Store) Write(table string, recs []Record) error {
	if len(recs) == 0 {
		return nil
	}
	vals := make([]any, len(recs))
	for i := range recs {
		vals[i] = recs[i]
	}
	return s.files.Append(table, vals...)
}

// Close closes the underlying files.
func (s *Store) Close() error { return s.files.Close() }
