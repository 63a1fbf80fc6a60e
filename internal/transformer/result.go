package transformer

import "github.com/danalec/CNPJ-Receita-Federal/pkg/records"

// IssueKind classifies a field-level problem.
type IssueKind string

const (
	// IssueMissing: an identifying field is NULL or blank in the source.
	IssueMissing IssueKind = "missing"
	// IssueMalformed: the value could not be coerced to its column's shape.
	IssueMalformed IssueKind = "malformed"
	// IssueChecksum: an identifier failed its check-digit algorithm.
	IssueChecksum IssueKind = "checksum"
	// IssueUnresolvedFK: the code is absent from a loaded reference table.
	IssueUnresolvedFK IssueKind = "unresolved_fk"
)

// FieldIssue is one problem found on one field.
type FieldIssue struct {
	Field string    `json:"field"`
	Kind  IssueKind `json:"kind"`
}

// Diff is a before/after sample of a repaired value.
type Diff struct {
	Field  string `json:"field"`
	Before any    `json:"before"`
	After  any    `json:"after"`
}

// Result is the outcome of normalizing one row.
type Result struct {
	// Row is the normalized row, keyed by column name.
	Row records.Record
	// Issues lists field problems. Non-identifying fields listed here have
	// already been nulled.
	Issues []FieldIssue
	// Changed lists columns whose value differs from the trimmed source value,
	// including values that became NULL.
	Changed []string
	// Nulled lists columns that were non-blank in the source and are NULL now.
	Nulled []string
	// Samples carries before/after pairs (aggressive profile only).
	Samples []Diff
	// Provenance lists "column:source" markers for enriched values.
	Provenance []string
}

// HasIssue reports whether any issue of kind k was recorded.
func (r Result) HasIssue(k IssueKind) bool {
	for _, is := range r.Issues {
		if is.Kind == k {
			return true
		}
	}
	return false
}

// IssueFields returns the fields carrying an issue of kind k.
func (r Result) IssueFields(k IssueKind) []string {
	var out []string
	for _, is := range r.Issues {
		if is.Kind == k {
			out = append(out, is.Field)
		}
	}
	return out
}
