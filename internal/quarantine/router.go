// Package quarantine decides which normalized rows are loaded and records the
// ones that are not. Rejected rows are always written to the quarantine
// store with their original payload; nothing is dropped silently.
package quarantine

import (
	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer"
)

// Reason is the closed set of rejection reasons.
type Reason string

const (
	// CriticalFieldsNull: an identifying field could not be salvaged.
	CriticalFieldsNull Reason = "critical_fields_null"
	// FKViolation: a reference code is unresolved and strict mode is on.
	FKViolation Reason = "fk_violation"
	// InvalidIdentifier: the row's own full CNPJ failed its check digits.
	InvalidIdentifier Reason = "invalid_identifier"
	// DuplicateKey: the row's key was already accepted earlier in the run.
	DuplicateKey Reason = "duplicate_key"
	// QualityGate: the whole chunk was skipped by the quality gate.
	QualityGate Reason = "quality_gate"
	// MalformedLine: the source line could not be parsed into fields.
	MalformedLine Reason = "malformed_line"
)

// Decision is the router's verdict for one row.
type Decision struct {
	Accept bool
	Reason Reason
	// Fields lists the fields that caused the rejection.
	Fields []string
}

// Router applies the rejection policy. Strict turns unresolved foreign keys
// into rejections; otherwise they are left for the domain backfill.
type Router struct {
	Strict bool
}

// Route decides the fate of a normalized row.
func (r Router) Route(t schema.Table, res transformer.Result) Decision {
	var missing []string
	for _, c := range t.Critical {
		if res.Row[c] == nil {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return Decision{Reason: CriticalFieldsNull, Fields: missing}
	}

	var bad []string
	for _, f := range res.IssueFields(transformer.IssueChecksum) {
		for _, id := range t.Identifier {
			if f == id {
				bad = append(bad, f)
			}
		}
	}
	if len(bad) > 0 {
		return Decision{Reason: InvalidIdentifier, Fields: bad}
	}

	if r.Strict {
		if fks := res.IssueFields(transformer.IssueUnresolvedFK); len(fks) > 0 {
			return Decision{Reason: FKViolation, Fields: fks}
		}
	}
	return Decision{Accept: true}
}
