// Package records defines the row shape exchanged between the source reader,
// the normalizer and the loader.
package records

// Record is one row keyed by canonical column name. A missing key and a nil
// value both mean NULL.
type Record map[string]any

// Clone returns a shallow copy of r. Slice values are copied so that callers
// may mutate the result without touching the original payload.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		if ss, ok := v.([]string); ok {
			cp := make([]string, len(ss))
			copy(cp, ss)
			v = cp
		}
		out[k] = v
	}
	return out
}

// Values returns the record as a positional slice in columns order, the shape
// expected by COPY.
func (r Record) Values(columns []string) []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = r[c]
	}
	return out
}
