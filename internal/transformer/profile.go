// Package transformer implements the row normalizer: a per-table plan of
// field repairs compiled once and applied to every row of every chunk.
//
// Three repair profiles exist:
//
//   - none: values are only typed for storage (dates, integers, numerics,
//     arrays). Nothing is repaired.
//   - basic: structural shape is enforced (fixed-width identifiers, postal and
//     region codes, activity codes, e-mail plausibility, activity arrays).
//     Fields that cannot be coerced become NULL unless they identify the row.
//   - aggressive: basic plus heuristic enrichment (strict e-mail, E.164
//     phones, deduplicated activity arrays, geographic lookups with
//     provenance markers).
//
// The normalizer never decides whether a row is loaded. It reports field
// issues; the quarantine router turns them into a decision.
package transformer

import (
	"fmt"
	"strings"
)

// Profile selects how much repair the normalizer performs.
type Profile string

const (
	ProfileNone       Profile = "none"
	ProfileBasic      Profile = "basic"
	ProfileAggressive Profile = "aggressive"
)

// ParseProfile validates s. The empty string selects basic.
func ParseProfile(s string) (Profile, error) {
	switch p := Profile(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return ProfileBasic, nil
	case ProfileNone, ProfileBasic, ProfileAggressive:
		return p, nil
	}
	return "", fmt.Errorf("unknown repair profile %q (want none, basic or aggressive)", s)
}

func (p Profile) repairs() bool    { return p == ProfileBasic || p == ProfileAggressive }
func (p Profile) aggressive() bool { return p == ProfileAggressive }
