package transformer

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer/builtin"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// Options configures a Normalizer. The zero value normalizes with the basic
// profile, no enrichment and no foreign-key checks.
type Options struct {
	Profile  Profile
	Enricher *Enricher
	// Domains, when set, lets the normalizer flag codes that are absent from
	// an already loaded reference table.
	Domains Domains
	// NullUnresolvedFK nulls flagged codes instead of keeping them for the
	// domain backfill.
	NullUnresolvedFK bool
}

// Normalizer applies a compiled per-table plan to rows. It is safe for
// concurrent use; plans are compiled once per table on first use.
type Normalizer struct {
	opts Options

	mu    sync.RWMutex
	plans map[string]*plan
}

// New returns a Normalizer for opts.
func New(opts Options) *Normalizer {
	if opts.Profile == "" {
		opts.Profile = ProfileBasic
	}
	return &Normalizer{opts: opts, plans: make(map[string]*plan)}
}

// Profile returns the active repair profile.
func (n *Normalizer) Profile() Profile { return n.opts.Profile }

// fixFn coerces a trimmed, non-blank source value. canon is the string form
// compared against the source to decide whether the value changed.
type fixFn func(s string) (v any, canon string, ok bool)

type colPlan struct {
	name     string
	fix      fixFn
	fits     func(v any) bool
	critical bool
	// failKind is reported when fix fails on a non-blank value.
	failKind IssueKind
}

type plan struct {
	table      schema.Table
	cols       []colPlan
	phones     []schema.Column
	refFKs     []schema.ForeignKey
	provenance bool
	geo        bool
}

func (n *Normalizer) plan(t schema.Table) *plan {
	n.mu.RLock()
	p, ok := n.plans[t.Name]
	n.mu.RUnlock()
	if ok {
		return p
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if p, ok := n.plans[t.Name]; ok {
		return p
	}
	p = compilePlan(t, n.opts.Profile)
	n.plans[t.Name] = p
	return p
}

func compilePlan(t schema.Table, prof Profile) *plan {
	p := &plan{table: t}
	for _, c := range t.Columns {
		if c.Rule == schema.RuleDerived {
			if c.Name == provenanceColumn {
				p.provenance = true
			}
			continue
		}
		cp := colPlan{
			name:     c.Name,
			fix:      fixFor(c, prof),
			fits:     shapeCheck(c.Shape()),
			critical: t.IsCritical(c.Name),
			failKind: IssueMalformed,
		}
		if c.Rule == schema.RulePartnerID && prof.repairs() {
			cp.failKind = IssueChecksum
		}
		p.cols = append(p.cols, cp)
		if c.Rule == schema.RulePhone && c.Pair != "" {
			p.phones = append(p.phones, c)
		}
	}
	for _, fk := range t.ForeignKeys {
		if ref, ok := schema.Lookup(fk.Ref); ok && ref.Kind == schema.Reference {
			p.refFKs = append(p.refFKs, fk)
		}
	}
	_, hasCEP := t.Column("cep")
	_, hasUF := t.Column("uf")
	_, hasMun := t.Column("municipio_codigo")
	p.geo = hasCEP && hasUF && hasMun
	return p
}

const provenanceColumn = "proveniencia"

// fixFor returns the coercion for column c under prof.
func fixFor(c schema.Column, prof Profile) fixFn {
	asInt := func(s string) (any, string, bool) {
		v, ok := builtin.ParseInt(s)
		return v, s, ok
	}
	asDate := func(s string) (any, string, bool) {
		v, ok := builtin.Date(s)
		return v, s, ok
	}
	asMoney := func(s string) (any, string, bool) {
		v, ok := builtin.Money(s)
		return v, s, ok
	}
	verbatim := func(s string) (any, string, bool) { return s, s, true }

	if !prof.repairs() {
		switch c.Rule {
		case schema.RuleCode, schema.RuleInt, schema.RuleActivity:
			return asInt
		case schema.RuleDate:
			return asDate
		case schema.RuleMoney:
			return asMoney
		case schema.RuleActivityList:
			return func(s string) (any, string, bool) {
				parts := splitList(s)
				return parts, s, len(parts) > 0
			}
		}
		return verbatim
	}

	aggr := prof.aggressive()
	switch c.Rule {
	case schema.RuleText:
		return func(s string) (any, string, bool) {
			v, ok := builtin.CleanText(s)
			if ok && aggr {
				v = strings.Join(strings.Fields(v), " ")
			}
			return v, v, ok
		}
	case schema.RuleCode, schema.RuleInt:
		return asInt
	case schema.RuleDigits:
		width := c.Width
		return func(s string) (any, string, bool) {
			v, ok := builtin.FixedDigits(s, width)
			return v, v, ok
		}
	case schema.RuleDate:
		return asDate
	case schema.RuleMoney:
		return asMoney
	case schema.RuleFlag:
		return stringFix(builtin.Flag)
	case schema.RuleCEP:
		return stringFix(builtin.CEP)
	case schema.RuleUF:
		return stringFix(builtin.UF)
	case schema.RuleEmail:
		return func(s string) (any, string, bool) {
			v, ok := builtin.Email(s, aggr)
			return v, v, ok
		}
	case schema.RuleDDD:
		return stringFix(builtin.DDD)
	case schema.RulePhone:
		return stringFix(builtin.Phone)
	case schema.RuleActivity:
		return func(s string) (any, string, bool) {
			v, ok := builtin.Activity(s)
			return v, fmt.Sprintf("%07d", v), ok
		}
	case schema.RuleActivityList:
		return func(s string) (any, string, bool) {
			v, ok := builtin.ActivityList(s, aggr)
			return v, strings.Join(v, ","), ok
		}
	case schema.RulePartnerID:
		return stringFix(builtin.PartnerID)
	}
	return verbatim
}

func stringFix(f func(string) (string, bool)) fixFn {
	return func(s string) (any, string, bool) {
		v, ok := f(s)
		return v, v, ok
	}
}

func splitList(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ',' || r == '{' || r == '}' || r == ' '
	})
}

// Normalize applies t's plan to raw. raw is never modified.
func (n *Normalizer) Normalize(t schema.Table, raw records.Record) Result {
	p := n.plan(t)
	aggr := n.opts.Profile.aggressive()
	res := Result{Row: make(records.Record, len(t.Columns))}

	for _, cp := range p.cols {
		s, present := rawString(raw[cp.name])
		if !present {
			res.Row[cp.name] = nil
			if cp.critical {
				res.Issues = append(res.Issues, FieldIssue{Field: cp.name, Kind: IssueMissing})
			}
			continue
		}
		v, canon, ok := cp.fix(s)
		kind := cp.failKind
		if ok && cp.fits != nil && !cp.fits(v) {
			ok, kind = false, IssueMalformed
		}
		if !ok {
			res.Row[cp.name] = nil
			res.Issues = append(res.Issues, FieldIssue{Field: cp.name, Kind: kind})
			res.Nulled = append(res.Nulled, cp.name)
			res.Changed = append(res.Changed, cp.name)
			if aggr {
				res.Samples = append(res.Samples, Diff{Field: cp.name, Before: s})
			}
			continue
		}
		res.Row[cp.name] = v
		if canon != s {
			res.Changed = append(res.Changed, cp.name)
			if aggr {
				res.Samples = append(res.Samples, Diff{Field: cp.name, Before: s, After: v})
			}
		}
	}

	if n.opts.Profile.repairs() && len(t.Identifier) > 0 {
		n.checkIdentifier(t, &res)
	}
	if aggr {
		for _, c := range p.phones {
			n.dialE164(c, &res)
		}
		if p.geo && n.opts.Enricher != nil {
			n.enrichGeo(&res)
		}
	}
	if n.opts.Domains != nil {
		for _, fk := range p.refFKs {
			n.resolveFK(fk, &res)
		}
	}
	if p.provenance && len(res.Provenance) > 0 {
		res.Row[provenanceColumn] = res.Provenance
	}
	return res
}

// checkIdentifier verifies the full CNPJ formed by t.Identifier. Each part
// has already passed its width check; only the check digits are in question.
func (n *Normalizer) checkIdentifier(t schema.Table, res *Result) {
	var b strings.Builder
	for _, f := range t.Identifier {
		s, ok := res.Row[f].(string)
		if !ok {
			return
		}
		b.WriteString(s)
	}
	if builtin.ValidCNPJ(b.String()) {
		return
	}
	for _, f := range t.Identifier {
		res.Issues = append(res.Issues, FieldIssue{Field: f, Kind: IssueChecksum})
	}
}

func (n *Normalizer) dialE164(c schema.Column, res *Result) {
	num, ok := res.Row[c.Name].(string)
	if !ok {
		return
	}
	ddd, _ := res.Row[c.Pair].(string)
	e, ok := builtin.E164(ddd, num)
	if !ok || e == num {
		return
	}
	res.Row[c.Name] = e
	res.Changed = appendOnce(res.Changed, c.Name)
	res.Samples = append(res.Samples, Diff{Field: c.Name, Before: num, After: e})
}

func (n *Normalizer) enrichGeo(res *Result) {
	cep, ok := res.Row["cep"].(string)
	if !ok {
		return
	}
	if res.Row["uf"] != nil && res.Row["municipio_codigo"] != nil {
		return
	}
	place, ok := n.opts.Enricher.Place(cep)
	if !ok {
		return
	}
	if res.Row["uf"] == nil {
		if uf, ok := builtin.UF(place.UF); ok {
			res.Row["uf"] = uf
			res.Provenance = append(res.Provenance, "uf:"+SourceCEPMap)
			res.Changed = appendOnce(res.Changed, "uf")
			res.Samples = append(res.Samples, Diff{Field: "uf", After: uf})
		}
	}
	if res.Row["municipio_codigo"] == nil {
		uf, _ := res.Row["uf"].(string)
		if code, ok := n.opts.Enricher.MunicipioCode(place.Municipio, uf); ok && fitsInt32(code) {
			res.Row["municipio_codigo"] = code
			res.Provenance = append(res.Provenance, "municipio_codigo:"+SourceMunicipioMap)
			res.Changed = appendOnce(res.Changed, "municipio_codigo")
			res.Samples = append(res.Samples, Diff{Field: "municipio_codigo", After: code})
		}
	}
}

func (n *Normalizer) resolveFK(fk schema.ForeignKey, res *Result) {
	code, ok := res.Row[fk.Column].(int64)
	if !ok || !n.opts.Domains.Loaded(fk.Ref) || n.opts.Domains.Has(fk.Ref, code) {
		return
	}
	res.Issues = append(res.Issues, FieldIssue{Field: fk.Column, Kind: IssueUnresolvedFK})
	if n.opts.NullUnresolvedFK {
		res.Row[fk.Column] = nil
		res.Nulled = appendOnce(res.Nulled, fk.Column)
		res.Changed = appendOnce(res.Changed, fk.Column)
	}
}

func appendOnce(s []string, v string) []string {
	for _, x := range s {
		if x == v {
			return s
		}
	}
	return append(s, v)
}

// rawString renders a source value as trimmed text. present is false for
// NULL and blank values.
func rawString(v any) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		s = x
	case []byte:
		s = string(x)
	case []string:
		s = strings.Join(x, ",")
	case int:
		s = strconv.Itoa(x)
	case int64:
		s = strconv.FormatInt(x, 10)
	default:
		s = fmt.Sprint(x)
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}
