package transformer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/danalec/CNPJ-Receita-Federal/internal/transformer/builtin"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Provenance sources recorded on enriched values.
const (
	SourceCEPMap       = "cep_map"
	SourceMunicipioMap = "municipio_map"
)

// Place is what the postal-code map knows about a CEP.
type Place struct {
	Municipio string
	UF        string
}

// Enricher fills missing geographic codes from optional lookup tables:
// CEP -> (municipality name, UF) and (municipality name, UF) -> code.
// A nil *Enricher performs no lookups.
type Enricher struct {
	cep        map[string]Place
	municipios map[string]int64
}

// NewEnricher builds an Enricher from in-memory maps. Municipality keys are
// folded with FoldName; use MunicipioKey to build them.
func NewEnricher(cep map[string]Place, municipios map[string]int64) *Enricher {
	return &Enricher{cep: cep, municipios: municipios}
}

// MunicipioKey is the lookup key for a municipality name, optionally scoped
// by UF.
func MunicipioKey(name, uf string) string {
	k := FoldName(name)
	if uf = strings.ToUpper(strings.TrimSpace(uf)); uf != "" {
		k += "|" + uf
	}
	return k
}

// LoadEnricher reads the optional lookup files. Either path may be empty.
//
// cepPath rows are "cep;municipio;uf"; municipioPath rows are
// "codigo;nome[;uf]". A header row is skipped when its first cell is not
// numeric. Both files are ';'-delimited UTF-8.
func LoadEnricher(cepPath, municipioPath string) (*Enricher, error) {
	if cepPath == "" && municipioPath == "" {
		return nil, nil
	}
	e := &Enricher{cep: map[string]Place{}, municipios: map[string]int64{}}
	if cepPath != "" {
		err := readLookup(cepPath, 3, func(rec []string) {
			cep, ok := builtin.CEP(rec[0])
			if !ok {
				return
			}
			e.cep[cep] = Place{Municipio: strings.TrimSpace(rec[1]), UF: strings.ToUpper(strings.TrimSpace(rec[2]))}
		})
		if err != nil {
			return nil, fmt.Errorf("cep map: %w", err)
		}
	}
	if municipioPath != "" {
		err := readLookup(municipioPath, 2, func(rec []string) {
			code, ok := builtin.ParseInt(rec[0])
			if !ok {
				return
			}
			uf := ""
			if len(rec) > 2 {
				uf = rec[2]
			}
			e.municipios[MunicipioKey(rec[1], uf)] = code
			// Name-only fallback; the first municipality seen wins.
			if k := MunicipioKey(rec[1], ""); uf != "" {
				if _, dup := e.municipios[k]; !dup {
					e.municipios[k] = code
				}
			}
		})
		if err != nil {
			return nil, fmt.Errorf("municipio map: %w", err)
		}
	}
	return e, nil
}

func readLookup(path string, minFields int, fn func([]string)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%s line %d: %w", path, line, err)
		}
		if len(rec) < minFields {
			continue
		}
		if line == 1 && builtin.Digits(rec[0]) == "" {
			continue
		}
		fn(rec)
	}
}

// Place looks up a normalized 8-digit CEP.
func (e *Enricher) Place(cep string) (Place, bool) {
	if e == nil {
		return Place{}, false
	}
	p, ok := e.cep[cep]
	return p, ok
}

// MunicipioCode resolves a municipality name, preferring the UF-scoped entry.
func (e *Enricher) MunicipioCode(name, uf string) (int64, bool) {
	if e == nil || name == "" {
		return 0, false
	}
	if c, ok := e.municipios[MunicipioKey(name, uf)]; ok {
		return c, true
	}
	c, ok := e.municipios[MunicipioKey(name, "")]
	return c, ok
}

// FoldName upper-cases s, strips diacritics and collapses whitespace, so
// "São  Paulo" and "SAO PAULO" compare equal. Safe for concurrent use: a
// transform.Chain keeps state, so each call builds its own.
func FoldName(s string) string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(fold, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToUpper(out)), " ")
}
