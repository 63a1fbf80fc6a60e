package transformer

import (
	"sync"

	"github.com/danalec/CNPJ-Receita-Federal/internal/bitmap"
)

// Domains answers whether a reference code exists. Loaded is false for a
// reference table whose contents are unknown; codes are not checked then.
type Domains interface {
	Loaded(table string) bool
	Has(table string, code int64) bool
}

// maxBitmapCode bounds the codes kept in a bitmap; larger ones go to a map.
// Reference codes (CNAE included) stay well below it.
const maxBitmapCode = 1 << 24

type codeSet struct {
	small *bitmap.Bitmap
	large map[int64]struct{}
}

func (s *codeSet) add(code int64) {
	if code >= 0 && code < maxBitmapCode {
		s.small.Add(int(code))
		return
	}
	if s.large == nil {
		s.large = make(map[int64]struct{})
	}
	s.large[code] = struct{}{}
}

func (s *codeSet) has(code int64) bool {
	if code >= 0 && code < maxBitmapCode {
		return s.small.Has(int(code))
	}
	_, ok := s.large[code]
	return ok
}

// DomainSet is an in-memory Domains filled from the reference rows loaded in
// the current run. It is safe for concurrent use.
type DomainSet struct {
	mu     sync.RWMutex
	codes  map[string]*codeSet
	loaded map[string]bool
}

// NewDomainSet returns an empty set.
func NewDomainSet() *DomainSet {
	return &DomainSet{codes: make(map[string]*codeSet), loaded: make(map[string]bool)}
}

// MarkLoaded records that table's contents are fully known, even if empty.
func (d *DomainSet) MarkLoaded(table string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaded[table] = true
}

// Add records code as present in table.
func (d *DomainSet) Add(table string, code int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.codes[table]
	if !ok {
		s = &codeSet{small: &bitmap.Bitmap{}}
		d.codes[table] = s
	}
	s.add(code)
}

func (d *DomainSet) Loaded(table string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.loaded[table]
}

func (d *DomainSet) Has(table string, code int64) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.codes[table]
	return ok && s.has(code)
}

// Size returns the number of codes recorded for table.
func (d *DomainSet) Size(table string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.codes[table]
	if !ok {
		return 0
	}
	return s.small.Len() + len(s.large)
}
