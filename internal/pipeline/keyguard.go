package pipeline

import (
	"fmt"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/danalec/CNPJ-Receita-Federal/internal/schema"
	"github.com/danalec/CNPJ-Receita-Federal/pkg/records"
)

// KeyGuard remembers the 128-bit hash of every key loaded so far so a second
// row with the same key is rejected before it can break primary key creation.
// Keys are only remembered once their chunk is committed; a skipped chunk
// leaves no trace.
type KeyGuard struct {
	mu   sync.Mutex
	seen map[string]map[xxh3.Uint128]struct{}
}

// NewKeyGuard returns an empty guard.
func NewKeyGuard() *KeyGuard {
	return &KeyGuard{seen: make(map[string]map[xxh3.Uint128]struct{})}
}

// KeyBatch collects the keys admitted within one chunk.
type KeyBatch struct {
	g     *KeyGuard
	table schema.Table
	local map[xxh3.Uint128]struct{}
	buf   []byte
}

// Batch starts a chunk for t. Tables without a key admit everything.
func (g *KeyGuard) Batch(t schema.Table) *KeyBatch {
	return &KeyBatch{g: g, table: t, local: make(map[xxh3.Uint128]struct{})}
}

// Admit reports whether row's key is new to the run and to this chunk.
func (b *KeyBatch) Admit(row records.Record) bool {
	if len(b.table.Key) == 0 {
		return true
	}
	b.buf = b.buf[:0]
	for i, c := range b.table.Key {
		if i > 0 {
			b.buf = append(b.buf, 0x1f)
		}
		b.buf = fmt.Append(b.buf, row[c])
	}
	h := xxh3.Hash128(b.buf)
	if _, dup := b.local[h]; dup {
		return false
	}

	b.g.mu.Lock()
	_, dup := b.g.seen[b.table.Name][h]
	b.g.mu.Unlock()
	if dup {
		return false
	}
	b.local[h] = struct{}{}
	return true
}

// Commit publishes the chunk's keys to the guard.
func (b *KeyBatch) Commit() {
	if len(b.local) == 0 {
		return
	}
	b.g.mu.Lock()
	defer b.g.mu.Unlock()
	set, ok := b.g.seen[b.table.Name]
	if !ok {
		set = make(map[xxh3.Uint128]struct{}, len(b.local))
		b.g.seen[b.table.Name] = set
	}
	for h := range b.local {
		set[h] = struct{}{}
	}
}
