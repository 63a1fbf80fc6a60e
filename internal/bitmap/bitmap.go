// Package bitmap provides a growable bitset for small non-negative integer
// codes, used for reference-code membership checks.
package bitmap

// Bitmap is a bitset backed by a slice of uint64 words. The zero value is an
// empty set ready to use.
type Bitmap struct {
	data []uint64
	n    int
}

// Add sets id. Negative ids are ignored.
func (b *Bitmap) Add(id int) {
	if id < 0 {
		return
	}
	word := id / 64
	if word >= len(b.data) {
		grown := make([]uint64, max(word+1, 2*len(b.data)))
		copy(grown, b.data)
		b.data = grown
	}
	mask := uint64(1) << uint(id%64)
	if b.data[word]&mask == 0 {
		b.data[word] |= mask
		b.n++
	}
}

// Has reports whether id is set. Negative ids always return false.
func (b *Bitmap) Has(id int) bool {
	if id < 0 {
		return false
	}
	word := id / 64
	if word >= len(b.data) {
		return false
	}
	return b.data[word]&(uint64(1)<<uint(id%64)) != 0
}

// Len returns the number of ids set.
func (b *Bitmap) Len() int { return b.n }
