package bitmap

import "testing"

func TestAddAndHas(t *testing.T) {
	var b Bitmap
	for _, id := range []int{0, 63, 64, 105, 7107, 6201501} {
		b.Add(id)
		if !b.Has(id) {
			t.Fatalf("Has(%d) = false after Add", id)
		}
	}
	b.Add(105)
	b.Add(-1)

	if b.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", b.Len())
	}
	for _, id := range []int{-1, 1, 62, 106, 7108, 1 << 30} {
		if b.Has(id) {
			t.Errorf("Has(%d) = true, want false", id)
		}
	}
}
