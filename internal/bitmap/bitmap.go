package bitmap

import (
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Bitmap implements a 32-bit Roaring Bitmap.
// It wraps the official roaring implementation.
type Bitmap struct {
	rb *roaring.Bitmap
}

// New creates a new empty bitmap.
func New() *Bitmap {
	return &Bitmap{
		rb: roaring.New(),
	}
}

// Of creates a bitmap holding the given slots.
func Of(slots ...uint32) *Bitmap {
	return &Bitmap{
		rb: roaring.BitmapOf(slots...),
	}
}

// Add adds a slot to the bitmap.
func (b *Bitmap) Add(slot uint32) {
	b.rb.Add(slot)
}

// Remove removes a slot from the bitmap.
func (b *Bitmap) Remove(slot uint32) {
	b.rb.Remove(slot)
}

// Contains checks if a slot is in the bitmap.
func (b *Bitmap) Contains(slot uint32) bool {
	return b.rb.Contains(slot)
}

// IsEmpty returns true if the bitmap is empty.
func (b *Bitmap) IsEmpty() bool {
	return b.rb.IsEmpty()
}

// Cardinality returns the number of elements in the bitmap.
func (b *Bitmap) Cardinality() uint64 {
	return b.rb.GetCardinality()
}

// Clone returns a deep copy of the bitmap.
func (b *Bitmap) Clone() *Bitmap {
	return &Bitmap{
		rb: b.rb.Clone(),
	}
}

// Or computes the union of two bitmaps in place.
func (b *Bitmap) Or(other *Bitmap) {
	b.rb.Or(other.rb)
}

// Iterator returns an iterator over the bitmap in ascending order.
func (b *Bitmap) Iterator() iter.Seq[uint32] {
	return func(yield func(uint32) bool) {
		it := b.rb.Iterator()
		for it.HasNext() {
			if !yield(it.Next()) {
				return
			}
		}
	}
}

// ToArray returns the slots in ascending order.
func (b *Bitmap) ToArray() []uint32 {
	return b.rb.ToArray()
}

// Union returns a new bitmap holding the union of all inputs.
// Nil inputs are skipped.
func Union(bms ...*Bitmap) *Bitmap {
	rbs := make([]*roaring.Bitmap, 0, len(bms))
	for _, b := range bms {
		if b != nil {
			rbs = append(rbs, b.rb)
		}
	}
	if len(rbs) == 0 {
		return New()
	}
	return &Bitmap{rb: roaring.FastOr(rbs...)}
}
