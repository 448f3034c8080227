package models

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// Batch is a validated, deduplicated set of bit mutations applied as one unit.
//
// When an index appears on both sides, clear wins: it is dropped from the set side,
// so the bit ends up clear regardless of its previous value.
type Batch struct {
	set   *roaring.Bitmap
	clear *roaring.Bitmap
}

// NewBatch validates every index before building anything. An out-of-range index on
// either side rejects the whole batch.
func NewBatch(set, clear []int) (Batch, error) {
	for _, i := range set {
		if err := CheckIndex(i); err != nil {
			return Batch{}, err
		}
	}
	for _, i := range clear {
		if err := CheckIndex(i); err != nil {
			return Batch{}, err
		}
	}

	s := roaring.New()
	for _, i := range set {
		s.Add(uint32(i))
	}
	c := roaring.New()
	for _, i := range clear {
		c.Add(uint32(i))
	}
	s.AndNot(c)

	return Batch{set: s, clear: c}, nil
}

// SetIndices returns the indices to set, ascending.
func (b Batch) SetIndices() []uint32 {
	if b.set == nil {
		return nil
	}
	return b.set.ToArray()
}

// ClearIndices returns the indices to clear, ascending.
func (b Batch) ClearIndices() []uint32 {
	if b.clear == nil {
		return nil
	}
	return b.clear.ToArray()
}

// SetCount is the number of distinct indices set by the batch.
func (b Batch) SetCount() int {
	if b.set == nil {
		return 0
	}
	return int(b.set.GetCardinality())
}

// ClearCount is the number of distinct indices cleared by the batch.
func (b Batch) ClearCount() int {
	if b.clear == nil {
		return 0
	}
	return int(b.clear.GetCardinality())
}

// IsEmpty reports whether applying the batch is a no-op.
func (b Batch) IsEmpty() bool {
	return b.SetCount() == 0 && b.ClearCount() == 0
}

func (b Batch) eachSet(fn func(uint32)) {
	if b.set == nil {
		return
	}
	b.set.Iterate(func(x uint32) bool {
		fn(x)
		return true
	})
}

func (b Batch) eachClear(fn func(uint32)) {
	if b.clear == nil {
		return
	}
	b.clear.Iterate(func(x uint32) bool {
		fn(x)
		return true
	})
}
