package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "rlregistry/pkg/domain-errors"
)

func TestNewBatch(t *testing.T) {
	t.Run("deduplicates and sorts indices", func(t *testing.T) {
		batch, err := NewBatch([]int{3, 1, 3, 2}, []int{5, 4, 5})
		require.NoError(t, err)
		assert.Equal(t, []uint32{1, 2, 3}, batch.SetIndices())
		assert.Equal(t, []uint32{4, 5}, batch.ClearIndices())
		assert.Equal(t, 3, batch.SetCount())
		assert.Equal(t, 2, batch.ClearCount())
	})

	t.Run("clear wins when an index is on both sides", func(t *testing.T) {
		batch, err := NewBatch([]int{7, 8}, []int{7})
		require.NoError(t, err)
		assert.Equal(t, []uint32{8}, batch.SetIndices())
		assert.Equal(t, []uint32{7}, batch.ClearIndices())
	})

	t.Run("rejects out-of-range index on either side", func(t *testing.T) {
		_, err := NewBatch([]int{1, Capacity}, nil)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOutOfRange))

		_, err = NewBatch(nil, []int{-1})
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeOutOfRange))
	})

	t.Run("empty batch", func(t *testing.T) {
		batch, err := NewBatch(nil, nil)
		require.NoError(t, err)
		assert.True(t, batch.IsEmpty())
		assert.Empty(t, batch.SetIndices())
	})

	t.Run("zero value batch is a no-op", func(t *testing.T) {
		var batch Batch
		assert.True(t, batch.IsEmpty())
		b := NewBitmap()
		b.Apply(batch)
		assert.Equal(t, 0, b.Count())
	})
}

func TestBitmapApply(t *testing.T) {
	t.Run("sets and clears in one pass", func(t *testing.T) {
		b := NewBitmap()
		b.Set(4, true)
		b.Set(5, true)

		batch, err := NewBatch([]int{1, 2, 3}, []int{4, 5})
		require.NoError(t, err)
		b.Apply(batch)

		for _, i := range []uint32{1, 2, 3} {
			assert.True(t, b.Get(i), "bit %d", i)
		}
		for _, i := range []uint32{4, 5} {
			assert.False(t, b.Get(i), "bit %d", i)
		}
	})

	t.Run("conflicting index ends clear even when previously set", func(t *testing.T) {
		b := NewBitmap()
		b.Set(7, true)

		batch, err := NewBatch([]int{7}, []int{7})
		require.NoError(t, err)
		b.Apply(batch)
		assert.False(t, b.Get(7))
	})
}
