package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) batch(set, clear []int) models.Batch {
	b, err := models.NewBatch(set, clear)
	s.Require().NoError(err)
	return b
}

// TestCreation verifies create-once semantics.
func (s *InMemoryStoreSuite) TestCreation() {
	s.Run("creates a zero-filled list", func() {
		s.Require().NoError(s.store.Create(s.ctx, "fresh"))

		bm, err := s.store.Load(s.ctx, "fresh")
		s.Require().NoError(err)
		s.Equal(0, bm.Count())
	})

	s.Run("rejects duplicate id and keeps the original list", func() {
		s.Require().NoError(s.store.Create(s.ctx, "dup"))
		s.Require().NoError(s.store.Apply(s.ctx, "dup", s.batch([]int{42}, nil)))

		err := s.store.Create(s.ctx, "dup")
		s.Require().ErrorIs(err, sentinel.ErrAlreadyUsed)

		bit, err := s.store.BitAt(s.ctx, "dup", 42)
		s.Require().NoError(err)
		s.True(bit)
	})
}

// TestUnknownList verifies every operation reports ErrNotFound for unknown ids.
func (s *InMemoryStoreSuite) TestUnknownList() {
	_, err := s.store.Load(s.ctx, "nonexistent")
	s.ErrorIs(err, sentinel.ErrNotFound)

	_, err = s.store.BitAt(s.ctx, "nonexistent", 1)
	s.ErrorIs(err, sentinel.ErrNotFound)

	s.ErrorIs(s.store.Apply(s.ctx, "nonexistent", s.batch([]int{1}, nil)), sentinel.ErrNotFound)
	s.ErrorIs(s.store.Replace(s.ctx, "nonexistent", models.NewBitmap()), sentinel.ErrNotFound)
}

// TestIsolation verifies callers never alias stored bitmaps.
func (s *InMemoryStoreSuite) TestIsolation() {
	s.Require().NoError(s.store.Create(s.ctx, "a"))
	s.Require().NoError(s.store.Create(s.ctx, "b"))

	s.Run("loaded bitmap is a copy", func() {
		bm, err := s.store.Load(s.ctx, "a")
		s.Require().NoError(err)
		bm.Set(3, true)

		bit, err := s.store.BitAt(s.ctx, "a", 3)
		s.Require().NoError(err)
		s.False(bit)
	})

	s.Run("replace copies its argument", func() {
		next := models.NewBitmap()
		next.Set(9, true)
		s.Require().NoError(s.store.Replace(s.ctx, "a", next))
		next.Set(10, true)

		bm, err := s.store.Load(s.ctx, "a")
		s.Require().NoError(err)
		s.True(bm.Get(9))
		s.False(bm.Get(10))
	})

	s.Run("mutating one list leaves others untouched", func() {
		s.Require().NoError(s.store.Apply(s.ctx, "a", s.batch([]int{100}, nil)))
		bm, err := s.store.Load(s.ctx, "b")
		s.Require().NoError(err)
		s.Equal(0, bm.Count())
	})

	s.Run("ids are sorted", func() {
		ids, err := s.store.IDs(s.ctx)
		s.Require().NoError(err)
		s.Equal([]models.ListID{"a", "b"}, ids)

		n, err := s.store.Count(s.ctx)
		s.Require().NoError(err)
		s.Equal(2, n)
	})
}

// TestConcurrentCreate verifies exactly one of many racing registrations wins.
func (s *InMemoryStoreSuite) TestConcurrentCreate() {
	const goroutines = 50
	var wg sync.WaitGroup
	var created, rejected atomic.Int32

	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.Create(s.ctx, "race")
			if err == nil {
				created.Add(1)
				return
			}
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				rejected.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), created.Load())
	s.Equal(int32(goroutines-1), rejected.Load())
}

// TestReadersSeeWholeBatches alternates two batches that flip the same 200 bits and
// checks readers only ever observe 0 or 200 set bits.
func (s *InMemoryStoreSuite) TestReadersSeeWholeBatches() {
	s.Require().NoError(s.store.Create(s.ctx, "torn"))

	indices := make([]int, 200)
	for i := range indices {
		indices[i] = i * 97
	}
	setAll := s.batch(indices, nil)
	clearAll := s.batch(nil, indices)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	var torn atomic.Int32

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				bm, err := s.store.Load(s.ctx, "torn")
				if err != nil {
					torn.Add(1)
					return
				}
				if c := bm.Count(); c != 0 && c != len(indices) {
					torn.Add(1)
				}
			}
		}()
	}

	for i := range 500 {
		b := setAll
		if i%2 == 1 {
			b = clearAll
		}
		s.Require().NoError(s.store.Apply(s.ctx, "torn", b))
	}
	close(stop)
	wg.Wait()

	s.Equal(int32(0), torn.Load(), "readers observed a partially applied batch")
}

// TestConcurrentBatchesSerialize applies disjoint batches concurrently and checks
// none of them is lost.
func (s *InMemoryStoreSuite) TestConcurrentBatchesSerialize() {
	s.Require().NoError(s.store.Create(s.ctx, "serial"))

	const writers = 32
	var wg sync.WaitGroup
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			set := make([]int, 0, 10)
			for k := range 10 {
				set = append(set, w*10+k)
			}
			b, err := models.NewBatch(set, nil)
			if !s.NoError(err) {
				return
			}
			s.NoError(s.store.Apply(s.ctx, "serial", b))
		}()
	}
	wg.Wait()

	bm, err := s.store.Load(s.ctx, "serial")
	s.Require().NoError(err)
	s.Equal(writers*10, bm.Count())
}
