package store

import (
	"context"
	"sort"
	"sync"

	"rlregistry/internal/revocation/models"
	"rlregistry/pkg/platform/sentinel"
)

// InMemory keeps every revocation list in process memory.
//
// The map lock is held only to look up or insert an entry; each list carries its own
// RWMutex so batches on one list never wait on another list, and readers of one list
// share the lock with each other but never observe a half-applied batch.
type InMemory struct {
	mu    sync.RWMutex
	lists map[models.ListID]*entry
}

type entry struct {
	mu     sync.RWMutex
	bitmap *models.Bitmap
}

// NewInMemory creates an empty in-memory registry.
func NewInMemory() *InMemory {
	return &InMemory{lists: make(map[models.ListID]*entry)}
}

// Create registers a zero-filled list. Returns sentinel.ErrAlreadyUsed if id exists.
func (s *InMemory) Create(_ context.Context, id models.ListID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.lists[id]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.lists[id] = &entry{bitmap: models.NewBitmap()}
	return nil
}

// Apply writes a batch under the list's exclusive lock.
func (s *InMemory) Apply(_ context.Context, id models.ListID, batch models.Batch) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bitmap.Apply(batch)
	return nil
}

// Replace swaps the whole bitmap. The argument is copied.
func (s *InMemory) Replace(_ context.Context, id models.ListID, bitmap *models.Bitmap) error {
	e, err := s.lookup(id)
	if err != nil {
		return err
	}
	next := bitmap.Clone()
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bitmap = next
	return nil
}

// Load returns a copy of the list's bitmap.
func (s *InMemory) Load(_ context.Context, id models.ListID) (*models.Bitmap, error) {
	e, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bitmap.Clone(), nil
}

// BitAt reads one bit without copying the bitmap.
func (s *InMemory) BitAt(_ context.Context, id models.ListID, index uint32) (bool, error) {
	e, err := s.lookup(id)
	if err != nil {
		return false, err
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.bitmap.Get(index), nil
}

// IDs returns every registered id in ascending order.
func (s *InMemory) IDs(_ context.Context) ([]models.ListID, error) {
	s.mu.RLock()
	ids := make([]models.ListID, 0, len(s.lists))
	for id := range s.lists {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Count returns the number of registered lists.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lists), nil
}

func (s *InMemory) lookup(id models.ListID) (*entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.lists[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return e, nil
}
