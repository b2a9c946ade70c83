package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type libraryStore struct {
	mu        sync.RWMutex
	seq       uint64
	libraries map[uuid.UUID]*record[*model.Library]
	order     members[*model.Library]
}

var _ store.LibraryStore = (*libraryStore)(nil)

func newLibraryStore() *libraryStore {
	return &libraryStore{
		libraries: make(map[uuid.UUID]*record[*model.Library]),
		order:     make(members[*model.Library]),
	}
}

func (s *libraryStore) Add(_ context.Context, lib *model.Library) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.libraries[lib.ID]; ok {
		return store.AlreadyExists(store.KindLibrary, lib.ID)
	}

	now := store.Now()
	lib.Version = 1
	lib.CreatedAt = now
	lib.UpdatedAt = now

	s.seq++
	r := &record[*model.Library]{seq: s.seq, value: lib.Clone()}
	s.libraries[lib.ID] = r
	s.order.insert(uuid.Nil, r)
	return nil
}

func (s *libraryStore) Get(_ context.Context, id uuid.UUID) (*model.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.libraries[id]
	if !ok {
		return nil, model.NotFound(store.KindLibrary, id)
	}
	return r.value.Clone(), nil
}

func (s *libraryStore) List(_ context.Context) ([]*model.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := s.order[uuid.Nil]
	out := make([]*model.Library, 0, len(list))
	for _, r := range list {
		out = append(out, r.value.Clone())
	}
	return out, nil
}

func (s *libraryStore) UpdateOnVersion(_ context.Context, lib *model.Library, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.libraries[lib.ID]
	if !ok || r.value.Version != expected {
		return model.Conflict(store.KindLibrary, lib.ID, expected)
	}

	lib.Version = expected + 1
	lib.CreatedAt = r.value.CreatedAt
	lib.UpdatedAt = store.Now()
	r.value = lib.Clone()
	return nil
}

func (s *libraryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.libraries[id]
	if !ok {
		return false, nil
	}
	delete(s.libraries, id)
	s.order.remove(uuid.Nil, r)
	return true, nil
}
