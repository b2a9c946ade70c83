package memory

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type documentStore struct {
	mu        sync.RWMutex
	seq       uint64
	documents map[uuid.UUID]*record[*model.Document]
	byLibrary members[*model.Document]
}

var _ store.DocumentStore = (*documentStore)(nil)

func newDocumentStore() *documentStore {
	return &documentStore{
		documents: make(map[uuid.UUID]*record[*model.Document]),
		byLibrary: make(members[*model.Document]),
	}
}

func (s *documentStore) Add(_ context.Context, doc *model.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return store.AlreadyExists(store.KindDocument, doc.ID)
	}

	now := store.Now()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	s.seq++
	r := &record[*model.Document]{seq: s.seq, value: doc.Clone()}
	s.documents[doc.ID] = r
	s.byLibrary.insert(doc.LibraryID, r)
	return nil
}

func (s *documentStore) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.documents[id]
	if !ok {
		return nil, model.NotFound(store.KindDocument, id)
	}
	return r.value.Clone(), nil
}

func (s *documentStore) ListByLibrary(_ context.Context, libraryID uuid.UUID, opts store.ListOptions) ([]*model.Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	s.mu.RLock()
	matched := make([]*record[*model.Document], 0, len(s.byLibrary[libraryID]))
	for _, r := range s.byLibrary[libraryID] {
		if opts.Match(r.value) {
			matched = append(matched, r)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(matched, func(a, b *record[*model.Document]) int {
		c := opts.Key(a.value).Compare(opts.Key(b.value))
		if c == 0 {
			c = compareSeq(a, b.seq)
		}
		if opts.Order == store.OrderDesc {
			return -c
		}
		return c
	})

	return page(matched, opts.Limit, opts.Offset, (*model.Document).Clone), nil
}

func (s *documentStore) UpdateOnVersion(_ context.Context, doc *model.Document, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.documents[doc.ID]
	if !ok || r.value.Version != expected {
		return model.Conflict(store.KindDocument, doc.ID, expected)
	}

	if r.value.LibraryID != doc.LibraryID {
		s.byLibrary.remove(r.value.LibraryID, r)
		s.byLibrary.insert(doc.LibraryID, r)
	}

	doc.Version = expected + 1
	doc.CreatedAt = r.value.CreatedAt
	doc.UpdatedAt = store.Now()
	r.value = doc.Clone()
	return nil
}

func (s *documentStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.documents[id]
	if !ok {
		return false, nil
	}
	delete(s.documents, id)
	s.byLibrary.remove(r.value.LibraryID, r)
	return true, nil
}
