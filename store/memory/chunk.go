package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type chunkStore struct {
	mu         sync.RWMutex
	seq        uint64
	chunks     map[uuid.UUID]*record[*model.Chunk]
	byLibrary  members[*model.Chunk]
	byDocument members[*model.Chunk]
}

var _ store.ChunkStore = (*chunkStore)(nil)

func newChunkStore() *chunkStore {
	return &chunkStore{
		chunks:     make(map[uuid.UUID]*record[*model.Chunk]),
		byLibrary:  make(members[*model.Chunk]),
		byDocument: make(members[*model.Chunk]),
	}
}

func (s *chunkStore) Add(_ context.Context, chunk *model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chunks[chunk.ID]; ok {
		return store.AlreadyExists(store.KindChunk, chunk.ID)
	}

	now := store.Now()
	chunk.Version = 1
	chunk.CreatedAt = now
	chunk.UpdatedAt = now

	s.seq++
	r := &record[*model.Chunk]{seq: s.seq, value: chunk.Clone()}
	s.chunks[chunk.ID] = r
	s.byLibrary.insert(chunk.LibraryID, r)
	s.byDocument.insert(chunk.DocumentID, r)
	return nil
}

func (s *chunkStore) Get(_ context.Context, id uuid.UUID) (*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.chunks[id]
	if !ok {
		return nil, model.NotFound(store.KindChunk, id)
	}
	return r.value.Clone(), nil
}

func (s *chunkStore) ListByLibrary(_ context.Context, libraryID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return page(s.byLibrary[libraryID], limit, offset, (*model.Chunk).Clone), nil
}

func (s *chunkStore) ListByDocument(_ context.Context, documentID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return page(s.byDocument[documentID], limit, offset, (*model.Chunk).Clone), nil
}

func (s *chunkStore) UpdateOnVersion(_ context.Context, chunk *model.Chunk, expected int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.chunks[chunk.ID]
	if !ok || r.value.Version != expected {
		return model.Conflict(store.KindChunk, chunk.ID, expected)
	}

	if r.value.LibraryID != chunk.LibraryID {
		s.byLibrary.remove(r.value.LibraryID, r)
		s.byLibrary.insert(chunk.LibraryID, r)
	}
	if r.value.DocumentID != chunk.DocumentID {
		s.byDocument.remove(r.value.DocumentID, r)
		s.byDocument.insert(chunk.DocumentID, r)
	}

	chunk.Version = expected + 1
	chunk.CreatedAt = r.value.CreatedAt
	chunk.UpdatedAt = store.Now()
	r.value = chunk.Clone()
	return nil
}

func (s *chunkStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.chunks[id]
	if !ok {
		return false, nil
	}
	s.deleteLocked(r)
	return true, nil
}

func (s *chunkStore) DeleteByDocument(_ context.Context, documentID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.byDocument[documentID]
	n := len(list)
	for len(list) > 0 {
		s.deleteLocked(list[0])
		list = s.byDocument[documentID]
	}
	return n, nil
}

func (s *chunkStore) deleteLocked(r *record[*model.Chunk]) {
	delete(s.chunks, r.value.ID)
	s.byLibrary.remove(r.value.LibraryID, r)
	s.byDocument.remove(r.value.DocumentID, r)
}
