// Package memory implements the record stores with maps guarded by
// read-write mutexes. It is the default backend.
package memory

import (
	"cmp"
	"slices"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/store"
)

// Store holds the library, document and chunk stores of one database.
type Store struct {
	libraries *libraryStore
	documents *documentStore
	chunks    *chunkStore
}

var _ store.Backend = (*Store)(nil)

// New returns an empty in-memory store.
func New() *Store {
	return &Store{
		libraries: newLibraryStore(),
		documents: newDocumentStore(),
		chunks:    newChunkStore(),
	}
}

// Libraries returns the library store.
func (s *Store) Libraries() store.LibraryStore { return s.libraries }

// Documents returns the document store.
func (s *Store) Documents() store.DocumentStore { return s.documents }

// Chunks returns the chunk store.
func (s *Store) Chunks() store.ChunkStore { return s.chunks }

// Close is a no-op.
func (s *Store) Close() error { return nil }

// record pairs a stored value with its insertion sequence number.
type record[T any] struct {
	seq   uint64
	value T
}

// members keeps, per owner id, the owned records sorted by sequence.
type members[T any] map[uuid.UUID][]*record[T]

func compareSeq[T any](r *record[T], seq uint64) int {
	return cmp.Compare(r.seq, seq)
}

func (m members[T]) insert(owner uuid.UUID, r *record[T]) {
	list := m[owner]
	i, _ := slices.BinarySearchFunc(list, r.seq, compareSeq[T])
	m[owner] = slices.Insert(list, i, r)
}

func (m members[T]) remove(owner uuid.UUID, r *record[T]) {
	list := m[owner]
	i, found := slices.BinarySearchFunc(list, r.seq, compareSeq[T])
	if !found {
		return
	}
	list = slices.Delete(list, i, i+1)
	if len(list) == 0 {
		delete(m, owner)
		return
	}
	m[owner] = list
}

// page returns clones of the owner's records in [offset, offset+limit).
func page[T any](list []*record[T], limit, offset int, clone func(T) T) []T {
	start, end := store.Page(len(list), offset, limit)
	out := make([]T, 0, end-start)
	for _, r := range list[start:end] {
		out = append(out, clone(r.value))
	}
	return out
}
