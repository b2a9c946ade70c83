package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

func newChunks(vectors ...[]float32) []*model.Chunk {
	out := make([]*model.Chunk, len(vectors))
	for i, v := range vectors {
		out[i] = &model.Chunk{Text: "chunk", Position: i, Embedding: v}
	}
	return out
}

func TestDocumentCreateWithChunks(t *testing.T) {
	s := newServices(t)
	lib := createLibrary(t, s, 2, index.FlatConfig())

	foreign := model.NewID()
	in := newChunks([]float32{1, 0}, []float32{0, 1}, nil)
	in[0].LibraryID = foreign

	doc, err := s.Documents.CreateWithChunks(t.Context(), lib.ID, in, model.DocumentMetadata{Title: "t"})
	require.NoError(t, err)
	assert.Len(t, doc.ChunkIDs, 3)
	assert.Equal(t, int64(2), doc.Version)

	got, err := s.Documents.Get(t.Context(), lib.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ChunkIDs, got.ChunkIDs)

	chunks, err := s.Chunks.ListByDocument(t.Context(), lib.ID, doc.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, lib.ID, c.LibraryID, "owner fields are overwritten")
		assert.Equal(t, doc.ID, c.DocumentID)
	}
	assert.Equal(t, 2, indexLen(t, s, lib.ID), "chunks without embedding are not indexed")
	assert.Equal(t, foreign, in[0].LibraryID, "caller's chunks are not modified")
}

func TestDocumentCreateWithChunksRejectsMismatch(t *testing.T) {
	s := newServices(t)
	lib := createLibrary(t, s, 2, index.FlatConfig())

	_, err := s.Documents.CreateWithChunks(t.Context(), lib.ID, newChunks([]float32{1, 0}, []float32{1, 0, 0}), model.DocumentMetadata{})
	var dm *model.DimensionMismatchError
	require.ErrorAs(t, err, &dm)
	assert.Equal(t, 2, dm.Expected)
	assert.Equal(t, 3, dm.Actual)

	docs, err := s.Documents.List(t.Context(), lib.ID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs, "nothing is written when validation fails")
	assert.Equal(t, 0, indexLen(t, s, lib.ID))
}

func TestDocumentCreateWithChunksCompensates(t *testing.T) {
	d := newDeps(t)
	faulty := &faultyChunks{ChunkStore: d.Chunks, failAddAt: 3}
	d.Chunks = faulty
	s := New(d)
	lib := createLibrary(t, s, 2, index.FlatConfig())

	_, err := s.Documents.CreateWithChunks(t.Context(), lib.ID, newChunks([]float32{1, 0}, []float32{0, 1}, []float32{1, 1}), model.DocumentMetadata{})
	require.ErrorIs(t, err, errInjected)

	docs, err := s.Documents.List(t.Context(), lib.ID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, docs)

	chunks, err := d.Chunks.ListByLibrary(t.Context(), lib.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Equal(t, 0, indexLen(t, s, lib.ID))
}

func TestDocumentGetAndList(t *testing.T) {
	s := newServices(t)
	lib := createLibrary(t, s, 2, index.FlatConfig())
	other := createLibrary(t, s, 2, index.FlatConfig())

	a, err := s.Documents.Create(t.Context(), lib.ID, model.DocumentMetadata{Metadata: model.Metadata{Tags: []string{"x"}}})
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	b, err := s.Documents.Create(t.Context(), lib.ID, model.DocumentMetadata{})
	require.NoError(t, err)

	_, err = s.Documents.Get(t.Context(), other.ID, a.ID)
	assert.ErrorIs(t, err, model.ErrNotFound, "documents of other libraries are invisible")

	docs, err := s.Documents.List(t.Context(), lib.ID, store.ListOptions{SortBy: store.SortByCreatedAt, Order: store.OrderAsc})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, []uuid.UUID{a.ID, b.ID}, []uuid.UUID{docs[0].ID, docs[1].ID})

	docs, err = s.Documents.List(t.Context(), lib.ID, store.ListOptions{HasTag: "x"})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, a.ID, docs[0].ID)

	_, err = s.Documents.List(t.Context(), lib.ID, store.ListOptions{Limit: store.MaxLimit + 1})
	assert.ErrorIs(t, err, model.ErrValidation)

	_, err = s.Documents.List(t.Context(), model.NewID(), store.ListOptions{})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDocumentUpdateMetadata(t *testing.T) {
	s := newServices(t)
	lib := createLibrary(t, s, 2, index.FlatConfig())
	doc := createDocument(t, s, lib.ID)

	updated, err := s.Documents.UpdateMetadata(t.Context(), lib.ID, doc.ID, model.DocumentMetadata{Title: "new"}, WithExpectedVersion(doc.Version))
	require.NoError(t, err)
	assert.Equal(t, "new", updated.Metadata.Title)
	assert.Equal(t, doc.Version+1, updated.Version)

	_, err = s.Documents.UpdateMetadata(t.Context(), lib.ID, doc.ID, model.DocumentMetadata{Title: "stale"}, WithExpectedVersion(doc.Version))
	assert.ErrorIs(t, err, model.ErrConflict)

	got, err := s.Documents.Get(t.Context(), lib.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Metadata.Title)
}

func TestDocumentDelete(t *testing.T) {
	s := newServices(t)
	lib := createLibrary(t, s, 2, index.FlatConfig())
	doc, err := s.Documents.CreateWithChunks(t.Context(), lib.ID, newChunks([]float32{1, 0}, []float32{0, 1}), model.DocumentMetadata{})
	require.NoError(t, err)
	kept := upsert(t, s, createDocument(t, s, lib.ID), []float32{1, 1})

	require.NoError(t, s.Documents.Delete(t.Context(), lib.ID, doc.ID))

	_, err = s.Documents.Get(t.Context(), lib.ID, doc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	for _, id := range doc.ChunkIDs {
		_, err := s.Chunks.Get(t.Context(), lib.ID, id)
		assert.ErrorIs(t, err, model.ErrNotFound)
	}
	assert.Equal(t, 1, indexLen(t, s, lib.ID))

	hits, err := s.Search.Search(t.Context(), lib.ID, Query{Embedding: []float32{1, 0}, K: 5})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{kept.ID}, hitIDs(hits))

	assert.NoError(t, s.Documents.Delete(t.Context(), lib.ID, doc.ID), "delete is idempotent")
	assert.NoError(t, s.Documents.Delete(t.Context(), model.NewID(), kept.DocumentID), "other libraries are ignored")
}

func TestDocumentMove(t *testing.T) {
	s := newServices(t)
	src := createLibrary(t, s, 2, index.FlatConfig())
	dst := createLibrary(t, s, 2, index.LSHConfig(2, 2))
	doc, err := s.Documents.CreateWithChunks(t.Context(), src.ID, newChunks([]float32{1, 0}, []float32{0, 1}, nil), model.DocumentMetadata{})
	require.NoError(t, err)

	moved, err := s.Documents.Move(t.Context(), doc.ID, src.ID, dst.ID)
	require.NoError(t, err)
	assert.Equal(t, dst.ID, moved.LibraryID)

	_, err = s.Documents.Get(t.Context(), src.ID, doc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)

	chunks, err := s.Chunks.ListByDocument(t.Context(), dst.ID, doc.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, dst.ID, c.LibraryID)
	}

	assert.Equal(t, 0, indexLen(t, s, src.ID))
	assert.Equal(t, 2, indexLen(t, s, dst.ID))

	hits, err := s.Search.Search(t.Context(), dst.ID, Query{Embedding: []float32{1, 0}, K: 3})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	hits, err = s.Search.Search(t.Context(), src.ID, Query{Embedding: []float32{1, 0}, K: 3})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDocumentMoveRejects(t *testing.T) {
	s := newServices(t)
	src := createLibrary(t, s, 2, index.FlatConfig())
	narrow := createLibrary(t, s, 3, index.FlatConfig())
	doc, err := s.Documents.CreateWithChunks(t.Context(), src.ID, newChunks([]float32{1, 0}), model.DocumentMetadata{})
	require.NoError(t, err)

	t.Run("SameLibrary", func(t *testing.T) {
		_, err := s.Documents.Move(t.Context(), doc.ID, src.ID, src.ID)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		_, err := s.Documents.Move(t.Context(), doc.ID, src.ID, narrow.ID)
		var dm *model.DimensionMismatchError
		require.ErrorAs(t, err, &dm)

		got, err := s.Documents.Get(t.Context(), src.ID, doc.ID)
		require.NoError(t, err)
		assert.Equal(t, src.ID, got.LibraryID)
		assert.Equal(t, 1, indexLen(t, s, src.ID))
		assert.Equal(t, 0, indexLen(t, s, narrow.ID))
	})

	t.Run("WrongSource", func(t *testing.T) {
		other := createLibrary(t, s, 2, index.FlatConfig())
		_, err := s.Documents.Move(t.Context(), doc.ID, other.ID, narrow.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestDocumentMoveConflictRollsBack(t *testing.T) {
	d := newDeps(t)
	faulty := &faultyChunks{ChunkStore: d.Chunks}
	d.Chunks = faulty
	s := New(d)

	src := createLibrary(t, s, 2, index.FlatConfig())
	dst := createLibrary(t, s, 2, index.FlatConfig())
	doc, err := s.Documents.CreateWithChunks(t.Context(), src.ID, newChunks([]float32{1, 0}, []float32{0, 1}, []float32{1, 1}), model.DocumentMetadata{})
	require.NoError(t, err)

	// The second chunk's versioned write fails.
	faulty.failUpdateAt = faulty.updates.Load() + 2

	_, err = s.Documents.Move(t.Context(), doc.ID, src.ID, dst.ID)
	require.ErrorIs(t, err, model.ErrConflict)

	got, err := s.Documents.Get(t.Context(), src.ID, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, src.ID, got.LibraryID)

	chunks, err := s.Chunks.ListByDocument(t.Context(), src.ID, doc.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	for _, c := range chunks {
		assert.Equal(t, src.ID, c.LibraryID)
	}
	assert.Equal(t, 3, indexLen(t, s, src.ID))
	assert.Equal(t, 0, indexLen(t, s, dst.ID))
}

func TestDocumentMoveOppositeDirections(t *testing.T) {
	s := newServices(t)
	a := createLibrary(t, s, 2, index.FlatConfig())
	b := createLibrary(t, s, 2, index.FlatConfig())

	const pairs = 10
	var toB, toA []*model.Document
	for range pairs {
		da, err := s.Documents.CreateWithChunks(t.Context(), a.ID, newChunks([]float32{1, 0}), model.DocumentMetadata{})
		require.NoError(t, err)
		db, err := s.Documents.CreateWithChunks(t.Context(), b.ID, newChunks([]float32{0, 1}), model.DocumentMetadata{})
		require.NoError(t, err)
		toB, toA = append(toB, da), append(toA, db)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 2*pairs)
	for i := range pairs {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := s.Documents.Move(ctx, toB[i].ID, a.ID, b.ID)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := s.Documents.Move(ctx, toA[i].ID, b.ID, a.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, pairs, indexLen(t, s, a.ID))
	assert.Equal(t, pairs, indexLen(t, s, b.ID))
}

func TestDocumentCreateWithChunksDuringReconfigure(t *testing.T) {
	s := newServices(t)
	d := s.Documents.d
	lib := createLibrary(t, s, 2, index.FlatConfig())

	l := d.Locks.For(lib.ID)
	require.NoError(t, l.Lock(t.Context()))

	type result struct {
		doc *model.Document
		err error
	}
	done := make(chan result, 1)
	go func() {
		doc, err := s.Documents.CreateWithChunks(t.Context(), lib.ID, newChunks([]float32{1, 0}, []float32{0, 1}), model.DocumentMetadata{})
		done <- result{doc, err}
	}()

	// Let the writer block on the lock, then replace the index the way a
	// reconfiguration does.
	time.Sleep(20 * time.Millisecond)
	lib.IndexConfig = index.IVFConfig(2, 1).WithDefaults()
	require.NoError(t, d.Libraries.UpdateOnVersion(t.Context(), lib, lib.Version))
	fresh, err := d.Indexes.New(lib.IndexConfig, lib.EmbeddingDim)
	require.NoError(t, err)
	d.Indexes.Swap(lib.ID, fresh)
	l.Unlock()

	r := <-done
	require.NoError(t, r.err)

	idx, ok := d.Indexes.Get(lib.ID)
	require.True(t, ok)
	assert.Same(t, fresh, idx)
	assert.Equal(t, 2, idx.Len())

	hits, err := s.Search.Search(t.Context(), lib.ID, Query{Embedding: []float32{0, 1}, K: 1})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, r.doc.ChunkIDs[1], hits[0].ChunkID)
}

func TestDocumentMoveDuringLibraryDelete(t *testing.T) {
	d := newDeps(t)
	libs := &hookLibraries{LibraryStore: d.Libraries}
	d.Libraries = libs
	s := New(d)

	src := createLibrary(t, s, 2, index.FlatConfig())
	dst := createLibrary(t, s, 2, index.FlatConfig())
	doc := createDocument(t, s, src.ID)
	c := upsert(t, s, doc, []float32{1, 0})

	// dst disappears after the move has read both libraries.
	libs.skip = 1
	libs.onGet = func() {
		assert.NoError(t, s.Libraries.Delete(t.Context(), dst.ID))
	}
	_, err := s.Documents.Move(t.Context(), doc.ID, src.ID, dst.ID)
	require.ErrorIs(t, err, model.ErrNotFound)

	_, ok := d.Indexes.Get(dst.ID)
	assert.False(t, ok, "a deleted library gets no new index")

	got, err := s.Chunks.Get(t.Context(), src.ID, c.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.DocumentID)
	assert.Equal(t, 1, indexLen(t, s, src.ID))
}
