// Package storetest provides a conformance suite shared by every store
// backend.
package storetest

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

// Factory opens a fresh empty backend. The suite closes it.
type Factory func(t *testing.T) store.Backend

// Run executes the conformance suite against backends built by newBackend.
func Run(t *testing.T, newBackend Factory) {
	open := func(t *testing.T) store.Backend {
		b := newBackend(t)
		t.Cleanup(func() { assert.NoError(t, b.Close()) })
		return b
	}

	t.Run("Libraries", func(t *testing.T) { testLibraries(t, open(t)) })
	t.Run("LibraryConcurrentUpdate", func(t *testing.T) { testLibraryConcurrentUpdate(t, open(t)) })
	t.Run("Documents", func(t *testing.T) { testDocuments(t, open(t)) })
	t.Run("DocumentList", func(t *testing.T) { testDocumentList(t, open(t)) })
	t.Run("DocumentMove", func(t *testing.T) { testDocumentMove(t, open(t)) })
	t.Run("Chunks", func(t *testing.T) { testChunks(t, open(t)) })
	t.Run("ChunkPaging", func(t *testing.T) { testChunkPaging(t, open(t)) })
	t.Run("ChunkMove", func(t *testing.T) { testChunkMove(t, open(t)) })
	t.Run("ChunkDeleteByDocument", func(t *testing.T) { testChunkDeleteByDocument(t, open(t)) })
	t.Run("ChunkConcurrentUpdate", func(t *testing.T) { testChunkConcurrentUpdate(t, open(t)) })
}

func newLibrary(name string) *model.Library {
	return &model.Library{
		ID:           model.NewID(),
		Name:         name,
		EmbeddingDim: 4,
		IndexConfig:  index.LSHConfig(4, 8),
		Metadata: model.LibraryMetadata{
			Metadata:    model.Metadata{Author: "ada", Tags: []string{"a", "b"}},
			Description: "test library",
		},
	}
}

func newDocument(libraryID uuid.UUID, tags ...string) *model.Document {
	return &model.Document{
		ID:        model.NewID(),
		LibraryID: libraryID,
		Metadata: model.DocumentMetadata{
			Metadata: model.Metadata{Tags: tags},
			Title:    "doc",
		},
	}
}

func newChunk(libraryID, documentID uuid.UUID, pos int) *model.Chunk {
	page := pos + 1
	return &model.Chunk{
		ID:         model.NewID(),
		LibraryID:  libraryID,
		DocumentID: documentID,
		Text:       "chunk",
		Position:   pos,
		Embedding:  []float32{float32(pos), 1, 0, 0},
		Metadata: model.ChunkMetadata{
			Metadata:   model.Metadata{Custom: map[string]string{"k": "v"}},
			PageNumber: &page,
		},
	}
}

func assertSameTime(t *testing.T, want, got time.Time, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func testLibraries(t *testing.T, b store.Backend) {
	ctx := context.Background()
	libs := b.Libraries()

	lib := newLibrary("first")
	require.NoError(t, libs.Add(ctx, lib))
	assert.Equal(t, int64(1), lib.Version)
	assert.False(t, lib.CreatedAt.IsZero())
	assertSameTime(t, lib.CreatedAt, lib.UpdatedAt)

	err := libs.Add(ctx, lib.Clone())
	assert.ErrorIs(t, err, model.ErrConflict)

	got, err := libs.Get(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, lib.Name, got.Name)
	assert.Equal(t, lib.EmbeddingDim, got.EmbeddingDim)
	assert.Equal(t, lib.IndexConfig, got.IndexConfig)
	assert.Equal(t, lib.Metadata, got.Metadata)
	assert.Equal(t, int64(1), got.Version)
	assertSameTime(t, lib.CreatedAt, got.CreatedAt)

	// Returned values are copies.
	got.Metadata.Tags[0] = "mutated"
	again, err := libs.Get(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, "a", again.Metadata.Tags[0])

	_, err = libs.Get(ctx, model.NewID())
	assert.ErrorIs(t, err, model.ErrNotFound)

	second := newLibrary("second")
	require.NoError(t, libs.Add(ctx, second))
	list, err := libs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, lib.ID, list[0].ID)
	assert.Equal(t, second.ID, list[1].ID)

	// Successful update bumps the version by exactly one.
	got.Name = "renamed"
	got.Metadata.Tags[0] = "a"
	require.NoError(t, libs.UpdateOnVersion(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)
	assertSameTime(t, lib.CreatedAt, got.CreatedAt)
	assert.False(t, got.UpdatedAt.Before(got.CreatedAt))

	stored, err := libs.Get(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, int64(2), stored.Version)

	// A stale version writes nothing.
	stale := stored.Clone()
	stale.Name = "stale"
	err = libs.UpdateOnVersion(ctx, stale, 1)
	assert.ErrorIs(t, err, model.ErrConflict)
	stored, err = libs.Get(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", stored.Name)
	assert.Equal(t, int64(2), stored.Version)

	missing := newLibrary("missing")
	assert.ErrorIs(t, libs.UpdateOnVersion(ctx, missing, 1), model.ErrConflict)

	ok, err := libs.Delete(ctx, lib.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = libs.Delete(ctx, lib.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err = libs.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)
}

func testLibraryConcurrentUpdate(t *testing.T, b store.Backend) {
	ctx := context.Background()
	libs := b.Libraries()

	lib := newLibrary("contended")
	require.NoError(t, libs.Add(ctx, lib))

	const writers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		conflicts int
	)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			l := lib.Clone()
			l.Name = "writer"
			err := libs.UpdateOnVersion(ctx, l, 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case assert.ErrorIs(t, err, model.ErrConflict):
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, writers-1, conflicts)

	stored, err := libs.Get(ctx, lib.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stored.Version)
}

func testDocuments(t *testing.T, b store.Backend) {
	ctx := context.Background()
	docs := b.Documents()
	libID := model.NewID()

	doc := newDocument(libID, "x")
	doc.ChunkIDs = []uuid.UUID{model.NewID()}
	require.NoError(t, docs.Add(ctx, doc))
	assert.Equal(t, int64(1), doc.Version)
	assert.ErrorIs(t, docs.Add(ctx, doc.Clone()), model.ErrConflict)

	got, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.LibraryID, got.LibraryID)
	assert.Equal(t, doc.ChunkIDs, got.ChunkIDs)
	assert.Equal(t, doc.Metadata, got.Metadata)

	// Mutating the caller's value after Add does not leak into the store.
	doc.ChunkIDs[0] = uuid.Nil
	got, err = docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, got.ChunkIDs[0])

	got.ChunkIDs = append(got.ChunkIDs, model.NewID())
	require.NoError(t, docs.UpdateOnVersion(ctx, got, 1))
	assert.Equal(t, int64(2), got.Version)
	assert.ErrorIs(t, docs.UpdateOnVersion(ctx, got, 1), model.ErrConflict)

	stored, err := docs.Get(ctx, doc.ID)
	require.NoError(t, err)
	assert.Len(t, stored.ChunkIDs, 2)
	assert.Equal(t, int64(2), stored.Version)

	_, err = docs.Get(ctx, model.NewID())
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err := docs.Delete(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = docs.Delete(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := docs.ListByLibrary(ctx, libID, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func ids[T any](items []T, id func(T) uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, len(items))
	for i, it := range items {
		out[i] = id(it)
	}
	return out
}

func docID(d *model.Document) uuid.UUID { return d.ID }

func chunkID(c *model.Chunk) uuid.UUID { return c.ID }

func testDocumentList(t *testing.T, b store.Backend) {
	ctx := context.Background()
	docs := b.Documents()
	libID := model.NewID()

	tags := [][]string{{"red"}, {"blue"}, {"red", "blue"}, nil, {"red"}}
	added := make([]*model.Document, len(tags))
	for i, tg := range tags {
		added[i] = newDocument(libID, tg...)
		require.NoError(t, docs.Add(ctx, added[i]))
		time.Sleep(2 * time.Millisecond)
	}
	require.NoError(t, docs.Add(ctx, newDocument(model.NewID(), "red")))

	t.Run("CreatedAsc", func(t *testing.T) {
		list, err := docs.ListByLibrary(ctx, libID, store.ListOptions{SortBy: store.SortByCreatedAt, Order: store.OrderAsc})
		require.NoError(t, err)
		assert.Equal(t, ids(added, docID), ids(list, docID))
	})

	t.Run("CreatedDesc", func(t *testing.T) {
		list, err := docs.ListByLibrary(ctx, libID, store.ListOptions{SortBy: store.SortByCreatedAt})
		require.NoError(t, err)
		want := ids(added, docID)
		for i, j := 0, len(want)-1; i < j; i, j = i+1, j-1 {
			want[i], want[j] = want[j], want[i]
		}
		assert.Equal(t, want, ids(list, docID))
	})

	t.Run("HasTag", func(t *testing.T) {
		list, err := docs.ListByLibrary(ctx, libID, store.ListOptions{HasTag: "red", SortBy: store.SortByCreatedAt, Order: store.OrderAsc})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{added[0].ID, added[2].ID, added[4].ID}, ids(list, docID))
	})

	t.Run("CreatedAfterIsStrict", func(t *testing.T) {
		list, err := docs.ListByLibrary(ctx, libID, store.ListOptions{
			CreatedAfter: added[2].CreatedAt,
			SortBy:       store.SortByCreatedAt,
			Order:        store.OrderAsc,
		})
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{added[3].ID, added[4].ID}, ids(list, docID))
	})

	t.Run("Paging", func(t *testing.T) {
		opts := store.ListOptions{SortBy: store.SortByCreatedAt, Order: store.OrderAsc, Limit: 2}
		var got []uuid.UUID
		for offset := 0; ; offset += 2 {
			opts.Offset = offset
			page, err := docs.ListByLibrary(ctx, libID, opts)
			require.NoError(t, err)
			if len(page) == 0 {
				break
			}
			assert.LessOrEqual(t, len(page), 2)
			got = append(got, ids(page, docID)...)
		}
		assert.Equal(t, ids(added, docID), got)
	})

	t.Run("UpdatedDescDefault", func(t *testing.T) {
		first := added[0].Clone()
		first.Metadata.Title = "touched"
		require.NoError(t, docs.UpdateOnVersion(ctx, first, first.Version))

		list, err := docs.ListByLibrary(ctx, libID, store.ListOptions{})
		require.NoError(t, err)
		require.Len(t, list, len(added))
		assert.Equal(t, added[0].ID, list[0].ID)
		assert.Equal(t, "touched", list[0].Metadata.Title)
	})

	t.Run("InvalidOptions", func(t *testing.T) {
		_, err := docs.ListByLibrary(ctx, libID, store.ListOptions{SortBy: "title"})
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = docs.ListByLibrary(ctx, libID, store.ListOptions{Order: "up"})
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = docs.ListByLibrary(ctx, libID, store.ListOptions{Limit: store.MaxLimit + 1})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func testDocumentMove(t *testing.T, b store.Backend) {
	ctx := context.Background()
	docs := b.Documents()
	src, dst := model.NewID(), model.NewID()

	doc := newDocument(src)
	require.NoError(t, docs.Add(ctx, doc))

	doc.LibraryID = dst
	require.NoError(t, docs.UpdateOnVersion(ctx, doc, 1))

	inSrc, err := docs.ListByLibrary(ctx, src, store.ListOptions{})
	require.NoError(t, err)
	assert.Empty(t, inSrc)

	inDst, err := docs.ListByLibrary(ctx, dst, store.ListOptions{})
	require.NoError(t, err)
	require.Len(t, inDst, 1)
	assert.Equal(t, doc.ID, inDst[0].ID)
	assert.Equal(t, dst, inDst[0].LibraryID)
}

func testChunks(t *testing.T, b store.Backend) {
	ctx := context.Background()
	chunks := b.Chunks()
	libID, docID := model.NewID(), model.NewID()

	c := newChunk(libID, docID, 3)
	require.NoError(t, chunks.Add(ctx, c))
	assert.Equal(t, int64(1), c.Version)
	assert.ErrorIs(t, chunks.Add(ctx, c.Clone()), model.ErrConflict)

	got, err := chunks.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.Embedding, got.Embedding)
	assert.Equal(t, c.Text, got.Text)
	assert.Equal(t, c.Position, got.Position)
	assert.Equal(t, c.Metadata, got.Metadata)
	assert.Equal(t, libID, got.LibraryID)
	assert.Equal(t, docID, got.DocumentID)
	assertSameTime(t, c.CreatedAt, got.CreatedAt)

	got.Embedding[0] = 99
	again, err := chunks.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, float32(3), again.Embedding[0])

	noVec := newChunk(libID, docID, 4)
	noVec.Embedding = nil
	require.NoError(t, chunks.Add(ctx, noVec))
	got, err = chunks.Get(ctx, noVec.ID)
	require.NoError(t, err)
	assert.False(t, got.HasEmbedding())

	again.Text = "updated"
	require.NoError(t, chunks.UpdateOnVersion(ctx, again, 1))
	assert.Equal(t, int64(2), again.Version)
	assert.ErrorIs(t, chunks.UpdateOnVersion(ctx, again, 1), model.ErrConflict)
	assert.ErrorIs(t, chunks.UpdateOnVersion(ctx, newChunk(libID, docID, 0), 1), model.ErrConflict)

	stored, err := chunks.Get(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "updated", stored.Text)
	assert.Equal(t, int64(2), stored.Version)

	_, err = chunks.Get(ctx, model.NewID())
	assert.ErrorIs(t, err, model.ErrNotFound)

	ok, err := chunks.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = chunks.Delete(ctx, c.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	list, err := chunks.ListByLibrary(ctx, libID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{noVec.ID}, ids(list, chunkID))
}

func testChunkPaging(t *testing.T, b store.Backend) {
	ctx := context.Background()
	chunks := b.Chunks()
	libID := model.NewID()
	docA, docB := model.NewID(), model.NewID()

	var all, inA []uuid.UUID
	for i := 0; i < 25; i++ {
		doc := docA
		if i%3 == 0 {
			doc = docB
		}
		c := newChunk(libID, doc, i)
		require.NoError(t, chunks.Add(ctx, c))
		all = append(all, c.ID)
		if doc == docA {
			inA = append(inA, c.ID)
		}
	}
	require.NoError(t, chunks.Add(ctx, newChunk(model.NewID(), docA, 0)))

	var got []uuid.UUID
	for offset := 0; ; offset += 7 {
		page, err := chunks.ListByLibrary(ctx, libID, 7, offset)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		got = append(got, ids(page, chunkID)...)
	}
	assert.Equal(t, all, got)

	byDoc, err := chunks.ListByDocument(ctx, docA, 100, 0)
	require.NoError(t, err)
	assert.Len(t, byDoc, len(inA)+1)
	assert.Equal(t, inA, ids(byDoc, chunkID)[:len(inA)])

	tail, err := chunks.ListByLibrary(ctx, libID, 10, 20)
	require.NoError(t, err)
	assert.Equal(t, all[20:], ids(tail, chunkID))

	past, err := chunks.ListByLibrary(ctx, libID, 10, 100)
	require.NoError(t, err)
	assert.Empty(t, past)
}

func testChunkMove(t *testing.T, b store.Backend) {
	ctx := context.Background()
	chunks := b.Chunks()
	src, dst := model.NewID(), model.NewID()
	doc := model.NewID()

	moving := newChunk(src, doc, 0)
	staying := newChunk(src, doc, 1)
	resident := newChunk(dst, model.NewID(), 0)
	for _, c := range []*model.Chunk{moving, staying, resident} {
		require.NoError(t, chunks.Add(ctx, c))
	}

	moving.LibraryID = dst
	require.NoError(t, chunks.UpdateOnVersion(ctx, moving, 1))

	inSrc, err := chunks.ListByLibrary(ctx, src, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{staying.ID}, ids(inSrc, chunkID))

	inDst, err := chunks.ListByLibrary(ctx, dst, 10, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{moving.ID, resident.ID}, ids(inDst, chunkID))

	byDoc, err := chunks.ListByDocument(ctx, doc, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{moving.ID, staying.ID}, ids(byDoc, chunkID))
}

func testChunkDeleteByDocument(t *testing.T, b store.Backend) {
	ctx := context.Background()
	chunks := b.Chunks()
	libID, doc, other := model.NewID(), model.NewID(), model.NewID()

	for i := 0; i < 5; i++ {
		require.NoError(t, chunks.Add(ctx, newChunk(libID, doc, i)))
	}
	keep := newChunk(libID, other, 0)
	require.NoError(t, chunks.Add(ctx, keep))

	n, err := chunks.DeleteByDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	n, err = chunks.DeleteByDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	list, err := chunks.ListByLibrary(ctx, libID, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{keep.ID}, ids(list, chunkID))
}

func testChunkConcurrentUpdate(t *testing.T, b store.Backend) {
	ctx := context.Background()
	chunks := b.Chunks()

	c := newChunk(model.NewID(), model.NewID(), 0)
	require.NoError(t, chunks.Add(ctx, c))

	// Each round races a fresh writer against one holding the
	// previous version.
	for round := int64(1); round <= 5; round++ {
		fresh := c.Clone()
		stale := c.Clone()
		fresh.Text = "fresh"
		stale.Text = "stale"

		var wg sync.WaitGroup
		errs := make([]error, 2)
		wg.Add(2)
		go func() {
			defer wg.Done()
			errs[0] = chunks.UpdateOnVersion(ctx, fresh, round)
		}()
		go func() {
			defer wg.Done()
			errs[1] = chunks.UpdateOnVersion(ctx, stale, round-1)
		}()
		wg.Wait()

		require.NoError(t, errs[0])
		assert.ErrorIs(t, errs[1], model.ErrConflict)

		stored, err := chunks.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, round+1, stored.Version)
		assert.Equal(t, "fresh", stored.Text)
		c = stored
	}
}
