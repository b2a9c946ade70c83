package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

// ChunkService manages chunks and keeps the library indexes in step with
// the chunk store.
type ChunkService struct {
	d *Deps
}

// resolve checks that the document belongs to the library before any lock
// is taken. The index is fetched later, under the lock.
func (s *ChunkService) resolve(ctx context.Context, libraryID, documentID uuid.UUID) (*model.Library, error) {
	lib, err := s.d.Libraries.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	doc, err := s.d.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.LibraryID != libraryID {
		return nil, model.NotFound(store.KindDocument, documentID)
	}
	return lib, nil
}

// Upsert inserts a new chunk or replaces an existing one and indexes its
// embedding. The chunk's LibraryID and DocumentID select where it lives; an
// existing chunk cannot change owners through Upsert.
//
// A new chunk is appended to its document's chunk list. An existing chunk
// is replaced under an optimistic version check against the version read
// at the start of the call, or against WithExpectedVersion if given.
func (s *ChunkService) Upsert(ctx context.Context, chunk *model.Chunk, optFns ...func(o *WriteOptions)) (*model.Chunk, error) {
	start := time.Now()
	out, err := s.upsert(ctx, chunk, applyWriteOptions(optFns))
	s.d.Observer.RecordUpsert(time.Since(start), err)
	if chunk != nil {
		logFailure(ctx, s.d.Logger, "chunk upsert", err, "chunk_id", chunk.ID, "library_id", chunk.LibraryID)
	}
	return out, err
}

func (s *ChunkService) upsert(ctx context.Context, in *model.Chunk, opts WriteOptions) (*model.Chunk, error) {
	if in == nil {
		return nil, model.Validationf("chunk is nil")
	}

	lib, err := s.resolve(ctx, in.LibraryID, in.DocumentID)
	if err != nil {
		return nil, err
	}

	c := in.Clone()
	if c.ID == uuid.Nil {
		c.ID = model.NewID()
	}
	if err := c.Validate(lib.EmbeddingDim); err != nil {
		return nil, err
	}

	existing, err := s.d.Chunks.Get(ctx, c.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	case existing.LibraryID != c.LibraryID || existing.DocumentID != c.DocumentID:
		return nil, model.Validationf("chunk %s belongs to document %s in library %s", c.ID, existing.DocumentID, existing.LibraryID)
	}

	unlock, err := s.d.lockLibrary(ctx, c.LibraryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	idx, err := s.d.liveIndex(ctx, c.LibraryID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		err = s.insertLocked(ctx, idx, c)
	} else {
		err = s.replaceLocked(ctx, idx, existing, c, opts.expected(existing.Version))
	}
	if err != nil {
		return nil, err
	}

	s.d.Logger.DebugContext(ctx, "chunk upserted",
		"chunk_id", c.ID,
		"document_id", c.DocumentID,
		"version", c.Version,
	)
	return c, nil
}

// insertLocked adds a new chunk, links it into its document and indexes
// it. Steps already taken are undone on failure.
func (s *ChunkService) insertLocked(ctx context.Context, idx index.Index, c *model.Chunk) error {
	var undo undoLog

	if err := s.d.Chunks.Add(ctx, c); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		_, err := s.d.Chunks.Delete(ctx, c.ID)
		return err
	})

	if err := s.d.linkChunks(ctx, c.DocumentID, c.ID); err != nil {
		undo.rollback(ctx, s.d.Logger, "chunk upsert")
		return err
	}

	if c.HasEmbedding() {
		if err := idx.Add(c.ID, c.Embedding); err != nil {
			undo.push(func(ctx context.Context) error {
				return s.d.unlinkChunk(ctx, c.DocumentID, c.ID)
			})
			undo.rollback(ctx, s.d.Logger, "chunk upsert")
			return translateError(err)
		}
	}
	return nil
}

// replaceLocked overwrites an existing chunk and its index entry.
func (s *ChunkService) replaceLocked(ctx context.Context, idx index.Index, old, c *model.Chunk, expected int64) error {
	var undo undoLog

	if err := s.d.Chunks.UpdateOnVersion(ctx, c, expected); err != nil {
		return err
	}
	undo.push(func(ctx context.Context) error {
		restored := old.Clone()
		return s.d.Chunks.UpdateOnVersion(ctx, restored, c.Version)
	})

	// Heal a chunk that is missing from its document's list.
	if err := s.d.linkChunks(ctx, c.DocumentID, c.ID); err != nil {
		undo.rollback(ctx, s.d.Logger, "chunk upsert")
		return err
	}

	if !c.HasEmbedding() {
		idx.Remove(c.ID)
		return nil
	}
	if err := idx.Update(c.ID, c.Embedding); err != nil {
		undo.rollback(ctx, s.d.Logger, "chunk upsert")
		return translateError(err)
	}
	return nil
}

// BulkUpsert writes a batch of chunks into one document under a single
// lock acquisition. Every chunk is assigned to the given library and
// document regardless of its own owner fields. The whole batch is
// validated first; if a write fails midway, the chunks already written in
// this call are restored.
func (s *ChunkService) BulkUpsert(ctx context.Context, libraryID, documentID uuid.UUID, chunks []*model.Chunk) ([]*model.Chunk, error) {
	start := time.Now()
	out, err := s.bulkUpsert(ctx, libraryID, documentID, chunks)
	failed := 0
	if err != nil {
		failed = len(chunks)
	}
	s.d.Observer.RecordBulkUpsert(len(chunks), failed, time.Since(start))
	logFailure(ctx, s.d.Logger, "chunk bulk upsert", err, "library_id", libraryID, "document_id", documentID)
	return out, err
}

func (s *ChunkService) bulkUpsert(ctx context.Context, libraryID, documentID uuid.UUID, chunks []*model.Chunk) ([]*model.Chunk, error) {
	lib, err := s.resolve(ctx, libraryID, documentID)
	if err != nil {
		return nil, err
	}

	batch, err := prepareChunks(lib, documentID, chunks)
	if err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		return batch, nil
	}

	unlock, err := s.d.lockLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	idx, err := s.d.liveIndex(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	var (
		undo  undoLog
		added []uuid.UUID
		prev  = make(map[uuid.UUID]*model.Chunk, len(batch))
	)
	fail := func(err error) ([]*model.Chunk, error) {
		undo.rollback(ctx, s.d.Logger, "chunk bulk upsert")
		return nil, err
	}

	for _, c := range batch {
		old, err := s.d.Chunks.Get(ctx, c.ID)
		switch {
		case errors.Is(err, model.ErrNotFound):
			if err := s.d.Chunks.Add(ctx, c); err != nil {
				return fail(err)
			}
			undo.push(func(ctx context.Context) error {
				_, err := s.d.Chunks.Delete(ctx, c.ID)
				return err
			})
			added = append(added, c.ID)
		case err != nil:
			return fail(err)
		case old.LibraryID != libraryID || old.DocumentID != documentID:
			return fail(model.Validationf("chunk %s belongs to document %s in library %s", c.ID, old.DocumentID, old.LibraryID))
		default:
			if err := s.d.Chunks.UpdateOnVersion(ctx, c, old.Version); err != nil {
				return fail(err)
			}
			undo.push(func(ctx context.Context) error {
				return s.d.Chunks.UpdateOnVersion(ctx, old.Clone(), c.Version)
			})
			prev[c.ID] = old
		}
	}

	if len(added) > 0 {
		if err := s.d.linkChunks(ctx, documentID, added...); err != nil {
			return fail(err)
		}
		undo.push(func(ctx context.Context) error {
			return s.d.unlinkChunk(ctx, documentID, added...)
		})
	}

	for _, c := range batch {
		old := prev[c.ID]
		if !c.HasEmbedding() {
			if old != nil && old.HasEmbedding() {
				idx.Remove(c.ID)
				undo.push(restoreIndexStep(idx, old))
			}
			continue
		}
		if err := idx.Update(c.ID, c.Embedding); err != nil {
			return fail(translateError(err))
		}
		if old != nil && old.HasEmbedding() {
			undo.push(restoreIndexStep(idx, old))
		} else {
			undo.push(removeFromIndexStep(idx, c.ID))
		}
	}

	s.d.Logger.DebugContext(ctx, "chunks upserted",
		"library_id", libraryID,
		"document_id", documentID,
		"chunks", len(batch),
		"added", len(added),
	)
	return batch, nil
}

// Delete removes the chunk from its document, the index and the store.
// Deleting an unknown chunk, or one that belongs to another library, is a
// no-op.
func (s *ChunkService) Delete(ctx context.Context, libraryID, chunkID uuid.UUID) error {
	start := time.Now()
	err := s.delete(ctx, libraryID, chunkID)
	s.d.Observer.RecordDelete(time.Since(start), err)
	logFailure(ctx, s.d.Logger, "chunk delete", err, "chunk_id", chunkID)
	return err
}

func (s *ChunkService) delete(ctx context.Context, libraryID, chunkID uuid.UUID) error {
	if _, err := s.Get(ctx, libraryID, chunkID); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}

	unlock, err := s.d.lockLibrary(ctx, libraryID)
	if err != nil {
		return err
	}
	defer unlock()

	// The chunk may have been removed or moved while waiting for the lock.
	c, err := s.Get(ctx, libraryID, chunkID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}

	// The document is updated first: its version check is the step that
	// can fail, and until it succeeds nothing else has changed.
	if err := s.d.unlinkChunk(ctx, c.DocumentID, c.ID); err != nil {
		return err
	}

	if idx, ok := s.d.Indexes.Get(libraryID); ok {
		idx.Remove(c.ID)
	}

	if _, err := s.d.Chunks.Delete(ctx, c.ID); err != nil {
		var undo undoLog
		undo.push(func(ctx context.Context) error {
			return s.d.linkChunks(ctx, c.DocumentID, c.ID)
		})
		if idx, ok := s.d.Indexes.Get(libraryID); ok && c.HasEmbedding() {
			undo.push(restoreIndexStep(idx, c))
		}
		undo.rollback(ctx, s.d.Logger, "chunk delete")
		return err
	}

	s.d.Logger.DebugContext(ctx, "chunk deleted", "chunk_id", chunkID, "document_id", c.DocumentID)
	return nil
}

// Get returns the chunk if it belongs to the library.
func (s *ChunkService) Get(ctx context.Context, libraryID, chunkID uuid.UUID) (*model.Chunk, error) {
	c, err := s.d.Chunks.Get(ctx, chunkID)
	if err != nil {
		return nil, err
	}
	if c.LibraryID != libraryID {
		return nil, model.NotFound(store.KindChunk, chunkID)
	}
	return c, nil
}

// ListByDocument pages through a document's chunks in insertion order.
// A zero limit selects store.DefaultLimit.
func (s *ChunkService) ListByDocument(ctx context.Context, libraryID, documentID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	if limit < 0 || limit > store.MaxLimit {
		return nil, model.Validationf("limit must be in [0, %d], got %d", store.MaxLimit, limit)
	}
	if offset < 0 {
		return nil, model.Validationf("offset must be >= 0, got %d", offset)
	}
	if limit == 0 {
		limit = store.DefaultLimit
	}

	doc, err := s.d.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.LibraryID != libraryID {
		return nil, model.NotFound(store.KindDocument, documentID)
	}
	return s.d.Chunks.ListByDocument(ctx, documentID, limit, offset)
}

// linkChunks appends ids missing from the document's chunk list. The
// document is re-read so the version check only fails on a writer that
// bypassed the library lock.
func (d *Deps) linkChunks(ctx context.Context, documentID uuid.UUID, ids ...uuid.UUID) error {
	doc, err := d.Documents.Get(ctx, documentID)
	if err != nil {
		return err
	}
	changed := false
	for _, id := range ids {
		if !doc.HasChunk(id) {
			doc.ChunkIDs = append(doc.ChunkIDs, id)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.Documents.UpdateOnVersion(ctx, doc, doc.Version)
}

// unlinkChunk drops ids from the document's chunk list. A missing document
// is ignored.
func (d *Deps) unlinkChunk(ctx context.Context, documentID uuid.UUID, ids ...uuid.UUID) error {
	doc, err := d.Documents.Get(ctx, documentID)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	changed := false
	for _, id := range ids {
		if doc.RemoveChunk(id) {
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return d.Documents.UpdateOnVersion(ctx, doc, doc.Version)
}

func restoreIndexStep(idx index.Index, old *model.Chunk) func(ctx context.Context) error {
	vec := old.Embedding
	return func(context.Context) error {
		return idx.Update(old.ID, vec)
	}
}
