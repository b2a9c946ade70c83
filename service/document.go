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

// DocumentService manages documents and the chunks they own.
type DocumentService struct {
	d *Deps
}

// Create stores an empty document in the library.
func (s *DocumentService) Create(ctx context.Context, libraryID uuid.UUID, md model.DocumentMetadata) (*model.Document, error) {
	if _, err := s.d.Libraries.Get(ctx, libraryID); err != nil {
		return nil, err
	}

	unlock, err := s.d.lockLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc := &model.Document{
		ID:        model.NewID(),
		LibraryID: libraryID,
		Metadata:  md.Clone(),
	}
	if err := s.d.Documents.Add(ctx, doc); err != nil {
		logFailure(ctx, s.d.Logger, "document create", err, "library_id", libraryID)
		return nil, err
	}

	s.d.Logger.DebugContext(ctx, "document created", "library_id", libraryID, "document_id", doc.ID)
	return doc, nil
}

// CreateWithChunks stores a new document together with its chunks and
// indexes their embeddings. Chunks are force-assigned to the library and
// the new document. Every chunk is validated before anything is written;
// if a later step fails, the document and the chunks written so far are
// removed again.
func (s *DocumentService) CreateWithChunks(ctx context.Context, libraryID uuid.UUID, chunks []*model.Chunk, md model.DocumentMetadata) (*model.Document, error) {
	start := time.Now()
	doc, err := s.createWithChunks(ctx, libraryID, chunks, md)
	failed := 0
	if err != nil {
		failed = len(chunks)
	}
	s.d.Observer.RecordBulkUpsert(len(chunks), failed, time.Since(start))
	logFailure(ctx, s.d.Logger, "document create with chunks", err, "library_id", libraryID)
	return doc, err
}

func (s *DocumentService) createWithChunks(ctx context.Context, libraryID uuid.UUID, chunks []*model.Chunk, md model.DocumentMetadata) (*model.Document, error) {
	lib, err := s.d.Libraries.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}

	doc := &model.Document{
		ID:        model.NewID(),
		LibraryID: libraryID,
		Metadata:  md.Clone(),
	}

	batch, err := prepareChunks(lib, doc.ID, chunks)
	if err != nil {
		return nil, err
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

	var undo undoLog
	fail := func(err error) (*model.Document, error) {
		undo.rollback(ctx, s.d.Logger, "document create with chunks")
		return nil, err
	}

	if err := s.d.Documents.Add(ctx, doc); err != nil {
		return nil, err
	}
	undo.push(func(ctx context.Context) error {
		_, err := s.d.Documents.Delete(ctx, doc.ID)
		return err
	})

	for _, c := range batch {
		if err := s.d.Chunks.Add(ctx, c); err != nil {
			return fail(err)
		}
		undo.push(s.deleteChunkStep(c.ID))
		doc.ChunkIDs = append(doc.ChunkIDs, c.ID)
	}

	if err := s.d.Documents.UpdateOnVersion(ctx, doc, 1); err != nil {
		return fail(err)
	}

	for _, c := range batch {
		if !c.HasEmbedding() {
			continue
		}
		if err := idx.Add(c.ID, c.Embedding); err != nil {
			return fail(translateError(err))
		}
		undo.push(removeFromIndexStep(idx, c.ID))
	}

	s.d.Logger.DebugContext(ctx, "document created",
		"library_id", libraryID,
		"document_id", doc.ID,
		"chunks", len(batch),
	)
	return doc, nil
}

// Get returns the document if it belongs to the library.
func (s *DocumentService) Get(ctx context.Context, libraryID, documentID uuid.UUID) (*model.Document, error) {
	doc, err := s.d.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc.LibraryID != libraryID {
		return nil, model.NotFound(store.KindDocument, documentID)
	}
	return doc, nil
}

// List filters, sorts and paginates the library's documents.
func (s *DocumentService) List(ctx context.Context, libraryID uuid.UUID, opts store.ListOptions) ([]*model.Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if _, err := s.d.Libraries.Get(ctx, libraryID); err != nil {
		return nil, err
	}
	return s.d.Documents.ListByLibrary(ctx, libraryID, opts)
}

// UpdateMetadata replaces the document's metadata.
func (s *DocumentService) UpdateMetadata(ctx context.Context, libraryID, documentID uuid.UUID, md model.DocumentMetadata, optFns ...func(o *WriteOptions)) (*model.Document, error) {
	opts := applyWriteOptions(optFns)

	doc, err := s.Get(ctx, libraryID, documentID)
	if err != nil {
		return nil, err
	}
	expected := opts.expected(doc.Version)

	unlock, err := s.d.lockLibrary(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	doc.Metadata = md.Clone()
	if err := s.d.Documents.UpdateOnVersion(ctx, doc, expected); err != nil {
		logFailure(ctx, s.d.Logger, "document update metadata", err, "document_id", documentID)
		return nil, err
	}

	s.d.Logger.DebugContext(ctx, "document metadata updated", "document_id", documentID, "version", doc.Version)
	return doc, nil
}

// Delete removes the document, its chunks and their index entries.
// Deleting an unknown document, or one that belongs to another library,
// is a no-op.
func (s *DocumentService) Delete(ctx context.Context, libraryID, documentID uuid.UUID) error {
	start := time.Now()
	err := s.delete(ctx, libraryID, documentID)
	s.d.Observer.RecordDelete(time.Since(start), err)
	logFailure(ctx, s.d.Logger, "document delete", err, "document_id", documentID)
	return err
}

func (s *DocumentService) delete(ctx context.Context, libraryID, documentID uuid.UUID) error {
	if _, err := s.Get(ctx, libraryID, documentID); err != nil {
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

	chunks, err := s.d.allChunks(ctx, documentID)
	if err != nil {
		return err
	}
	if idx, ok := s.d.Indexes.Get(libraryID); ok {
		for _, c := range chunks {
			if c.HasEmbedding() {
				idx.Remove(c.ID)
			}
		}
	}

	if _, err := s.d.Chunks.DeleteByDocument(ctx, documentID); err != nil {
		return err
	}
	if _, err := s.d.Documents.Delete(ctx, documentID); err != nil {
		return err
	}

	s.d.Logger.DebugContext(ctx, "document deleted", "document_id", documentID, "chunks", len(chunks))
	return nil
}

// Move transfers the document and all of its chunks from src to dst.
//
// Both libraries' write locks are taken in a fixed global order, so
// concurrent moves in opposite directions cannot deadlock. Every chunk's
// embedding is checked against dst's dimension before anything changes.
// If a versioned write fails midway, the chunks already moved are moved
// back and the conflict is returned.
func (s *DocumentService) Move(ctx context.Context, documentID, src, dst uuid.UUID) (*model.Document, error) {
	start := time.Now()
	doc, n, err := s.move(ctx, documentID, src, dst)
	s.d.Observer.RecordMove(n, time.Since(start), err)
	logFailure(ctx, s.d.Logger, "document move", err, "document_id", documentID, "src", src, "dst", dst)
	return doc, err
}

func (s *DocumentService) move(ctx context.Context, documentID, src, dst uuid.UUID) (*model.Document, int, error) {
	if src == dst {
		return nil, 0, model.Validationf("source and destination library are the same")
	}

	if _, err := s.d.Libraries.Get(ctx, src); err != nil {
		return nil, 0, err
	}
	dstLib, err := s.d.Libraries.Get(ctx, dst)
	if err != nil {
		return nil, 0, err
	}

	unlock, err := s.d.Locks.LockPair(ctx, src, dst)
	if err != nil {
		return nil, 0, err
	}
	defer unlock()

	// Either library may have been deleted while waiting for the locks.
	srcIdx, err := s.d.liveIndex(ctx, src)
	if err != nil {
		return nil, 0, err
	}
	dstIdx, err := s.d.liveIndex(ctx, dst)
	if err != nil {
		return nil, 0, err
	}

	doc, err := s.d.Documents.Get(ctx, documentID)
	if err != nil {
		return nil, 0, err
	}
	if doc.LibraryID != src {
		return nil, 0, model.NotFound(store.KindDocument, documentID)
	}

	chunks, err := s.d.allChunks(ctx, documentID)
	if err != nil {
		return nil, 0, err
	}
	for _, c := range chunks {
		if c.HasEmbedding() {
			if err := model.CheckDimension(dstLib.EmbeddingDim, c.Embedding); err != nil {
				return nil, 0, err
			}
		}
	}

	var undo undoLog
	fail := func(err error) (*model.Document, int, error) {
		undo.rollback(ctx, s.d.Logger, "document move")
		return nil, 0, err
	}

	for _, c := range chunks {
		c.LibraryID = dst
		if err := s.d.Chunks.UpdateOnVersion(ctx, c, c.Version); err != nil {
			return fail(err)
		}
		undo.push(func(ctx context.Context) error {
			c.LibraryID = src
			return s.d.Chunks.UpdateOnVersion(ctx, c, c.Version)
		})

		if !c.HasEmbedding() {
			continue
		}
		srcIdx.Remove(c.ID)
		if err := dstIdx.Add(c.ID, c.Embedding); err != nil {
			if rerr := srcIdx.Add(c.ID, c.Embedding); rerr != nil {
				s.d.Logger.ErrorContext(ctx, "compensation failed", "op", "document move", "chunk_id", c.ID, "error", rerr)
			}
			return fail(translateError(err))
		}
		undo.push(func(context.Context) error {
			dstIdx.Remove(c.ID)
			return srcIdx.Add(c.ID, c.Embedding)
		})
	}

	doc.LibraryID = dst
	if err := s.d.Documents.UpdateOnVersion(ctx, doc, doc.Version); err != nil {
		return fail(err)
	}

	s.d.Logger.InfoContext(ctx, "document moved",
		"document_id", documentID,
		"src", src,
		"dst", dst,
		"chunks", len(chunks),
	)
	return doc, len(chunks), nil
}

// allChunks reads every chunk of a document, page by page.
func (d *Deps) allChunks(ctx context.Context, documentID uuid.UUID) ([]*model.Chunk, error) {
	pageSize := d.listPageSize()
	var out []*model.Chunk
	for offset := 0; ; offset += pageSize {
		page, err := d.Chunks.ListByDocument(ctx, documentID, pageSize, offset)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < pageSize {
			return out, nil
		}
	}
}

// prepareChunks validates a batch against the library and returns copies
// assigned to the library and document, with ids filled in.
func prepareChunks(lib *model.Library, documentID uuid.UUID, chunks []*model.Chunk) ([]*model.Chunk, error) {
	out := make([]*model.Chunk, 0, len(chunks))
	seen := make(map[uuid.UUID]struct{}, len(chunks))
	for i, in := range chunks {
		if in == nil {
			return nil, model.Validationf("chunk %d is nil", i)
		}
		c := in.Clone()
		if c.ID == uuid.Nil {
			c.ID = model.NewID()
		}
		if _, dup := seen[c.ID]; dup {
			return nil, model.Validationf("duplicate chunk id %s in batch", c.ID)
		}
		seen[c.ID] = struct{}{}
		c.LibraryID = lib.ID
		c.DocumentID = documentID
		if err := c.Validate(lib.EmbeddingDim); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *DocumentService) deleteChunkStep(id uuid.UUID) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		_, err := s.d.Chunks.Delete(ctx, id)
		return err
	}
}

func removeFromIndexStep(idx index.Index, id uuid.UUID) func(ctx context.Context) error {
	return func(context.Context) error {
		idx.Remove(id)
		return nil
	}
}
