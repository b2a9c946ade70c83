// Package vecdb provides an embedded multi-library vector database for Go.
//
// A DB stores text chunks with optional embedding vectors, grouped under
// documents, which are grouped under libraries. Every library has a fixed
// embedding dimension and its own nearest-neighbor index:
//
//   - Flat: exact search by exhaustive comparison
//   - LSH: random hyperplane locality-sensitive hashing
//   - IVF: inverted file over spherical k-means centroids
//
// Records live in a pluggable store (in-memory, Badger or SQLite); indexes
// live in memory and are rebuilt from the stored chunks on Bootstrap.
//
// # Quick Start
//
//	ctx := context.Background()
//	db, _ := vecdb.New()
//	defer db.Close()
//
//	lib, _ := db.NewLibrary("notes", 4).IVF(16, 4).Create(ctx)
//	doc, _ := db.Documents().Create(ctx, lib.ID, model.DocumentMetadata{Title: "intro"})
//
//	_, _ = db.Upsert(ctx, &model.Chunk{
//	    LibraryID:  lib.ID,
//	    DocumentID: doc.ID,
//	    Text:       "hello",
//	    Embedding:  []float32{1, 0, 0, 0},
//	})
//
//	hits, _ := db.Search(lib.ID, []float32{1, 0, 0, 0}).KNN(5).Execute(ctx)
//
// # Consistency
//
// Writes to one library are serialized by a per-library read-write lock
// and checked with optimistic versions in the store; a failed check
// returns ErrConflict. Searches take the read lock only to fetch the
// current index and then run unlocked, so they never block writers and
// may observe a slightly stale index. Changing a library's index
// configuration builds the new index aside and swaps it in complete.
//
// # Errors
//
// Errors wrap one of ErrNotFound, ErrConflict or ErrValidation. A vector
// of the wrong length yields an *ErrDimensionMismatch.
package vecdb
