// Package store defines the persistence contracts used by the services.
//
// Three record stores back a database: libraries, documents and chunks.
// Every mutating operation is atomic with respect to its own optimistic
// version check, and every entity handed out is a deep copy, so callers
// can never reach store-internal state through a returned value.
//
// Backends:
//
//   - memory: maps guarded by a mutex (default)
//   - badgerstore: Badger in-memory mode, msgpack encoded records
//   - sqlite: modernc SQLite
//
// The storetest package holds the conformance suite every backend runs.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
)

const (
	// DefaultLimit is the page size used when a list call passes no limit.
	DefaultLimit = 100

	// MaxLimit bounds the page size of a single list call.
	MaxLimit = 1000
)

// SortField selects the timestamp documents are ordered by.
type SortField string

const (
	SortByCreatedAt SortField = "created_at"
	SortByUpdatedAt SortField = "updated_at"
)

// SortOrder is the direction of a document listing.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ListOptions filters, sorts and paginates a document listing.
type ListOptions struct {
	Limit  int
	Offset int

	// HasTag keeps documents whose metadata carries the tag.
	HasTag string

	// CreatedAfter keeps documents created strictly after the instant.
	CreatedAfter time.Time

	SortBy SortField
	Order  SortOrder
}

// WithDefaults returns a copy of o with zero fields replaced by defaults.
func (o ListOptions) WithDefaults() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	if o.SortBy == "" {
		o.SortBy = SortByUpdatedAt
	}
	if o.Order == "" {
		o.Order = OrderDesc
	}
	return o
}

// Validate rejects out of range pagination and unknown sort settings.
func (o ListOptions) Validate() error {
	if o.Limit < 0 || o.Limit > MaxLimit {
		return model.Validationf("limit must be in [0, %d], got %d", MaxLimit, o.Limit)
	}
	if o.Offset < 0 {
		return model.Validationf("offset must be >= 0, got %d", o.Offset)
	}
	switch o.SortBy {
	case "", SortByCreatedAt, SortByUpdatedAt:
	default:
		return model.Validationf("unknown sort field %q", o.SortBy)
	}
	switch o.Order {
	case "", OrderAsc, OrderDesc:
	default:
		return model.Validationf("unknown sort order %q", o.Order)
	}
	return nil
}

// Match reports whether doc passes the tag and creation time filters.
func (o ListOptions) Match(doc *model.Document) bool {
	if o.HasTag != "" && !doc.Metadata.HasTag(o.HasTag) {
		return false
	}
	if !o.CreatedAfter.IsZero() && !doc.CreatedAt.After(o.CreatedAfter) {
		return false
	}
	return true
}

// Key returns the timestamp doc is sorted by.
func (o ListOptions) Key(doc *model.Document) time.Time {
	if o.SortBy == SortByCreatedAt {
		return doc.CreatedAt
	}
	return doc.UpdatedAt
}

// Page clamps offset and limit to n items and returns the half-open range.
func Page(n, offset, limit int) (int, int) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset > n {
		offset = n
	}
	end := offset + limit
	if end > n || end < offset {
		end = n
	}
	return offset, end
}

// LibraryStore persists libraries.
type LibraryStore interface {
	// Add stores a new library with version 1 and fresh timestamps, which
	// are written back into lib.
	Add(ctx context.Context, lib *model.Library) error

	// Get returns a copy of the library or a wrapped model.ErrNotFound.
	Get(ctx context.Context, id uuid.UUID) (*model.Library, error)

	// List returns all libraries in insertion order.
	List(ctx context.Context) ([]*model.Library, error)

	// UpdateOnVersion replaces the stored library if its version equals
	// expected. On success lib carries the new version and update time.
	UpdateOnVersion(ctx context.Context, lib *model.Library, expected int64) error

	// Delete removes the library and reports whether it existed.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// DocumentStore persists documents.
type DocumentStore interface {
	Add(ctx context.Context, doc *model.Document) error
	Get(ctx context.Context, id uuid.UUID) (*model.Document, error)

	// ListByLibrary filters, sorts and paginates the library's documents.
	// Documents with equal sort keys keep their insertion order.
	ListByLibrary(ctx context.Context, libraryID uuid.UUID, opts ListOptions) ([]*model.Document, error)

	// UpdateOnVersion replaces the stored document if its version equals
	// expected, moving it to another library when LibraryID changed.
	UpdateOnVersion(ctx context.Context, doc *model.Document, expected int64) error

	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}

// ChunkStore persists chunks.
type ChunkStore interface {
	Add(ctx context.Context, chunk *model.Chunk) error
	Get(ctx context.Context, id uuid.UUID) (*model.Chunk, error)

	// ListByLibrary pages through the library's chunks in insertion order.
	ListByLibrary(ctx context.Context, libraryID uuid.UUID, limit, offset int) ([]*model.Chunk, error)

	// ListByDocument pages through the document's chunks in insertion order.
	ListByDocument(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*model.Chunk, error)

	// UpdateOnVersion replaces the stored chunk if its version equals
	// expected, moving it between libraries or documents when those changed.
	UpdateOnVersion(ctx context.Context, chunk *model.Chunk, expected int64) error

	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// DeleteByDocument removes every chunk of the document and returns
	// how many were removed.
	DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int, error)
}

// Backend bundles the three stores of one storage engine.
type Backend interface {
	Libraries() LibraryStore
	Documents() DocumentStore
	Chunks() ChunkStore
	Close() error
}

// Kind names used in store errors.
const (
	KindLibrary  = "library"
	KindDocument = "document"
	KindChunk    = "chunk"
)

// AlreadyExists returns a conflict error for an Add of a known id.
func AlreadyExists(kind string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s already exists", model.ErrConflict, kind, id)
}

// Now returns the current time in UTC without a monotonic reading, so
// stored timestamps compare equal after an encoding round trip.
func Now() time.Time {
	return time.Now().UTC().Round(0)
}
