// Package index provides interfaces and types for vector search indexes.
package index

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
)

var (
	// ErrUnsupportedConfig is returned for an unknown index configuration variant.
	ErrUnsupportedConfig = errors.New("unsupported index configuration")

	// ErrInvalidParameter is returned when an index parameter is out of range.
	ErrInvalidParameter = errors.New("invalid index parameter")

	// ErrInvalidK is returned when k is not positive.
	ErrInvalidK = errors.New("k must be positive")
)

// ErrDimensionMismatch is a named error type for dimension mismatch
type ErrDimensionMismatch struct {
	Expected int // Expected dimensions
	Actual   int // Actual dimensions
}

// Error returns the error message for dimension mismatch
func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Item is a (chunk id, vector) pair fed to Rebuild.
type Item struct {
	ID     uuid.UUID
	Vector []float32
}

// SearchResult represents a search result.
type SearchResult struct {
	// ID is the chunk identifier of the search result.
	ID uuid.UUID

	// Score is the similarity between the query and the stored vector.
	// Higher is more similar.
	Score float64
}

// Stats describes the shape of an index.
type Stats struct {
	Type    Type
	Vectors int
	// Buckets is the number of non-empty LSH buckets summed over all tables.
	Buckets int
	// Centroids is the number of IVF centroids (0 before the first rebuild).
	Centroids int
	// Unassigned is the number of IVF vectors without a posting list.
	Unassigned int
}

// Index is a mutable mapping from chunk ids to vectors that supports
// nearest-neighbor search.
//
// Implementations must be safe for concurrent use. Add and Update have the
// same overwrite semantics; Remove of an unknown id is a no-op. Rebuild
// replaces the whole vector set atomically: concurrent searches observe
// either the old or the new set.
type Index interface {
	// Type returns the configuration variant of this index.
	Type() Type

	// Dimension returns the fixed vector dimensionality (0 = unchecked).
	Dimension() int

	// Add stores vec under id, replacing any previous vector.
	Add(id uuid.UUID, vec []float32) error

	// Update replaces the vector stored under id.
	Update(id uuid.UUID, vec []float32) error

	// Remove discards the vector stored under id.
	Remove(id uuid.UUID)

	// Search returns at most k results ordered by non-increasing score.
	Search(query []float32, k int, metric distance.Metric) ([]SearchResult, error)

	// Rebuild replaces the entire vector set.
	Rebuild(items []Item) error

	// Len returns the number of indexed vectors.
	Len() int

	// Stats returns structural statistics.
	Stats() Stats
}

// CheckDimension returns an *ErrDimensionMismatch if len(vec) != dim.
// A dim of 0 disables the check.
func CheckDimension(dim int, vec []float32) error {
	if dim > 0 && len(vec) != dim {
		return &ErrDimensionMismatch{Expected: dim, Actual: len(vec)}
	}
	return nil
}

// CheckItems validates the dimension of every item.
func CheckItems(dim int, items []Item) error {
	for _, it := range items {
		if err := CheckDimension(dim, it.Vector); err != nil {
			return fmt.Errorf("item %s: %w", it.ID, err)
		}
	}
	return nil
}
