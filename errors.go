package vecdb

import (
	"github.com/hupe1980/vecdb/model"
)

// Error kinds. Every error returned by a DB operation that falls into one
// of these categories wraps the matching sentinel, so callers classify
// errors with errors.Is.
var (
	// ErrNotFound is returned when a referenced library, document or chunk
	// does not exist.
	ErrNotFound = model.ErrNotFound

	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = model.ErrConflict

	// ErrValidation is returned for malformed input, including embeddings
	// of the wrong dimension.
	ErrValidation = model.ErrValidation
)

// ErrDimensionMismatch indicates a vector whose length differs from the
// library's embedding dimension. It wraps ErrValidation.
type ErrDimensionMismatch = model.DimensionMismatchError

// ErrVersionConflict carries the entity of a failed version check. It
// wraps ErrConflict.
type ErrVersionConflict = model.ConflictError
