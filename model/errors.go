package model

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when an optimistic version check fails.
	ErrConflict = errors.New("version conflict")

	// ErrValidation is returned for malformed input.
	ErrValidation = errors.New("validation failed")
)

// NotFound returns an ErrNotFound for the given entity kind and id.
func NotFound(kind string, id uuid.UUID) error {
	return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
}

// Validationf returns an ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// ConflictError reports a failed optimistic version check.
type ConflictError struct {
	Kind     string
	ID       uuid.UUID
	Expected int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("version conflict: %s %s was modified concurrently (expected version %d)", e.Kind, e.ID, e.Expected)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflict returns a *ConflictError.
func Conflict(kind string, id uuid.UUID, expected int64) error {
	return &ConflictError{Kind: kind, ID: id, Expected: expected}
}

// DimensionMismatchError indicates a vector whose length differs from the
// library's embedding dimension.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type DimensionMismatchError struct {
	Expected int
	Actual   int
	cause    error
}

// NewDimensionMismatch returns a *DimensionMismatchError with an optional cause.
func NewDimensionMismatch(expected, actual int, cause error) *DimensionMismatchError {
	return &DimensionMismatchError{Expected: expected, Actual: actual, cause: cause}
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Unwrap exposes the validation kind and the cause.
func (e *DimensionMismatchError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrValidation}
	}
	return []error{ErrValidation, e.cause}
}

// CheckDimension returns a *DimensionMismatchError if len(vec) != dim.
func CheckDimension(dim int, vec []float32) error {
	if len(vec) != dim {
		return NewDimensionMismatch(dim, len(vec), nil)
	}
	return nil
}
