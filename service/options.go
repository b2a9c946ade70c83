package service

import (
	"github.com/hupe1980/vecdb/store"
)

// WriteOptions tunes a single versioned write.
type WriteOptions struct {
	// ExpectedVersion, when positive, is the version the caller last
	// observed. The write fails with a conflict unless the stored entity
	// still carries it. Zero uses the version read at the start of the
	// operation.
	ExpectedVersion int64
}

// WithExpectedVersion makes a write conditional on the caller's version.
func WithExpectedVersion(v int64) func(o *WriteOptions) {
	return func(o *WriteOptions) {
		o.ExpectedVersion = v
	}
}

func applyWriteOptions(optFns []func(o *WriteOptions)) WriteOptions {
	var o WriteOptions
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}

// expected returns the caller's version if given, otherwise current.
func (o WriteOptions) expected(current int64) int64 {
	if o.ExpectedVersion > 0 {
		return o.ExpectedVersion
	}
	return current
}

// Services bundles the four services over one set of collaborators.
type Services struct {
	Libraries *LibraryService
	Documents *DocumentService
	Chunks    *ChunkService
	Search    *SearchService
}

// New builds the services. Nil collaborators other than the stores are
// replaced with defaults shared by all four services.
func New(deps Deps) *Services {
	d := deps.withDefaults()
	return &Services{
		Libraries: &LibraryService{d: d},
		Documents: &DocumentService{d: d},
		Chunks:    &ChunkService{d: d},
		Search:    &SearchService{d: d},
	}
}

// listPageSize bounds the rebuild page size by what a store list call
// accepts.
func (d *Deps) listPageSize() int {
	return min(d.PageSize, store.MaxLimit)
}
