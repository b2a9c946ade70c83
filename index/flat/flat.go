// Package flat provides an implementation of a flat index for vector storage and search.
package flat

import (
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/idmap"
)

// Compile-time check to ensure Flat satisfies the index interface.
var _ index.Index = (*Flat)(nil)

func init() {
	index.RegisterFactory(index.TypeFlat, func(_ index.Config, dim int, _ index.Options) (index.Index, error) {
		return New(func(o *Options) {
			o.Dimension = dim
		}), nil
	})
}

// Options contains configuration options for the flat index.
type Options struct {
	// Dimension is the fixed vector dimensionality for this index.
	// If > 0 it is enforced for all inserts/updates/searches.
	Dimension int
}

// DefaultOptions contains the default configuration options for the flat index.
var DefaultOptions = Options{
	Dimension: 0,
}

// Flat is an exact index: search scores the query against every stored vector.
//
// Stored vectors are never mutated after insertion, so search copies the
// slice headers under the read lock and scores without holding it.
type Flat struct {
	mu      sync.RWMutex
	vectors *idmap.Map[[]float32]
	opts    Options
}

// New creates a new empty flat index.
func New(optFns ...func(o *Options)) *Flat {
	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Flat{
		vectors: idmap.New[[]float32](0),
		opts:    opts,
	}
}

// Type returns index.TypeFlat.
func (f *Flat) Type() index.Type { return index.TypeFlat }

// Dimension returns the configured dimensionality.
func (f *Flat) Dimension() int { return f.opts.Dimension }

// Add stores vec under id, overwriting any previous vector.
func (f *Flat) Add(id uuid.UUID, vec []float32) error {
	if err := index.CheckDimension(f.opts.Dimension, vec); err != nil {
		return err
	}
	vec = slices.Clone(vec)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors.Put(id, vec)
	return nil
}

// Update is identical to Add.
func (f *Flat) Update(id uuid.UUID, vec []float32) error {
	return f.Add(id, vec)
}

// Remove discards the vector stored under id.
func (f *Flat) Remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.vectors.Delete(id)
}

// Search returns the k most similar stored vectors.
func (f *Flat) Search(query []float32, k int, metric distance.Metric) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.CheckDimension(f.opts.Dimension, query); err != nil {
		return nil, err
	}

	f.mu.RLock()
	candidates := make([]index.Item, 0, f.vectors.Len())
	for _, e := range f.vectors.All() {
		candidates = append(candidates, index.Item{ID: e.ID, Vector: e.Value})
	}
	f.mu.RUnlock()

	return index.Rank(query, candidates, k, metric)
}

// Rebuild atomically replaces the entire vector set.
func (f *Flat) Rebuild(items []index.Item) error {
	if err := index.CheckItems(f.opts.Dimension, items); err != nil {
		return err
	}

	vectors := idmap.New[[]float32](len(items))
	for _, it := range items {
		vectors.Put(it.ID, slices.Clone(it.Vector))
	}

	f.mu.Lock()
	f.vectors = vectors
	f.mu.Unlock()
	return nil
}

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.vectors.Len()
}

// Stats returns structural statistics.
func (f *Flat) Stats() index.Stats {
	return index.Stats{Type: index.TypeFlat, Vectors: f.Len()}
}
