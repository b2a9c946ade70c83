package index

import (
	"sync"

	"github.com/google/uuid"
)

// Registry maps a library id to its live index.
//
// Creation is lazy: the first GetOrCreate for a library builds an empty
// index from the supplied configuration. Swap installs a freshly built
// index in one step, so readers see either the old or the new instance.
type Registry struct {
	mu      sync.Mutex
	indexes map[uuid.UUID]Index

	seed    int64
	seeded  bool
	created int64
}

// NewRegistry creates an empty registry. With WithSeed, every index it
// creates is seeded deterministically from the base seed and the creation
// order.
func NewRegistry(optFns ...func(o *Options)) *Registry {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Registry{
		indexes: make(map[uuid.UUID]Index),
		seed:    opts.Seed,
		seeded:  opts.Seeded,
	}
}

// New builds an unregistered index using the registry's seed policy.
// Rebuilds use it to prepare a replacement outside the map lock.
func (r *Registry) New(cfg Config, dim int) (Index, error) {
	r.mu.Lock()
	opts := r.nextOptionsLocked()
	r.mu.Unlock()
	return Create(cfg, dim, opts...)
}

// GetOrCreate returns the index for libraryID, creating an empty one from
// cfg if none exists.
func (r *Registry) GetOrCreate(libraryID uuid.UUID, cfg Config, dim int) (Index, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.indexes[libraryID]; ok {
		return idx, nil
	}

	idx, err := Create(cfg, dim, r.nextOptionsLocked()...)
	if err != nil {
		return nil, err
	}
	r.indexes[libraryID] = idx
	return idx, nil
}

// Get returns the index for libraryID, if any.
func (r *Registry) Get(libraryID uuid.UUID) (Index, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[libraryID]
	return idx, ok
}

// Swap installs idx as the index for libraryID, replacing any previous one.
func (r *Registry) Swap(libraryID uuid.UUID, idx Index) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexes[libraryID] = idx
}

// Remove discards the index for libraryID.
func (r *Registry) Remove(libraryID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.indexes, libraryID)
}

// Len returns the number of registered indexes.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.indexes)
}

func (r *Registry) nextOptionsLocked() []func(o *Options) {
	if !r.seeded {
		return nil
	}
	seed := r.seed + r.created
	r.created++
	return []func(o *Options){WithSeed(seed)}
}
