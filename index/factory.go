package index

import (
	"fmt"
	"sync"
)

// Options are passed to a Factory.
type Options struct {
	// Seed drives randomized structure (LSH hyperplanes, IVF sampling).
	// Ignored unless Seeded is true.
	Seed int64

	// Seeded reports whether Seed was set explicitly. Unseeded indexes draw
	// from a time-derived source.
	Seeded bool
}

// WithSeed makes index construction deterministic.
func WithSeed(seed int64) func(o *Options) {
	return func(o *Options) {
		o.Seed = seed
		o.Seeded = true
	}
}

// Factory constructs an index from a defaulted, validated configuration.
type Factory func(cfg Config, dim int, opts Options) (Index, error)

var (
	factoryMu sync.RWMutex
	factories = map[Type]Factory{}
)

// RegisterFactory registers the constructor for an index type.
//
// Index implementations should typically call this from an init() function.
func RegisterFactory(t Type, f Factory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[t] = f
}

// Create builds a new empty index for cfg.
//
// It applies defaults, validates the configuration and dispatches to the
// registered factory. An unregistered type yields ErrUnsupportedConfig.
func Create(cfg Config, dim int, optFns ...func(o *Options)) (Index, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	factoryMu.RLock()
	f, ok := factories[cfg.Type]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no factory registered for %q", ErrUnsupportedConfig, cfg.Type)
	}

	return f(cfg, dim, opts)
}
