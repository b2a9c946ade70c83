package index

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/distance"
)

// stubIndex records the options it was built with.
type stubIndex struct {
	typ  Type
	dim  int
	opts Options
}

func (s *stubIndex) Type() Type { return s.typ }
func (s *stubIndex) Dimension() int { return s.dim }
func (s *stubIndex) Add(uuid.UUID, []float32) error { return nil }
func (s *stubIndex) Update(uuid.UUID, []float32) error { return nil }
func (s *stubIndex) Remove(uuid.UUID) {}
func (s *stubIndex) Rebuild([]Item) error { return nil }
func (s *stubIndex) Len() int { return 0 }
func (s *stubIndex) Stats() Stats { return Stats{Type: s.typ} }
func (s *stubIndex) Search([]float32, int, distance.Metric) ([]SearchResult, error) {
	return nil, nil
}

var registerStub sync.Once

func useStubFactory() {
	registerStub.Do(func() {
		RegisterFactory(TypeFlat, func(cfg Config, dim int, opts Options) (Index, error) {
			return &stubIndex{typ: cfg.Type, dim: dim, opts: opts}, nil
		})
	})
}

func TestCreate(t *testing.T) {
	useStubFactory()

	idx, err := Create(Config{}, 4, WithSeed(7))
	require.NoError(t, err)
	stub := idx.(*stubIndex)
	assert.Equal(t, TypeFlat, stub.typ)
	assert.Equal(t, 4, stub.dim)
	assert.True(t, stub.opts.Seeded)
	assert.Equal(t, int64(7), stub.opts.Seed)

	_, err = Create(Config{Type: "annoy"}, 4)
	assert.ErrorIs(t, err, ErrUnsupportedConfig)

	_, err = Create(LSHConfig(100, 1), 4)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func TestRegistry(t *testing.T) {
	useStubFactory()

	r := NewRegistry(WithSeed(100))
	lib := uuid.New()

	_, ok := r.Get(lib)
	assert.False(t, ok)

	first, err := r.GetOrCreate(lib, FlatConfig(), 3)
	require.NoError(t, err)
	second, err := r.GetOrCreate(lib, FlatConfig(), 3)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int64(100), first.(*stubIndex).opts.Seed)
	assert.Equal(t, 1, r.Len())

	replacement, err := r.New(FlatConfig(), 3)
	require.NoError(t, err)
	assert.Equal(t, int64(101), replacement.(*stubIndex).opts.Seed)

	r.Swap(lib, replacement)
	got, ok := r.Get(lib)
	require.True(t, ok)
	assert.Same(t, replacement, got)

	r.Remove(lib)
	_, ok = r.Get(lib)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryUnseeded(t *testing.T) {
	useStubFactory()

	r := NewRegistry()
	idx, err := r.GetOrCreate(uuid.New(), FlatConfig(), 2)
	require.NoError(t, err)
	assert.False(t, idx.(*stubIndex).opts.Seeded)
}

func TestRegistryConcurrentGetOrCreate(t *testing.T) {
	useStubFactory()

	r := NewRegistry()
	lib := uuid.New()

	var wg sync.WaitGroup
	got := make([]Index, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			idx, err := r.GetOrCreate(lib, FlatConfig(), 2)
			assert.NoError(t, err)
			got[i] = idx
		}(i)
	}
	wg.Wait()

	for _, idx := range got {
		assert.Same(t, got[0], idx)
	}
}
