package lsh

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/index/indextest"
	"github.com/hupe1980/vecdb/internal/bitmap"
	"github.com/hupe1980/vecdb/testutil"
)

func newTestLSH(t *testing.T, dim int, optFns ...func(o *Options)) *LSH {
	t.Helper()
	optFns = append([]func(o *Options){func(o *Options) {
		o.Seed = 42
		o.Seeded = true
	}}, optFns...)
	l, err := New(dim, optFns...)
	require.NoError(t, err)
	return l
}

func TestConformance(t *testing.T) {
	indextest.Run(t, func(t *testing.T, dim int) index.Index {
		return newTestLSH(t, dim)
	})
}

func TestLSH(t *testing.T) {
	t.Run("Factory", func(t *testing.T) {
		idx, err := index.Create(index.LSHConfig(3, 5), 4, index.WithSeed(1))
		require.NoError(t, err)
		require.Equal(t, index.TypeLSH, idx.Type())

		l := idx.(*LSH)
		assert.Equal(t, 3, l.Options().NumTables)
		assert.Equal(t, 5, l.Options().HyperplanesPerTable)
		assert.Equal(t, 4, l.Dimension())
	})

	t.Run("InvalidDimension", func(t *testing.T) {
		_, err := New(0)
		assert.ErrorIs(t, err, index.ErrInvalidParameter)
	})

	t.Run("ClampsParameters", func(t *testing.T) {
		l := newTestLSH(t, 2, func(o *Options) {
			o.NumTables = 0
			o.HyperplanesPerTable = -3
		})
		assert.Equal(t, 1, l.Options().NumTables)
		assert.Equal(t, 1, l.Options().HyperplanesPerTable)
	})

	t.Run("FallbackTopUp", func(t *testing.T) {
		l := newTestLSH(t, 4, func(o *Options) {
			o.NumTables = 1
			o.HyperplanesPerTable = 1
		})
		ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
		require.NoError(t, l.Add(ids[0], []float32{1, 0, 0, 0}))
		require.NoError(t, l.Add(ids[1], []float32{0, 1, 0, 0}))
		require.NoError(t, l.Add(ids[2], []float32{0, 0, -1, 0}))

		res, err := l.Search([]float32{1, 0, 0, 0}, 3, distance.MetricCosine)
		require.NoError(t, err)
		require.Len(t, res, 3)
		got := []uuid.UUID{res[0].ID, res[1].ID, res[2].ID}
		assert.ElementsMatch(t, ids, got)
		assert.Equal(t, ids[0], res[0].ID)
	})

	t.Run("ZeroVectors", func(t *testing.T) {
		l := newTestLSH(t, 2)
		id := uuid.New()
		require.NoError(t, l.Add(id, []float32{1, 0}))
		require.NoError(t, l.Add(id, []float32{0, 0}))
		assert.Equal(t, 0, l.Len())
		assert.Equal(t, 0, l.Stats().Buckets)

		res, err := l.Search([]float32{0, 0}, 1, distance.MetricCosine)
		require.NoError(t, err)
		assert.Empty(t, res)
	})

	t.Run("NoStaleBuckets", func(t *testing.T) {
		l := newTestLSH(t, 8)
		rng := testutil.NewRNG(3)
		id := uuid.New()
		for _, v := range rng.UnitVectors(20, 8) {
			require.NoError(t, l.Update(id, v))
		}
		assert.Equal(t, 1, l.Len())
		assert.Equal(t, l.Options().NumTables, l.Stats().Buckets)

		l.Remove(id)
		assert.Equal(t, 0, l.Stats().Buckets)
	})

	t.Run("Deterministic", func(t *testing.T) {
		rng := testutil.NewRNG(8)
		vecs := rng.UnitVectors(200, 16)
		ids := rng.IDs(200)
		query := rng.UnitVector(16)

		run := func() []index.SearchResult {
			l := newTestLSH(t, 16, func(o *Options) { o.HyperplanesPerTable = 6 })
			for i := range vecs {
				require.NoError(t, l.Add(ids[i], vecs[i]))
			}
			res, err := l.Search(query, 10, distance.MetricCosine)
			require.NoError(t, err)
			return res
		}
		assert.Equal(t, run(), run())
	})

	t.Run("CandidateCap", func(t *testing.T) {
		// A single one-bit table puts roughly half the vectors into the
		// query's bucket, far more than Oversample*k.
		l := newTestLSH(t, 8, func(o *Options) {
			o.NumTables = 1
			o.HyperplanesPerTable = 1
		})
		rng := testutil.NewRNG(12)
		vecs := rng.UnitVectors(300, 8)
		ids := rng.IDs(300)
		for i := range vecs {
			require.NoError(t, l.Add(ids[i], vecs[i]))
		}

		res, err := l.Search(vecs[0], 2, distance.MetricCosine)
		require.NoError(t, err)
		assert.Len(t, res, 2)
	})

	t.Run("Recall", func(t *testing.T) {
		rng := testutil.NewRNG(4711)
		const n, dim, k = 1000, 32, 10
		vecs := rng.ClusteredVectors(n, dim, 20, 0.05)
		ids := rng.IDs(n)

		l := newTestLSH(t, dim, func(o *Options) { o.HyperplanesPerTable = 8 })
		items := make([]index.Item, n)
		for i := range vecs {
			items[i] = index.Item{ID: ids[i], Vector: vecs[i]}
		}
		require.NoError(t, l.Rebuild(items))
		assert.Equal(t, n, l.Len())

		var total float64
		const queries = 20
		for q := 0; q < queries; q++ {
			query := vecs[rng.Intn(n)]
			res, err := l.Search(query, k, distance.MetricCosine)
			require.NoError(t, err)

			got := make([]uuid.UUID, len(res))
			for i, r := range res {
				got[i] = r.ID
			}
			total += testutil.ComputeRecall(testutil.ExactTopK(ids, vecs, query, k), got)
		}
		assert.GreaterOrEqual(t, total/queries, 0.7)
	})
}

func TestMostColliding(t *testing.T) {
	hits := []*bitmap.Bitmap{bitmap.Of(1, 2, 3), bitmap.Of(3, 4), bitmap.Of(3, 4, 5)}

	got := mostColliding([]uint32{1, 2, 3, 4, 5}, hits, 2)
	assert.Equal(t, []uint32{3, 4}, got)
}
