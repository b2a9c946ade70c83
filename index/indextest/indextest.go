// Package indextest provides a conformance suite shared by every index
// implementation.
package indextest

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/testutil"
)

// Factory builds a fresh empty index of the given dimension.
type Factory func(t *testing.T, dim int) index.Index

// Run executes the conformance suite against indexes built by newIndex.
func Run(t *testing.T, newIndex Factory) {
	t.Run("EmptySearch", func(t *testing.T) {
		idx := newIndex(t, 4)
		res, err := idx.Search([]float32{1, 0, 0, 0}, 3, distance.MetricCosine)
		require.NoError(t, err)
		assert.Empty(t, res)
		assert.Equal(t, 0, idx.Len())
	})

	t.Run("RoundTrip", func(t *testing.T) {
		idx := newIndex(t, 4)
		id := uuid.New()
		require.NoError(t, idx.Add(id, []float32{1, 0, 0, 0}))

		res, err := idx.Search([]float32{1, 0, 0, 0}, 1, distance.MetricCosine)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, id, res[0].ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	})

	t.Run("ExactMatchFirst", func(t *testing.T) {
		rng := testutil.NewRNG(11)
		idx := newIndex(t, 16)
		vecs := rng.UnitVectors(64, 16)
		ids := rng.IDs(64)
		for i := range vecs {
			require.NoError(t, idx.Add(ids[i], vecs[i]))
		}

		for _, i := range []int{0, 17, 63} {
			res, err := idx.Search(vecs[i], 5, distance.MetricCosine)
			require.NoError(t, err)
			require.NotEmpty(t, res)
			assert.Equal(t, ids[i], res[0].ID)
			assert.InDelta(t, 1.0, res[0].Score, 1e-6)
		}
	})

	t.Run("RankingInvariant", func(t *testing.T) {
		rng := testutil.NewRNG(5)
		idx := newIndex(t, 8)
		vecs := rng.GaussianVectors(200, 8)
		ids := rng.IDs(200)
		items := make([]index.Item, len(vecs))
		for i := range vecs {
			items[i] = index.Item{ID: ids[i], Vector: vecs[i]}
		}
		require.NoError(t, idx.Rebuild(items))

		for _, m := range []distance.Metric{distance.MetricCosine, distance.MetricEuclidean, distance.MetricDotProduct} {
			for q := 0; q < 5; q++ {
				res, err := idx.Search(rng.UnitVector(8), 10, m)
				require.NoError(t, err)
				assert.LessOrEqual(t, len(res), 10)
				for i := 1; i < len(res); i++ {
					assert.GreaterOrEqual(t, res[i-1].Score, res[i].Score, "metric %s", m)
				}
			}
		}
	})

	t.Run("Overwrite", func(t *testing.T) {
		idx := newIndex(t, 2)
		id := uuid.New()
		require.NoError(t, idx.Add(id, []float32{1, 0}))
		require.NoError(t, idx.Update(id, []float32{0, 1}))
		assert.Equal(t, 1, idx.Len())

		res, err := idx.Search([]float32{0, 1}, 1, distance.MetricCosine)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, id, res[0].ID)
		assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	})

	t.Run("Remove", func(t *testing.T) {
		idx := newIndex(t, 2)
		a, b := uuid.New(), uuid.New()
		require.NoError(t, idx.Add(a, []float32{1, 0}))
		require.NoError(t, idx.Add(b, []float32{0, 1}))

		idx.Remove(a)
		idx.Remove(uuid.New())
		assert.Equal(t, 1, idx.Len())

		res, err := idx.Search([]float32{1, 0}, 2, distance.MetricCosine)
		require.NoError(t, err)
		for _, r := range res {
			assert.NotEqual(t, a, r.ID)
		}
	})

	t.Run("RebuildReplaces", func(t *testing.T) {
		idx := newIndex(t, 2)
		old := uuid.New()
		require.NoError(t, idx.Add(old, []float32{1, 0}))

		fresh := uuid.New()
		require.NoError(t, idx.Rebuild([]index.Item{{ID: fresh, Vector: []float32{1, 1}}}))
		assert.Equal(t, 1, idx.Len())

		res, err := idx.Search([]float32{1, 0}, 5, distance.MetricCosine)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.Equal(t, fresh, res[0].ID)
	})

	t.Run("DimensionMismatch", func(t *testing.T) {
		idx := newIndex(t, 3)
		var dm *index.ErrDimensionMismatch

		assert.ErrorAs(t, idx.Add(uuid.New(), []float32{1, 0}), &dm)
		assert.Equal(t, 0, idx.Len())

		_, err := idx.Search([]float32{1, 0}, 1, distance.MetricCosine)
		assert.ErrorAs(t, err, &dm)

		err = idx.Rebuild([]index.Item{{ID: uuid.New(), Vector: []float32{1, 0, 0, 0}}})
		assert.ErrorAs(t, err, &dm)
	})

	t.Run("InvalidK", func(t *testing.T) {
		idx := newIndex(t, 2)
		_, err := idx.Search([]float32{1, 0}, 0, distance.MetricCosine)
		assert.ErrorIs(t, err, index.ErrInvalidK)
	})

	t.Run("CallerOwnsVectors", func(t *testing.T) {
		idx := newIndex(t, 2)
		id := uuid.New()
		vec := []float32{1, 0}
		require.NoError(t, idx.Add(id, vec))
		vec[0], vec[1] = 0, 1

		res, err := idx.Search([]float32{1, 0}, 1, distance.MetricCosine)
		require.NoError(t, err)
		require.Len(t, res, 1)
		assert.InDelta(t, 1.0, res[0].Score, 1e-9)
	})

	t.Run("Concurrent", func(t *testing.T) {
		rng := testutil.NewRNG(21)
		idx := newIndex(t, 8)
		vecs := rng.UnitVectors(400, 8)
		ids := rng.IDs(400)

		var wg sync.WaitGroup
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(vecs); i += 4 {
					assert.NoError(t, idx.Add(ids[i], vecs[i]))
					if i%7 == 0 {
						idx.Remove(ids[i])
					}
				}
			}(w)
		}
		for r := 0; r < 4; r++ {
			wg.Add(1)
			go func(r int) {
				defer wg.Done()
				for i := 0; i < 50; i++ {
					_, err := idx.Search(vecs[(r*50+i)%len(vecs)], 5, distance.MetricCosine)
					assert.NoError(t, err)
				}
			}(r)
		}
		wg.Wait()

		removed := 0
		for i := range vecs {
			if i%7 == 0 {
				removed++
			}
		}
		assert.Equal(t, len(vecs)-removed, idx.Len())
	})
}
