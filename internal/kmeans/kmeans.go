package kmeans

import (
	"context"
	"encoding/binary"
	"math"
	"math/rand"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecdb/distance"
)

// DefaultIterations is the fixed number of Lloyd passes.
const DefaultIterations = 20

// parallelThreshold is the minimum number of vectors before assignment is
// split across workers.
const parallelThreshold = 1024

// Options configures Train.
type Options struct {
	// Iterations is the number of Lloyd passes. Defaults to DefaultIterations.
	Iterations int

	// Workers bounds the assignment parallelism. Defaults to GOMAXPROCS.
	Workers int
}

// Result holds trained centroids and the final assignment of every input
// vector.
type Result struct {
	Centroids   [][]float32
	Assignments []int
}

// Sizes returns the number of vectors assigned to each centroid.
func (r *Result) Sizes() []int {
	sizes := make([]int, len(r.Centroids))
	for _, c := range r.Assignments {
		sizes[c]++
	}
	return sizes
}

// Train clusters unit vectors into at most k centroids.
//
// The effective k is min(k, number of distinct vectors). Initial centroids
// are sampled without replacement from the distinct vectors. A centroid that
// loses all members during a pass is re-seeded with a random input vector.
// After the final assignment every centroid owns at least one vector.
//
// Train returns a nil Result when vectors is empty.
func Train(ctx context.Context, vectors [][]float32, k int, rng *rand.Rand, optFns ...func(o *Options)) (*Result, error) {
	opts := Options{
		Iterations: DefaultIterations,
		Workers:    runtime.GOMAXPROCS(0),
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}

	if len(vectors) == 0 || k < 1 {
		return nil, nil
	}

	distinct := distinctIndexes(vectors)
	if k > len(distinct) {
		k = len(distinct)
	}

	dim := len(vectors[0])
	centroids := make([][]float32, k)
	rng.Shuffle(len(distinct), func(i, j int) { distinct[i], distinct[j] = distinct[j], distinct[i] })
	for j := 0; j < k; j++ {
		centroids[j] = slices.Clone(vectors[distinct[j]])
	}

	assignments := make([]int, len(vectors))
	sums := make([][]float64, k)
	for j := range sums {
		sums[j] = make([]float64, dim)
	}
	counts := make([]int, k)

	for iter := 0; iter < opts.Iterations; iter++ {
		if err := assign(ctx, vectors, centroids, assignments, opts.Workers); err != nil {
			return nil, err
		}

		for j := range sums {
			clear(sums[j])
			counts[j] = 0
		}
		for i, vec := range vectors {
			c := assignments[i]
			for d, x := range vec {
				sums[c][d] += float64(x)
			}
			counts[c]++
		}

		for j := range centroids {
			if counts[j] == 0 || !meanInto(centroids[j], sums[j]) {
				copy(centroids[j], vectors[rng.Intn(len(vectors))])
			}
		}
	}

	if err := assign(ctx, vectors, centroids, assignments, opts.Workers); err != nil {
		return nil, err
	}

	res := &Result{Centroids: centroids, Assignments: assignments}
	repairEmpty(res, vectors)

	return res, nil
}

// Nearest returns the index of the centroid with the highest dot product
// with vec, or -1 if there are no centroids. Ties prefer the lower index.
func Nearest(vec []float32, centroids [][]float32) int {
	best := -1
	bestScore := math.Inf(-1)
	for j, c := range centroids {
		if s := distance.Dot(vec, c); s > bestScore {
			best, bestScore = j, s
		}
	}
	return best
}

// NearestN returns the indexes of the n centroids with the highest dot
// product with vec, best first.
func NearestN(vec []float32, centroids [][]float32, n int) []int {
	if n > len(centroids) {
		n = len(centroids)
	}
	if n <= 0 {
		return nil
	}

	order := make([]int, len(centroids))
	scores := make([]float64, len(centroids))
	for j, c := range centroids {
		order[j] = j
		scores[j] = distance.Dot(vec, c)
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		default:
			return 0
		}
	})
	return order[:n]
}

func assign(ctx context.Context, vectors, centroids [][]float32, out []int, workers int) error {
	if len(vectors) < parallelThreshold || workers == 1 {
		if err := ctx.Err(); err != nil {
			return err
		}
		for i, vec := range vectors {
			out[i] = Nearest(vec, centroids)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (len(vectors) + workers - 1) / workers
	for start := 0; start < len(vectors); start += chunk {
		end := min(start+chunk, len(vectors))
		g.Go(func() error {
			for i := start; i < end; i++ {
				if (i-start)%256 == 0 {
					if err := gctx.Err(); err != nil {
						return err
					}
				}
				out[i] = Nearest(vectors[i], centroids)
			}
			return nil
		})
	}
	return g.Wait()
}

// meanInto writes the normalized mean direction of sum into dst.
// It reports false when the sum has zero length.
func meanInto(dst []float32, sum []float64) bool {
	var norm float64
	for _, x := range sum {
		norm += x * x
	}
	if norm == 0 {
		return false
	}
	inv := 1 / math.Sqrt(norm)
	for d, x := range sum {
		dst[d] = float32(x * inv)
	}
	return true
}

// repairEmpty gives every centroid without members the vector of the
// largest cluster that agrees least with that cluster's centroid.
//
// k never exceeds the number of distinct vectors, so while a centroid is
// empty some other cluster holds at least two vectors.
func repairEmpty(res *Result, vectors [][]float32) {
	sizes := res.Sizes()
	for j := range res.Centroids {
		if sizes[j] > 0 {
			continue
		}

		donor := 0
		for c := range sizes {
			if sizes[c] > sizes[donor] {
				donor = c
			}
		}
		if sizes[donor] < 2 {
			return
		}

		victim := -1
		worst := math.Inf(1)
		for i, c := range res.Assignments {
			if c != donor {
				continue
			}
			if s := distance.Dot(vectors[i], res.Centroids[donor]); s < worst {
				victim, worst = i, s
			}
		}

		res.Assignments[victim] = j
		copy(res.Centroids[j], vectors[victim])
		sizes[donor]--
		sizes[j]++
	}
}

// distinctIndexes returns the index of the first occurrence of every
// distinct vector.
func distinctIndexes(vectors [][]float32) []int {
	seen := make(map[string]struct{}, len(vectors))
	out := make([]int, 0, len(vectors))
	buf := make([]byte, 0, 4*len(vectors[0]))
	for i, vec := range vectors {
		buf = buf[:0]
		for _, x := range vec {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(x))
		}
		if _, ok := seen[string(buf)]; ok {
			continue
		}
		seen[string(buf)] = struct{}{}
		out = append(out, i)
	}
	return out
}
