// Package ivf implements an inverted file index over spherical k-means clusters.
//
// Rebuild trains centroids on the normalized vectors and fills one roaring
// posting list per centroid. Add, Update and Remove maintain posting lists
// against the frozen centroids and never re-cluster. Until the first
// Rebuild there are no centroids and search scans every stored vector.
package ivf

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/bitmap"
	"github.com/hupe1980/vecdb/internal/idmap"
	"github.com/hupe1980/vecdb/internal/kmeans"
)

// Compile-time check to ensure IVF satisfies the index interface.
var _ index.Index = (*IVF)(nil)

// MaxCandidates caps the probed candidates ranked per query.
// 0 disables the cap.
const MaxCandidates = 0

// unassigned marks a vector stored before any centroids existed.
const unassigned = -1

func init() {
	index.RegisterFactory(index.TypeIVF, func(cfg index.Config, dim int, opts index.Options) (index.Index, error) {
		return New(dim, func(o *Options) {
			o.NumCentroids = cfg.IVF.NumCentroids
			o.NProbe = cfg.IVF.NProbe
			o.Seed = opts.Seed
			o.Seeded = opts.Seeded
		})
	})
}

// Options contains configuration options for the IVF index.
type Options struct {
	// NumCentroids is the configured number of clusters (k).
	NumCentroids int

	// NProbe is the number of clusters scanned per query.
	NProbe int

	// Seed makes centroid sampling deterministic when Seeded is set.
	Seed   int64
	Seeded bool

	// Workers bounds k-means assignment parallelism. 0 means GOMAXPROCS.
	Workers int
}

// DefaultOptions contains the default configuration options for the IVF index.
var DefaultOptions = Options{
	NumCentroids: index.DefaultIVFNumCentroids,
	NProbe:       index.DefaultIVFNProbe,
}

type entry struct {
	vec     []float32
	cluster int
}

// IVF is an inverted file index for cosine similarity.
type IVF struct {
	dim  int
	opts Options

	rngMu sync.Mutex
	rng   *rand.Rand

	mu        sync.RWMutex
	centroids [][]float32
	lists     []*bitmap.Bitmap
	entries   *idmap.Map[entry]
}

// New creates a new empty IVF index for vectors of dimension dim.
// Parameters below 1 are clamped to 1.
func New(dim int, optFns ...func(o *Options)) (*IVF, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: ivf dimension must be positive, got %d", index.ErrInvalidParameter, dim)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.NumCentroids = max(1, opts.NumCentroids)
	opts.NProbe = max(1, opts.NProbe)

	seed := opts.Seed
	if !opts.Seeded {
		seed = time.Now().UnixNano()
	}

	return &IVF{
		dim:     dim,
		opts:    opts,
		rng:     rand.New(rand.NewSource(seed)),
		entries: idmap.New[entry](0),
	}, nil
}

// Type returns index.TypeIVF.
func (f *IVF) Type() index.Type { return index.TypeIVF }

// Dimension returns the vector dimensionality.
func (f *IVF) Dimension() int { return f.dim }

// Options returns the effective options.
func (f *IVF) Options() Options { return f.opts }

// Add normalizes vec, stores it under id and assigns it to its nearest
// centroid if centroids exist. A zero vector is unindexable: it only
// removes a previous entry.
func (f *IVF) Add(id uuid.UUID, vec []float32) error {
	if err := index.CheckDimension(f.dim, vec); err != nil {
		return err
	}
	unit, ok := distance.NormalizeL2Copy(vec)

	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeLocked(id)
	if !ok {
		return nil
	}

	cluster := kmeans.Nearest(unit, f.centroids)
	slot, _, _ := f.entries.Put(id, entry{vec: unit, cluster: cluster})
	if cluster != unassigned {
		f.lists[cluster].Add(slot)
	}
	return nil
}

// Update is identical to Add.
func (f *IVF) Update(id uuid.UUID, vec []float32) error {
	return f.Add(id, vec)
}

// Remove deletes id and its posting list membership.
func (f *IVF) Remove(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeLocked(id)
}

func (f *IVF) removeLocked(id uuid.UUID) {
	slot, old, ok := f.entries.Delete(id)
	if ok && old.cluster != unassigned {
		f.lists[old.cluster].Remove(slot)
	}
}

// Search probes the NProbe centroids closest to the query and ranks the
// union of their posting lists. Without centroids it ranks every stored
// vector. Cosine ranking uses the normalized query, other metrics the raw
// query. A zero query returns no results.
func (f *IVF) Search(query []float32, k int, metric distance.Metric) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.CheckDimension(f.dim, query); err != nil {
		return nil, err
	}

	unit, ok := distance.NormalizeL2Copy(query)
	if !ok {
		return []index.SearchResult{}, nil
	}

	f.mu.RLock()
	candidates := f.candidatesLocked(unit)
	f.mu.RUnlock()

	q := query
	if metric == distance.MetricCosine {
		q = unit
	}
	return index.Rank(q, candidates, k, metric)
}

func (f *IVF) candidatesLocked(unit []float32) []index.Item {
	if len(f.centroids) == 0 {
		candidates := make([]index.Item, 0, f.entries.Len())
		for _, e := range f.entries.All() {
			candidates = append(candidates, index.Item{ID: e.ID, Vector: e.Value.vec})
		}
		return candidates
	}

	probes := kmeans.NearestN(unit, f.centroids, f.opts.NProbe)
	lists := make([]*bitmap.Bitmap, len(probes))
	for i, p := range probes {
		lists[i] = f.lists[p]
	}
	union := bitmap.Union(lists...)

	candidates := make([]index.Item, 0, union.Cardinality())
	for s := range union.Iterator() {
		if MaxCandidates > 0 && len(candidates) >= MaxCandidates {
			break
		}
		if e, ok := f.entries.At(s); ok {
			candidates = append(candidates, index.Item{ID: e.ID, Vector: e.Value.vec})
		}
	}
	return candidates
}

// Rebuild retrains centroids on items and repopulates the posting lists.
// Zero vectors are dropped. With no remaining vectors the index has no
// centroids. The new state is built aside and installed in one step.
func (f *IVF) Rebuild(items []index.Item) error {
	if err := index.CheckItems(f.dim, items); err != nil {
		return err
	}

	entries := idmap.New[entry](len(items))
	for _, it := range items {
		if unit, ok := distance.NormalizeL2Copy(it.Vector); ok {
			entries.Put(it.ID, entry{vec: unit, cluster: unassigned})
		}
	}

	slots := make([]uint32, 0, entries.Len())
	vecs := make([][]float32, 0, entries.Len())
	for s, e := range entries.All() {
		slots = append(slots, s)
		vecs = append(vecs, e.Value.vec)
	}

	f.rngMu.Lock()
	res, err := kmeans.Train(context.Background(), vecs, f.opts.NumCentroids, f.rng, func(o *kmeans.Options) {
		if f.opts.Workers > 0 {
			o.Workers = f.opts.Workers
		}
	})
	f.rngMu.Unlock()
	if err != nil {
		return err
	}

	var (
		centroids [][]float32
		lists     []*bitmap.Bitmap
	)
	if res != nil {
		centroids = res.Centroids
		lists = make([]*bitmap.Bitmap, len(centroids))
		for c := range lists {
			lists[c] = bitmap.New()
		}
		for i, c := range res.Assignments {
			e, _ := entries.At(slots[i])
			entries.Put(e.ID, entry{vec: e.Value.vec, cluster: c})
			lists[c].Add(slots[i])
		}
	}

	f.mu.Lock()
	f.centroids, f.lists, f.entries = centroids, lists, entries
	f.mu.Unlock()
	return nil
}

// Len returns the number of indexed (non-zero) vectors.
func (f *IVF) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.entries.Len()
}

// ClusterSizes returns the posting list length of every centroid.
func (f *IVF) ClusterSizes() []int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	sizes := make([]int, len(f.lists))
	for c, l := range f.lists {
		sizes[c] = int(l.Cardinality())
	}
	return sizes
}

// Stats returns structural statistics.
func (f *IVF) Stats() index.Stats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	unassignedCount := 0
	for _, e := range f.entries.All() {
		if e.Value.cluster == unassigned {
			unassignedCount++
		}
	}
	return index.Stats{
		Type:       index.TypeIVF,
		Vectors:    f.entries.Len(),
		Centroids:  len(f.centroids),
		Unassigned: unassignedCount,
	}
}
