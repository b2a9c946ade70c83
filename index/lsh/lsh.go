// Package lsh implements a random hyperplane locality sensitive hashing index.
//
// Each of L tables hashes a unit vector to an H-bit signature (bit i is set
// iff the dot product with hyperplane i is >= 0) and groups slots by
// signature in roaring posting lists. Search unions the query's buckets
// across all tables and ranks the candidates exactly.
package lsh

import (
	"cmp"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/bitmap"
	"github.com/hupe1980/vecdb/internal/idmap"
)

// Compile-time check to ensure LSH satisfies the index interface.
var _ index.Index = (*LSH)(nil)

const (
	// Oversample bounds the bucket candidates ranked per query to Oversample*k.
	Oversample = 6

	// topUpFactor is the candidate target, as a multiple of k, when the
	// buckets yield fewer than k candidates.
	topUpFactor = 2
)

func init() {
	index.RegisterFactory(index.TypeLSH, func(cfg index.Config, dim int, opts index.Options) (index.Index, error) {
		return New(dim, func(o *Options) {
			o.NumTables = cfg.LSH.NumTables
			o.HyperplanesPerTable = cfg.LSH.HyperplanesPerTable
			o.Seed = opts.Seed
			o.Seeded = opts.Seeded
		})
	})
}

// Options contains configuration options for the LSH index.
type Options struct {
	// NumTables is the number of independent hash tables (L).
	NumTables int

	// HyperplanesPerTable is the signature width in bits (H).
	HyperplanesPerTable int

	// Seed makes hyperplane generation deterministic when Seeded is set.
	Seed   int64
	Seeded bool
}

// DefaultOptions contains the default configuration options for the LSH index.
var DefaultOptions = Options{
	NumTables:           index.DefaultLSHNumTables,
	HyperplanesPerTable: index.DefaultLSHHyperplanesPerTable,
}

// entry is a stored unit vector and its per-table signatures.
type entry struct {
	vec  []float32
	sigs []uint64
}

type table struct {
	buckets map[uint64]*bitmap.Bitmap
}

func signature(planes [][]float32, vec []float32) uint64 {
	var sig uint64
	for i, p := range planes {
		if distance.Dot(vec, p) >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

func (t *table) add(sig uint64, slot uint32) {
	b, ok := t.buckets[sig]
	if !ok {
		b = bitmap.New()
		t.buckets[sig] = b
	}
	b.Add(slot)
}

func (t *table) remove(sig uint64, slot uint32) {
	b, ok := t.buckets[sig]
	if !ok {
		return
	}
	b.Remove(slot)
	if b.IsEmpty() {
		delete(t.buckets, sig)
	}
}

// LSH is a random hyperplane LSH index for cosine similarity.
// Hyperplanes are fixed at construction; Rebuild keeps them.
type LSH struct {
	dim  int
	opts Options

	// planes[t] are the hyperplanes of table t. Immutable.
	planes [][][]float32

	mu      sync.RWMutex
	tables  []*table
	entries *idmap.Map[entry]
}

// New creates a new empty LSH index for vectors of dimension dim.
// Parameters below 1 are clamped to 1.
func New(dim int, optFns ...func(o *Options)) (*LSH, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: lsh dimension must be positive, got %d", index.ErrInvalidParameter, dim)
	}

	opts := DefaultOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.NumTables = max(1, opts.NumTables)
	opts.HyperplanesPerTable = max(1, opts.HyperplanesPerTable)
	if opts.HyperplanesPerTable > index.MaxLSHHyperplanesPerTable {
		return nil, fmt.Errorf("%w: hyperplanes_per_table must be <= %d", index.ErrInvalidParameter, index.MaxLSHHyperplanesPerTable)
	}

	seed := opts.Seed
	if !opts.Seeded {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))

	planes := make([][][]float32, opts.NumTables)
	for t := range planes {
		planes[t] = make([][]float32, opts.HyperplanesPerTable)
		for h := range planes[t] {
			p := make([]float32, dim)
			for d := range p {
				p[d] = float32(rng.NormFloat64())
			}
			planes[t][h] = p
		}
	}

	l := &LSH{
		dim:    dim,
		opts:   opts,
		planes: planes,
	}
	l.tables, l.entries = l.emptyState(0)
	return l, nil
}

func (l *LSH) emptyState(capacity int) ([]*table, *idmap.Map[entry]) {
	tables := make([]*table, len(l.planes))
	for t := range tables {
		tables[t] = &table{buckets: make(map[uint64]*bitmap.Bitmap)}
	}
	return tables, idmap.New[entry](capacity)
}

func (l *LSH) signatures(vec []float32) []uint64 {
	sigs := make([]uint64, len(l.planes))
	for t, p := range l.planes {
		sigs[t] = signature(p, vec)
	}
	return sigs
}

// Type returns index.TypeLSH.
func (l *LSH) Type() index.Type { return index.TypeLSH }

// Dimension returns the vector dimensionality.
func (l *LSH) Dimension() int { return l.dim }

// Options returns the effective options.
func (l *LSH) Options() Options { return l.opts }

// Add normalizes vec and stores it under id, first removing any previous
// bucket membership of id. A zero vector is unindexable: it only removes.
func (l *LSH) Add(id uuid.UUID, vec []float32) error {
	if err := index.CheckDimension(l.dim, vec); err != nil {
		return err
	}

	unit, ok := distance.NormalizeL2Copy(vec)
	var sigs []uint64
	if ok {
		sigs = l.signatures(unit)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if slot, old, found := l.entries.Delete(id); found {
		for t, tb := range l.tables {
			tb.remove(old.sigs[t], slot)
		}
	}
	if !ok {
		return nil
	}

	slot, _, _ := l.entries.Put(id, entry{vec: unit, sigs: sigs})
	for t, tb := range l.tables {
		tb.add(sigs[t], slot)
	}
	return nil
}

// Update is identical to Add.
func (l *LSH) Update(id uuid.UUID, vec []float32) error {
	return l.Add(id, vec)
}

// Remove deletes id from every table. Empty buckets are dropped.
func (l *LSH) Remove(id uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if slot, old, found := l.entries.Delete(id); found {
		for t, tb := range l.tables {
			tb.remove(old.sigs[t], slot)
		}
	}
}

// Search ranks the union of the query's buckets across all tables.
//
// At most Oversample*k bucket candidates are ranked, preferring those that
// collide with the query in more tables. When the buckets hold fewer than k
// candidates the set is topped up with other indexed vectors to about 2k.
// Cosine ranking uses the normalized query, other metrics the raw query.
// A zero query returns no results.
func (l *LSH) Search(query []float32, k int, metric distance.Metric) ([]index.SearchResult, error) {
	if k <= 0 {
		return nil, index.ErrInvalidK
	}
	if err := index.CheckDimension(l.dim, query); err != nil {
		return nil, err
	}

	unit, ok := distance.NormalizeL2Copy(query)
	if !ok {
		return []index.SearchResult{}, nil
	}
	sigs := l.signatures(unit)

	l.mu.RLock()
	candidates := l.candidatesLocked(sigs, k)
	l.mu.RUnlock()

	q := query
	if metric == distance.MetricCosine {
		q = unit
	}
	return index.Rank(q, candidates, k, metric)
}

func (l *LSH) candidatesLocked(sigs []uint64, k int) []index.Item {
	hits := make([]*bitmap.Bitmap, 0, len(l.tables))
	for t, tb := range l.tables {
		if b, ok := tb.buckets[sigs[t]]; ok {
			hits = append(hits, b)
		}
	}
	union := bitmap.Union(hits...)
	slots := union.ToArray()

	if target := Oversample * k; len(slots) > target {
		slots = mostColliding(slots, hits, target)
	}

	candidates := make([]index.Item, 0, max(len(slots), topUpFactor*k))
	for _, s := range slots {
		if e, ok := l.entries.At(s); ok {
			candidates = append(candidates, index.Item{ID: e.ID, Vector: e.Value.vec})
		}
	}

	if len(candidates) < k && l.entries.Len() > len(candidates) {
		for s, e := range l.entries.All() {
			if len(candidates) >= topUpFactor*k {
				break
			}
			if union.Contains(s) {
				continue
			}
			candidates = append(candidates, index.Item{ID: e.ID, Vector: e.Value.vec})
		}
	}
	return candidates
}

// mostColliding keeps the n slots present in the most buckets. Ties keep
// ascending slot order.
func mostColliding(slots []uint32, buckets []*bitmap.Bitmap, n int) []uint32 {
	type scored struct {
		slot uint32
		hits int
	}
	ranked := make([]scored, len(slots))
	for i, s := range slots {
		ranked[i].slot = s
		for _, b := range buckets {
			if b.Contains(s) {
				ranked[i].hits++
			}
		}
	}
	slices.SortStableFunc(ranked, func(a, b scored) int {
		return cmp.Compare(b.hits, a.hits)
	})

	out := make([]uint32, n)
	for i := range out {
		out[i] = ranked[i].slot
	}
	return out
}

// Rebuild clears all tables and re-inserts items. The new state is built
// aside and installed in one step.
func (l *LSH) Rebuild(items []index.Item) error {
	if err := index.CheckItems(l.dim, items); err != nil {
		return err
	}

	tables, entries := l.emptyState(len(items))
	for _, it := range items {
		unit, ok := distance.NormalizeL2Copy(it.Vector)
		if !ok {
			continue
		}
		sigs := l.signatures(unit)
		if slot, old, found := entries.Delete(it.ID); found {
			for t, tb := range tables {
				tb.remove(old.sigs[t], slot)
			}
		}
		slot, _, _ := entries.Put(it.ID, entry{vec: unit, sigs: sigs})
		for t, tb := range tables {
			tb.add(sigs[t], slot)
		}
	}

	l.mu.Lock()
	l.tables, l.entries = tables, entries
	l.mu.Unlock()
	return nil
}

// Len returns the number of indexed (non-zero) vectors.
func (l *LSH) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.entries.Len()
}

// Stats returns structural statistics.
func (l *LSH) Stats() index.Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	buckets := 0
	for _, tb := range l.tables {
		buckets += len(tb.buckets)
	}
	return index.Stats{Type: index.TypeLSH, Vectors: l.entries.Len(), Buckets: buckets}
}
