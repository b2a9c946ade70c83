package service

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
)

const (
	// DefaultK is the number of hits returned when a query sets no K.
	DefaultK = 10

	// MaxK bounds the number of hits of a single query.
	MaxK = 1000

	// filterOversample widens the index search when post-filters are set,
	// so that filtered-out hits leave room for matching ones.
	filterOversample = 4
)

// Query is a nearest-neighbor query against one library.
type Query struct {
	Embedding []float32
	// K defaults to DefaultK.
	K int
	// Metric is "cosine" (default), "euclidean" or "dot_product".
	Metric  string
	Filters Filters
}

// Filters restrict search hits by chunk attributes. Zero fields match
// everything.
type Filters struct {
	// DocumentIDs keeps chunks owned by one of the documents.
	DocumentIDs []uuid.UUID
	// Tags keeps chunks carrying at least one of the tags.
	Tags []string
	// Author keeps chunks whose metadata names the author.
	Author string
	// CreatedAfter keeps chunks created strictly after the instant.
	CreatedAfter time.Time
}

func (f Filters) empty() bool {
	return len(f.DocumentIDs) == 0 && len(f.Tags) == 0 && f.Author == "" && f.CreatedAfter.IsZero()
}

func (f Filters) match(c *model.Chunk) bool {
	if len(f.DocumentIDs) > 0 && !slices.Contains(f.DocumentIDs, c.DocumentID) {
		return false
	}
	if len(f.Tags) > 0 && !c.Metadata.HasAnyTag(f.Tags) {
		return false
	}
	if f.Author != "" && c.Metadata.Author != f.Author {
		return false
	}
	if !f.CreatedAfter.IsZero() && !c.CreatedAt.After(f.CreatedAfter) {
		return false
	}
	return true
}

// Hit is one search result.
type Hit struct {
	ChunkID    uuid.UUID           `json:"chunk_id"`
	DocumentID uuid.UUID           `json:"document_id"`
	Score      float64             `json:"score"`
	Text       string              `json:"text"`
	Position   int                 `json:"position"`
	Metadata   model.ChunkMetadata `json:"metadata"`
	CreatedAt  time.Time           `json:"created_at"`
	UpdatedAt  time.Time           `json:"updated_at"`
}

// SearchService answers nearest-neighbor queries.
type SearchService struct {
	d *Deps
}

// Search returns up to K hits ordered by non-increasing score.
//
// The library's read lock is held only to fetch the current index. The
// query itself runs without a lock, so it may observe a slightly stale
// index. Hits whose chunk was deleted or moved in the meantime are
// dropped.
func (s *SearchService) Search(ctx context.Context, libraryID uuid.UUID, q Query) ([]Hit, error) {
	start := time.Now()
	hits, err := s.search(ctx, libraryID, q)
	s.d.Observer.RecordSearch(q.K, time.Since(start), err)
	logFailure(ctx, s.d.Logger, "search", err, "library_id", libraryID)
	return hits, err
}

func (s *SearchService) search(ctx context.Context, libraryID uuid.UUID, q Query) ([]Hit, error) {
	k := q.K
	if k == 0 {
		k = DefaultK
	}
	if k < 1 || k > MaxK {
		return nil, model.Validationf("k must be in [1, %d], got %d", MaxK, q.K)
	}
	metric, err := distance.ParseMetric(q.Metric)
	if err != nil {
		return nil, translateError(err)
	}

	lib, err := s.d.Libraries.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if err := model.CheckDimension(lib.EmbeddingDim, q.Embedding); err != nil {
		return nil, err
	}

	idx, ok, err := s.handle(ctx, lib.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Hit{}, nil
	}

	limit := k
	if !q.Filters.empty() {
		limit = k * filterOversample
	}
	results, err := idx.Search(q.Embedding, limit, metric)
	if err != nil {
		return nil, translateError(err)
	}

	hits := make([]Hit, 0, min(k, len(results)))
	for _, r := range results {
		if len(hits) == k {
			break
		}
		c, err := s.d.Chunks.Get(ctx, r.ID)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if c.LibraryID != libraryID || !q.Filters.match(c) {
			continue
		}
		hits = append(hits, Hit{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Score:      r.Score,
			Text:       c.Text,
			Position:   c.Position,
			Metadata:   c.Metadata,
			CreatedAt:  c.CreatedAt,
			UpdatedAt:  c.UpdatedAt,
		})
	}

	s.d.Logger.DebugContext(ctx, "search completed",
		"library_id", libraryID,
		"k", k,
		"metric", metric.String(),
		"candidates", len(results),
		"hits", len(hits),
	)
	return hits, nil
}

// handle fetches the library's current index under its read lock. A
// library without a registered index has no indexed data yet.
func (s *SearchService) handle(ctx context.Context, libraryID uuid.UUID) (index.Index, bool, error) {
	l := s.d.Locks.For(libraryID)
	if err := l.RLock(ctx); err != nil {
		return nil, false, err
	}
	defer l.RUnlock()

	idx, ok := s.d.Indexes.Get(libraryID)
	return idx, ok, nil
}
