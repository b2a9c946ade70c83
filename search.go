// Package vecdb provides an embedded multi-library vector database.
//
// This file implements a fluent search API for querying libraries.
package vecdb

import (
	"context"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/service"
)

// Search creates a new fluent search builder for the given query vector.
//
// Example:
//
//	hits, err := db.Search(libID, query).
//	    KNN(10).
//	    Euclidean().
//	    Tags("news").
//	    Execute(ctx)
//
//	// Or with streaming:
//	for hit, err := range db.Search(libID, query).KNN(100).Stream(ctx) {
//	    if err != nil { break }
//	    if hit.Score < threshold { break }
//	    process(hit)
//	}
func (db *DB) Search(libraryID uuid.UUID, query []float32) *SearchBuilder {
	return &SearchBuilder{
		db:        db,
		libraryID: libraryID,
		q:         Query{Embedding: query, K: service.DefaultK},
	}
}

// SearchBuilder is a fluent builder for constructing search queries.
type SearchBuilder struct {
	db        *DB
	libraryID uuid.UUID
	q         Query
}

// KNN sets the number of nearest neighbors to return.
func (sb *SearchBuilder) KNN(k int) *SearchBuilder {
	sb.q.K = k
	return sb
}

// Metric sets the similarity metric.
func (sb *SearchBuilder) Metric(m distance.Metric) *SearchBuilder {
	sb.q.Metric = m.String()
	return sb
}

// Cosine ranks by cosine similarity (default).
func (sb *SearchBuilder) Cosine() *SearchBuilder { return sb.Metric(distance.MetricCosine) }

// Euclidean ranks by the similarity 1/(1+d), where d is the Euclidean
// distance. An exact match scores 1.
func (sb *SearchBuilder) Euclidean() *SearchBuilder { return sb.Metric(distance.MetricEuclidean) }

// DotProduct ranks by inner product.
func (sb *SearchBuilder) DotProduct() *SearchBuilder { return sb.Metric(distance.MetricDotProduct) }

// Documents keeps hits owned by one of the documents.
func (sb *SearchBuilder) Documents(ids ...uuid.UUID) *SearchBuilder {
	sb.q.Filters.DocumentIDs = append(sb.q.Filters.DocumentIDs, ids...)
	return sb
}

// Tags keeps hits carrying at least one of the tags.
func (sb *SearchBuilder) Tags(tags ...string) *SearchBuilder {
	sb.q.Filters.Tags = append(sb.q.Filters.Tags, tags...)
	return sb
}

// Author keeps hits by the author.
func (sb *SearchBuilder) Author(author string) *SearchBuilder {
	sb.q.Filters.Author = author
	return sb
}

// CreatedAfter keeps hits created strictly after t.
func (sb *SearchBuilder) CreatedAfter(t time.Time) *SearchBuilder {
	sb.q.Filters.CreatedAfter = t
	return sb
}

// Execute runs the search and returns the hits.
func (sb *SearchBuilder) Execute(ctx context.Context) ([]Hit, error) {
	return sb.db.services.Search.Search(ctx, sb.libraryID, sb.q)
}

// MustExecute runs the search, panicking on error.
// Use this only in tests or when you're certain the query is valid.
func (sb *SearchBuilder) MustExecute(ctx context.Context) []Hit {
	hits, err := sb.Execute(ctx)
	if err != nil {
		panic(err)
	}
	return hits
}

// Stream returns an iterator over the hits, best first. The iterator
// supports early termination by breaking from the loop.
func (sb *SearchBuilder) Stream(ctx context.Context) iter.Seq2[Hit, error] {
	return func(yield func(Hit, error) bool) {
		hits, err := sb.Execute(ctx)
		if err != nil {
			yield(Hit{}, err)
			return
		}
		for _, h := range hits {
			if !yield(h, nil) {
				return
			}
		}
	}
}

// First returns only the best hit, or ErrNotFound if there is none.
func (sb *SearchBuilder) First(ctx context.Context) (Hit, error) {
	sb.q.K = 1
	hits, err := sb.Execute(ctx)
	if err != nil {
		return Hit{}, err
	}
	if len(hits) == 0 {
		return Hit{}, ErrNotFound
	}
	return hits[0], nil
}

// Count executes the search and returns the number of hits.
func (sb *SearchBuilder) Count(ctx context.Context) (int, error) {
	hits, err := sb.Execute(ctx)
	if err != nil {
		return 0, err
	}
	return len(hits), nil
}

// Exists checks if at least one hit matches the search.
func (sb *SearchBuilder) Exists(ctx context.Context) (bool, error) {
	sb.q.K = 1
	hits, err := sb.Execute(ctx)
	if err != nil {
		return false, err
	}
	return len(hits) > 0, nil
}
