package index

import (
	"slices"

	"github.com/hupe1980/vecdb/distance"
)

// Rank scores every candidate against query and returns the k best by
// non-increasing score. Candidates with equal scores keep their input order.
//
// Rank is the shared final step of every index: the caller decides which
// candidates to score, Rank decides their order.
func Rank(query []float32, candidates []Item, k int, metric distance.Metric) ([]SearchResult, error) {
	if k <= 0 {
		return nil, ErrInvalidK
	}

	score, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	results := make([]SearchResult, 0, len(candidates))
	for _, c := range candidates {
		s, err := score(query, c.Vector)
		if err != nil {
			return nil, err
		}
		results = append(results, SearchResult{ID: c.ID, Score: s})
	}

	slices.SortStableFunc(results, func(a, b SearchResult) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}
