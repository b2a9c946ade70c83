// Package distance provides the similarity functions used for ranking.
//
// All functions return a score where higher means more similar.
//
// # Supported Metrics
//
//   - MetricCosine: dot(a,b) / (|a|*|b|), 0 when either vector has zero norm
//   - MetricEuclidean: 1 / (1 + |a-b|)
//   - MetricDotProduct: raw dot(a,b)
//
// # Usage
//
//	fn, err := distance.Provider(distance.MetricCosine)
//	score, err := fn(a, b)
//	unit, ok := distance.NormalizeL2Copy(vec) // ok == false for a zero vector
//
// Accumulation is done in float64 so that a vector compared with itself
// scores 1.0 under cosine within 1e-9.
package distance
