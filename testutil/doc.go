// Package testutil provides testing utilities for vecdb.
//
// This package is intended for use in tests and benchmarks only.
// It provides helpers for generating random vectors and ids, computing
// exact nearest neighbors, and verifying search recall.
//
// # Random Vector Generation
//
//	rng := testutil.NewRNG(seed)
//	vecs := rng.UnitVectors(1000, 64)           // uniform on the sphere
//	vecs = rng.ClusteredVectors(1000, 64, 16, 0.1)
//	ids := rng.IDs(1000)                        // deterministic UUIDs
//
// # Exact Search (Ground Truth)
//
//	truth := testutil.ExactTopK(ids, vecs, query, k)
//
// # Recall Verification
//
//	recall := testutil.ComputeRecall(truth, approx)
package testutil
