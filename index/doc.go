// Package index provides the nearest-neighbor index contract and the
// per-library index registry.
//
// Vecdb supports three index types:
//
//   - Flat: exact nearest neighbor search (brute-force scan)
//   - LSH: random-hyperplane locality sensitive hashing (cosine)
//   - IVF: k-means partitioned inverted file (cosine)
//
// # Index Selection
//
// Choose based on dataset size and accuracy requirements:
//
//   - Flat: small libraries, 100% recall required
//   - LSH: cheap inserts, recall tuned by num_tables / hyperplanes_per_table
//   - IVF: larger libraries, recall tuned by num_centroids / nprobe
//
// # Index Interface
//
// All implementations satisfy the Index interface:
//
//	type Index interface {
//	    Type() Type
//	    Dimension() int
//	    Add(id uuid.UUID, vec []float32) error
//	    Update(id uuid.UUID, vec []float32) error
//	    Remove(id uuid.UUID)
//	    Search(query []float32, k int, metric distance.Metric) ([]SearchResult, error)
//	    Rebuild(items []Item) error
//	    Len() int
//	    Stats() Stats
//	}
//
// Implementations register a Factory from their package init; Create
// dispatches on Config.Type.
//
// # Subpackages
//
//   - flat: exact search
//   - lsh: random hyperplane LSH
//   - ivf: inverted file with spherical k-means
package index
