package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/service"
	"github.com/hupe1980/vecdb/testutil"
)

// benchBatch is the number of chunks stored per benchmark document.
const benchBatch = 500

type benchParams struct {
	Indexes     []string
	N           int
	Dim         int
	K           int
	Queries     int
	Clusters    int
	Tables      int
	Hyperplanes int
	Centroids   int
	NProbe      int
	Seed        int64
}

type benchResult struct {
	Index   string
	Vectors int
	Build   time.Duration
	Latency time.Duration
	Recall  float64
	Stats   index.Stats
}

var bench = benchParams{}

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure recall and latency of approximate indexes",
	Long: `Load clustered random vectors into one library per index and compare
each index's search results with exact cosine search.

Example:
  vecdb bench --index lsh,ivf --n 20000 --dim 128 --k 10 --queries 200
  vecdb bench --index ivf --centroids 128 --nprobe 8`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		opts, err := cfg.Options(ctx)
		if err != nil {
			return err
		}

		results, err := runBench(ctx, bench, opts...)
		if err != nil {
			return err
		}

		cmd.Println(renderBench(bench, results))
		return nil
	},
}

func init() {
	f := benchCmd.Flags()
	f.StringSliceVar(&bench.Indexes, "index", []string{"lsh", "ivf"}, "index types to measure (flat, lsh, ivf)")
	f.IntVar(&bench.N, "n", 5000, "number of vectors")
	f.IntVar(&bench.Dim, "dim", 64, "vector dimension")
	f.IntVar(&bench.K, "k", 10, "neighbors per query")
	f.IntVar(&bench.Queries, "queries", 100, "number of queries")
	f.IntVar(&bench.Clusters, "clusters", 32, "number of clusters in the generated data")
	f.IntVar(&bench.Tables, "tables", 0, "LSH hash tables (0 = default)")
	f.IntVar(&bench.Hyperplanes, "hyperplanes", 0, "LSH hyperplanes per table (0 = default)")
	f.IntVar(&bench.Centroids, "centroids", 0, "IVF centroids (0 = default)")
	f.IntVar(&bench.NProbe, "nprobe", 0, "IVF clusters probed per query (0 = default)")
	f.Int64Var(&bench.Seed, "seed", 42, "seed for data generation and index construction")
	rootCmd.AddCommand(benchCmd)
}

func (p benchParams) validate() error {
	if len(p.Indexes) == 0 {
		return fmt.Errorf("--index is required")
	}
	if p.N < 1 || p.Dim < 1 || p.Queries < 1 || p.Clusters < 1 {
		return fmt.Errorf("--n, --dim, --queries and --clusters must be positive")
	}
	if maxK := min(p.N, service.MaxK); p.K < 1 || p.K > maxK {
		return fmt.Errorf("--k must be in [1, %d], got %d", maxK, p.K)
	}
	return nil
}

func (p benchParams) indexConfig(name string) (index.Config, error) {
	var cfg index.Config
	switch index.Type(strings.ToLower(strings.TrimSpace(name))) {
	case index.TypeFlat:
		cfg = index.FlatConfig()
	case index.TypeLSH:
		cfg = index.LSHConfig(p.Tables, p.Hyperplanes)
	case index.TypeIVF:
		cfg = index.IVFConfig(p.Centroids, p.NProbe)
	default:
		return index.Config{}, fmt.Errorf("unknown index %q", name)
	}
	if err := cfg.Validate(); err != nil {
		return index.Config{}, err
	}
	return cfg.WithDefaults(), nil
}

// runBench measures every requested index on the same data and queries.
// The seed passed here overrides any seed in opts.
func runBench(ctx context.Context, p benchParams, opts ...vecdb.Option) ([]benchResult, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	configs := make([]index.Config, len(p.Indexes))
	for i, name := range p.Indexes {
		cfg, err := p.indexConfig(name)
		if err != nil {
			return nil, err
		}
		configs[i] = cfg
	}

	db, err := vecdb.New(append(opts, vecdb.WithSeed(p.Seed))...)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rng := testutil.NewRNG(p.Seed)
	vectors := rng.ClusteredVectors(p.N, p.Dim, p.Clusters, 0.05)
	queries := make([][]float32, p.Queries)
	for i := range queries {
		base := vectors[rng.Intn(len(vectors))]
		q := make([]float32, p.Dim)
		for j := range q {
			q[j] = base[j] + (rng.Float32()-0.5)*0.1
		}
		queries[i] = q
	}

	results := make([]benchResult, 0, len(configs))
	for _, cfg := range configs {
		r, err := benchIndex(ctx, db, p, cfg, vectors, queries)
		if err != nil {
			return nil, fmt.Errorf("bench %s: %w", cfg, err)
		}
		results = append(results, r)
	}
	return results, nil
}

func benchIndex(ctx context.Context, db *vecdb.DB, p benchParams, cfg index.Config, vectors, queries [][]float32) (benchResult, error) {
	lib, err := db.NewLibrary("bench-"+string(cfg.Type), p.Dim).Index(cfg).Create(ctx)
	if err != nil {
		return benchResult{}, err
	}
	defer func() { _ = db.Libraries().Delete(context.WithoutCancel(ctx), lib.ID) }()

	ids := make([]uuid.UUID, len(vectors))
	start := time.Now()
	for off := 0; off < len(vectors); off += benchBatch {
		end := min(off+benchBatch, len(vectors))
		chunks := make([]*model.Chunk, 0, end-off)
		for i := off; i < end; i++ {
			ids[i] = model.NewID()
			chunks = append(chunks, &model.Chunk{ID: ids[i], Text: fmt.Sprintf("vector %d", i), Position: i - off, Embedding: vectors[i]})
		}
		if _, err := db.Documents().CreateWithChunks(ctx, lib.ID, chunks, model.DocumentMetadata{}); err != nil {
			return benchResult{}, err
		}
	}
	stats, err := db.Libraries().Rebuild(ctx, lib.ID)
	if err != nil {
		return benchResult{}, err
	}
	build := time.Since(start)

	var (
		elapsed time.Duration
		recall  float64
	)
	for _, q := range queries {
		t := time.Now()
		hits, err := db.Search(lib.ID, q).KNN(p.K).Execute(ctx)
		elapsed += time.Since(t)
		if err != nil {
			return benchResult{}, err
		}

		got := make([]uuid.UUID, len(hits))
		for i, h := range hits {
			got[i] = h.ChunkID
		}
		truth := testutil.ExactTopK(ids, vectors, q, p.K)
		recall += testutil.ComputeRecall(truth, padTo(got, p.K))
	}

	return benchResult{
		Index:   cfg.String(),
		Vectors: len(vectors),
		Build:   build,
		Latency: elapsed / time.Duration(len(queries)),
		Recall:  recall / float64(len(queries)),
		Stats:   stats,
	}, nil
}

// padTo extends ids with zero ids so that missing hits count as misses.
func padTo(ids []uuid.UUID, k int) []uuid.UUID {
	for len(ids) < k {
		ids = append(ids, uuid.UUID{})
	}
	return ids
}
