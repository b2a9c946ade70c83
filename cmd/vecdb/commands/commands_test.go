package commands

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/index"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()

	buf := new(bytes.Buffer)
	rootCmd.SetOut(buf)
	rootCmd.SetErr(buf)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		configFile = ""
	})

	err := rootCmd.Execute()
	return buf.String(), err
}

func TestVersionCmd(t *testing.T) {
	original := version
	version = "v0.0.1-test"
	defer func() { version = original }()

	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "vecdb version v0.0.1-test")
}

func TestConfigCmd(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		out, err := execute(t, "config")
		require.NoError(t, err)
		assert.Contains(t, out, "backend: memory")
		assert.Contains(t, out, "type: flat")
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vecdb.yaml")
		require.NoError(t, os.WriteFile(path, []byte("index:\n  default:\n    type: lsh\nseed: 9\n"), 0o600))

		out, err := execute(t, "--config", path, "config")
		require.NoError(t, err)
		assert.Contains(t, out, "type: lsh")
		assert.Contains(t, out, "seed: 9")
	})

	t.Run("Invalid", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "vecdb.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  backend: postgres\n"), 0o600))

		_, err := execute(t, "--config", path, "config")
		require.Error(t, err)
	})
}

func smallBench() benchParams {
	return benchParams{
		Indexes:  []string{"flat", "lsh", "ivf"},
		N:        300,
		Dim:      8,
		K:        5,
		Queries:  10,
		Clusters: 4,
		Seed:     1,
	}
}

func TestRunBench(t *testing.T) {
	p := smallBench()

	results, err := runBench(t.Context(), p, vecdb.WithLogger(vecdb.NoopLogger()))
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "flat", results[0].Index)
	assert.InDelta(t, 1.0, results[0].Recall, 0.05)
	assert.Equal(t, index.TypeLSH, results[1].Stats.Type)
	assert.Positive(t, results[1].Stats.Buckets)
	assert.Equal(t, index.TypeIVF, results[2].Stats.Type)
	assert.Positive(t, results[2].Stats.Centroids)

	for _, r := range results {
		assert.Equal(t, p.N, r.Vectors)
		assert.GreaterOrEqual(t, r.Recall, 0.0)
		assert.LessOrEqual(t, r.Recall, 1.0)
	}
}

func TestBenchParamsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *benchParams)
	}{
		{"NoIndexes", func(p *benchParams) { p.Indexes = nil }},
		{"UnknownIndex", func(p *benchParams) { p.Indexes = []string{"hnsw"} }},
		{"ZeroN", func(p *benchParams) { p.N = 0 }},
		{"KTooLarge", func(p *benchParams) { p.K = p.N + 1 }},
		{"BadLSH", func(p *benchParams) { p.Indexes = []string{"lsh"}; p.Tables = 100 }},
		{"BadIVF", func(p *benchParams) { p.Indexes = []string{"ivf"}; p.NProbe = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := smallBench()
			tt.mutate(&p)
			_, err := runBench(t.Context(), p)
			require.Error(t, err)
		})
	}
}

func TestRenderBench(t *testing.T) {
	p := smallBench()
	out := renderBench(p, []benchResult{
		{Index: "lsh(tables=8,hyperplanes=16)", Vectors: 300, Recall: 0.8, Latency: 250 * time.Microsecond, Build: 2 * time.Second, Stats: index.Stats{Type: index.TypeLSH, Buckets: 42}},
		{Index: "ivf(centroids=64,nprobe=4)", Vectors: 300, Recall: 0.95, Latency: 3 * time.Millisecond, Stats: index.Stats{Type: index.TypeIVF, Centroids: 16}},
	})

	assert.Contains(t, out, "vecdb bench")
	assert.Contains(t, out, "RECALL@5")
	assert.Contains(t, out, "lsh(tables=8,hyperplanes=16)")
	assert.Contains(t, out, "42 buckets")
	assert.Contains(t, out, "16 centroids, 0 unassigned")
	assert.Contains(t, out, "0.950")
	assert.Contains(t, out, "250.0µs")
	assert.Contains(t, out, "2.00s")
}

func TestBenchCmd(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))

	out, err := execute(t, "--config", path, "bench", "--index", "flat", "--n", "100", "--dim", "4", "--k", "3", "--queries", "5", "--clusters", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "vecdb bench")
	assert.Contains(t, out, "flat")
}
