package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store/badgerstore"
	"github.com/hupe1980/vecdb/store/memory"
	"github.com/hupe1980/vecdb/store/sqlite"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, BackendMemory, cfg.Store.Backend)
	assert.Equal(t, index.TypeFlat, cfg.Index.Default.Type)
	assert.Equal(t, 1, cfg.Rebuild.Concurrency)
	assert.Equal(t, 1000, cfg.Rebuild.PageSize)
	assert.Nil(t, cfg.Seed)
}

func TestParse(t *testing.T) {
	t.Run("Full", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(`
log:
  level: debug
  format: json
store:
  backend: sqlite
  dsn: /tmp/vecdb.sqlite
index:
  default:
    type: ivf
    ivf:
      num_centroids: 16
      nprobe: 2
rebuild:
  concurrency: 3
  rows_per_second: 500
  page_size: 250
seed: 42
`))
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, FormatJSON, cfg.Log.Format)
		assert.Equal(t, BackendSQLite, cfg.Store.Backend)
		assert.Equal(t, "/tmp/vecdb.sqlite", cfg.Store.DSN)
		assert.Equal(t, index.IVFConfig(16, 2), cfg.Index.Default)
		assert.Equal(t, RebuildConfig{Concurrency: 3, RowsPerSecond: 500, PageSize: 250}, cfg.Rebuild)
		require.NotNil(t, cfg.Seed)
		assert.Equal(t, int64(42), *cfg.Seed)
	})

	t.Run("Partial", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader("store:\n  backend: badger\n"))
		require.NoError(t, err)
		assert.Equal(t, BackendBadger, cfg.Store.Backend)
		assert.Equal(t, "info", cfg.Log.Level)
		assert.Equal(t, 1000, cfg.Rebuild.PageSize)
	})

	t.Run("Empty", func(t *testing.T) {
		cfg, err := Parse(strings.NewReader(""))
		require.NoError(t, err)
		assert.Equal(t, Default(), cfg)
	})

	t.Run("UnknownField", func(t *testing.T) {
		_, err := Parse(strings.NewReader("stor:\n  backend: memory\n"))
		require.Error(t, err)
	})

	t.Run("Malformed", func(t *testing.T) {
		_, err := Parse(strings.NewReader("log: ["))
		require.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"LogLevel", func(c *Config) { c.Log.Level = "loud" }},
		{"LogFormat", func(c *Config) { c.Log.Format = "xml" }},
		{"Backend", func(c *Config) { c.Store.Backend = "postgres" }},
		{"IndexType", func(c *Config) { c.Index.Default = index.Config{Type: "hnsw"} }},
		{"IndexParams", func(c *Config) { c.Index.Default = index.LSHConfig(65, 1) }},
		{"Concurrency", func(c *Config) { c.Rebuild.Concurrency = -1 }},
		{"Rate", func(c *Config) { c.Rebuild.RowsPerSecond = -1 }},
		{"PageSize", func(c *Config) { c.Rebuild.PageSize = 1001 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vecdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 7\n"), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, int64(7), *cfg.Seed)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestMarshalRoundTrip(t *testing.T) {
	seed := int64(3)
	cfg := Default()
	cfg.Seed = &seed
	cfg.Index.Default = index.LSHConfig(4, 8)

	data, err := cfg.Marshal()
	require.NoError(t, err)

	got, err := Parse(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log = LogConfig{Level: "warn", Format: FormatJSON}

	logger, err := cfg.Logger(&buf)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
}

func TestOpenBackend(t *testing.T) {
	tests := []struct {
		name  string
		store StoreConfig
		check func(t *testing.T, v any)
	}{
		{"Memory", StoreConfig{Backend: BackendMemory}, func(t *testing.T, v any) { assert.IsType(t, &memory.Store{}, v) }},
		{"Badger", StoreConfig{Backend: BackendBadger}, func(t *testing.T, v any) { assert.IsType(t, &badgerstore.Store{}, v) }},
		{"SQLite", StoreConfig{Backend: BackendSQLite}, func(t *testing.T, v any) { assert.IsType(t, &sqlite.Store{}, v) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Store = tt.store

			b, err := cfg.OpenBackend(t.Context(), nil)
			require.NoError(t, err)
			defer b.Close()
			tt.check(t, b)
		})
	}
}

func TestOptions(t *testing.T) {
	seed := int64(5)
	cfg := Default()
	cfg.Log.Level = "error"
	cfg.Store = StoreConfig{Backend: BackendBadger, Dir: t.TempDir()}
	cfg.Index.Default = index.LSHConfig(2, 4)
	cfg.Seed = &seed

	opts, err := cfg.Options(t.Context())
	require.NoError(t, err)

	db, err := vecdb.New(opts...)
	require.NoError(t, err)
	defer db.Close()

	lib := db.NewLibrary("lib", 4).MustCreate(t.Context())
	assert.Equal(t, index.LSHConfig(2, 4), lib.IndexConfig)

	doc, err := db.Documents().Create(t.Context(), lib.ID, model.DocumentMetadata{})
	require.NoError(t, err)
	_, err = db.Upsert(t.Context(), &model.Chunk{LibraryID: lib.ID, DocumentID: doc.ID, Text: "x", Embedding: []float32{1, 0, 0, 0}})
	require.NoError(t, err)
}
