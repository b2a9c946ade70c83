package index

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDefaults(t *testing.T) {
	t.Run("EmptyIsFlat", func(t *testing.T) {
		cfg := Config{}.WithDefaults()
		assert.Equal(t, TypeFlat, cfg.Type)
		assert.Nil(t, cfg.LSH)
		assert.Nil(t, cfg.IVF)
	})

	t.Run("LSH", func(t *testing.T) {
		cfg := Config{Type: TypeLSH}.WithDefaults()
		require.NotNil(t, cfg.LSH)
		assert.Equal(t, DefaultLSHNumTables, cfg.LSH.NumTables)
		assert.Equal(t, DefaultLSHHyperplanesPerTable, cfg.LSH.HyperplanesPerTable)
	})

	t.Run("IVFPartial", func(t *testing.T) {
		cfg := Config{Type: TypeIVF, IVF: &IVFParams{NumCentroids: 8}}.WithDefaults()
		require.NotNil(t, cfg.IVF)
		assert.Equal(t, 8, cfg.IVF.NumCentroids)
		assert.Equal(t, DefaultIVFNProbe, cfg.IVF.NProbe)
	})

	t.Run("DoesNotAlias", func(t *testing.T) {
		in := LSHConfig(2, 3)
		out := in.WithDefaults()
		out.LSH.NumTables = 9
		assert.Equal(t, 2, in.LSH.NumTables)
	})
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		err  error
	}{
		{"Flat", FlatConfig(), nil},
		{"Empty", Config{}, nil},
		{"LSHDefaults", Config{Type: TypeLSH}, nil},
		{"LSHBounds", LSHConfig(64, 64), nil},
		{"LSHTooManyTables", LSHConfig(65, 4), ErrInvalidParameter},
		{"LSHNegative", LSHConfig(-1, 4), ErrInvalidParameter},
		{"LSHTooManyPlanes", LSHConfig(4, 65), ErrInvalidParameter},
		{"IVF", IVFConfig(16, 2), nil},
		{"IVFNegativeProbe", IVFConfig(16, -1), ErrInvalidParameter},
		{"Unknown", Config{Type: "hnsw"}, ErrUnsupportedConfig},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.err == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestConfigJSON(t *testing.T) {
	b, err := json.Marshal(LSHConfig(4, 12))
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"lsh","lsh":{"num_tables":4,"hyperplanes_per_table":12}}`, string(b))

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"type":"ivf","ivf":{"num_centroids":32,"nprobe":3}}`), &cfg))
	assert.Equal(t, IVFConfig(32, 3), cfg)
}

func TestConfigCloneAndString(t *testing.T) {
	cfg := IVFConfig(10, 2)
	clone := cfg.Clone()
	clone.IVF.NProbe = 5
	assert.Equal(t, 2, cfg.IVF.NProbe)

	assert.Equal(t, "flat", FlatConfig().String())
	assert.Equal(t, "lsh(tables=8,hyperplanes=16)", Config{Type: TypeLSH}.String())
	assert.Equal(t, "ivf(centroids=10,nprobe=2)", cfg.String())
}
