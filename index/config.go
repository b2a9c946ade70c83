package index

import "fmt"

// Type is an index configuration variant.
type Type string

const (
	TypeFlat Type = "flat"
	TypeLSH  Type = "lsh"
	TypeIVF  Type = "ivf"
)

// Parameter defaults and bounds.
const (
	DefaultLSHNumTables           = 8
	DefaultLSHHyperplanesPerTable = 16
	MaxLSHNumTables               = 64
	MaxLSHHyperplanesPerTable     = 64

	DefaultIVFNumCentroids = 64
	DefaultIVFNProbe       = 4
)

// LSHParams configures a random hyperplane LSH index.
type LSHParams struct {
	NumTables           int `json:"num_tables" yaml:"num_tables" msgpack:"num_tables"`
	HyperplanesPerTable int `json:"hyperplanes_per_table" yaml:"hyperplanes_per_table" msgpack:"hyperplanes_per_table"`
}

// IVFParams configures an inverted file index.
type IVFParams struct {
	NumCentroids int `json:"num_centroids" yaml:"num_centroids" msgpack:"num_centroids"`
	NProbe       int `json:"nprobe" yaml:"nprobe" msgpack:"nprobe"`
}

// Config selects an index variant and its parameters.
// Only the parameter block matching Type is consulted.
type Config struct {
	Type Type       `json:"type" yaml:"type" msgpack:"type"`
	LSH  *LSHParams `json:"lsh,omitempty" yaml:"lsh,omitempty" msgpack:"lsh,omitempty"`
	IVF  *IVFParams `json:"ivf,omitempty" yaml:"ivf,omitempty" msgpack:"ivf,omitempty"`
}

// FlatConfig returns a flat index configuration.
func FlatConfig() Config {
	return Config{Type: TypeFlat}
}

// LSHConfig returns an LSH index configuration.
func LSHConfig(numTables, hyperplanesPerTable int) Config {
	return Config{Type: TypeLSH, LSH: &LSHParams{NumTables: numTables, HyperplanesPerTable: hyperplanesPerTable}}
}

// IVFConfig returns an IVF index configuration.
func IVFConfig(numCentroids, nprobe int) Config {
	return Config{Type: TypeIVF, IVF: &IVFParams{NumCentroids: numCentroids, NProbe: nprobe}}
}

// WithDefaults returns a copy of c with an empty type mapped to flat and
// missing or zero parameters replaced by their defaults.
func (c Config) WithDefaults() Config {
	out := Config{Type: c.Type}
	if out.Type == "" {
		out.Type = TypeFlat
	}
	switch out.Type {
	case TypeLSH:
		p := LSHParams{}
		if c.LSH != nil {
			p = *c.LSH
		}
		if p.NumTables == 0 {
			p.NumTables = DefaultLSHNumTables
		}
		if p.HyperplanesPerTable == 0 {
			p.HyperplanesPerTable = DefaultLSHHyperplanesPerTable
		}
		out.LSH = &p
	case TypeIVF:
		p := IVFParams{}
		if c.IVF != nil {
			p = *c.IVF
		}
		if p.NumCentroids == 0 {
			p.NumCentroids = DefaultIVFNumCentroids
		}
		if p.NProbe == 0 {
			p.NProbe = DefaultIVFNProbe
		}
		out.IVF = &p
	}
	return out
}

// Validate checks the variant and its parameter bounds after defaults
// have been applied.
func (c Config) Validate() error {
	c = c.WithDefaults()
	switch c.Type {
	case TypeFlat:
		return nil
	case TypeLSH:
		if c.LSH.NumTables < 1 || c.LSH.NumTables > MaxLSHNumTables {
			return fmt.Errorf("%w: num_tables must be in [1, %d], got %d", ErrInvalidParameter, MaxLSHNumTables, c.LSH.NumTables)
		}
		if c.LSH.HyperplanesPerTable < 1 || c.LSH.HyperplanesPerTable > MaxLSHHyperplanesPerTable {
			return fmt.Errorf("%w: hyperplanes_per_table must be in [1, %d], got %d", ErrInvalidParameter, MaxLSHHyperplanesPerTable, c.LSH.HyperplanesPerTable)
		}
		return nil
	case TypeIVF:
		if c.IVF.NumCentroids < 1 {
			return fmt.Errorf("%w: num_centroids must be >= 1, got %d", ErrInvalidParameter, c.IVF.NumCentroids)
		}
		if c.IVF.NProbe < 1 {
			return fmt.Errorf("%w: nprobe must be >= 1, got %d", ErrInvalidParameter, c.IVF.NProbe)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedConfig, c.Type)
	}
}

// Clone returns a deep copy of c.
func (c Config) Clone() Config {
	out := Config{Type: c.Type}
	if c.LSH != nil {
		p := *c.LSH
		out.LSH = &p
	}
	if c.IVF != nil {
		p := *c.IVF
		out.IVF = &p
	}
	return out
}

// String returns a compact human-readable form, e.g. "lsh(tables=8,hyperplanes=16)".
func (c Config) String() string {
	c = c.WithDefaults()
	switch c.Type {
	case TypeLSH:
		return fmt.Sprintf("lsh(tables=%d,hyperplanes=%d)", c.LSH.NumTables, c.LSH.HyperplanesPerTable)
	case TypeIVF:
		return fmt.Sprintf("ivf(centroids=%d,nprobe=%d)", c.IVF.NumCentroids, c.IVF.NProbe)
	default:
		return string(c.Type)
	}
}
