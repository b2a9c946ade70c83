// Package config loads vecdb settings from a YAML file.
//
// A minimal file:
//
//	log:
//	  level: debug
//	  format: json
//	store:
//	  backend: sqlite
//	  dsn: /var/lib/vecdb/vecdb.sqlite
//	index:
//	  default:
//	    type: lsh
//	    lsh:
//	      num_tables: 8
//	      hyperplanes_per_table: 12
//	rebuild:
//	  concurrency: 2
//	  rows_per_second: 50000
//	seed: 42
//
// Missing fields keep the values of Default.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hupe1980/vecdb"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/store"
	"github.com/hupe1980/vecdb/store/badgerstore"
	"github.com/hupe1980/vecdb/store/memory"
	"github.com/hupe1980/vecdb/store/sqlite"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("config: invalid")

// Backend names a record store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendBadger Backend = "badger"
	BackendSQLite Backend = "sqlite"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config is the root of the YAML document.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Index   IndexConfig   `yaml:"index"`
	Rebuild RebuildConfig `yaml:"rebuild"`

	// Seed makes index construction deterministic. Nil seeds randomly.
	Seed *int64 `yaml:"seed,omitempty"`
}

// LogConfig selects the log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Backend Backend `yaml:"backend"`
	// Dir is the Badger data directory. Empty keeps Badger in memory.
	Dir string `yaml:"dir,omitempty"`
	// DSN is the SQLite database path. Empty uses an in-memory database.
	DSN string `yaml:"dsn,omitempty"`
}

// IndexConfig holds the index settings for new libraries.
type IndexConfig struct {
	Default index.Config `yaml:"default"`
}

// RebuildConfig bounds index rebuilds.
type RebuildConfig struct {
	Concurrency   int `yaml:"concurrency"`
	RowsPerSecond int `yaml:"rows_per_second"`
	PageSize      int `yaml:"page_size"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: FormatText,
		},
		Store: StoreConfig{
			Backend: BackendMemory,
		},
		Index: IndexConfig{
			Default: index.FlatConfig(),
		},
		Rebuild: RebuildConfig{
			Concurrency: 1,
			PageSize:    store.MaxLimit,
		},
	}
}

// Load reads the file at path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	defer f.Close()

	return Parse(f)
}

// Parse decodes a YAML document from r on top of Default and validates
// the result. Unknown keys are rejected.
func Parse(r io.Reader) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decoding yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.level(); err != nil {
		return err
	}

	switch strings.ToLower(c.Log.Format) {
	case "", FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: log.format must be %q or %q, got %q", ErrInvalid, FormatText, FormatJSON, c.Log.Format)
	}

	switch c.Store.Backend {
	case "", BackendMemory, BackendBadger, BackendSQLite:
	default:
		return fmt.Errorf("%w: unknown store.backend %q", ErrInvalid, c.Store.Backend)
	}

	if err := c.Index.Default.Validate(); err != nil {
		return fmt.Errorf("%w: index.default: %v", ErrInvalid, err)
	}

	if c.Rebuild.Concurrency < 0 {
		return fmt.Errorf("%w: rebuild.concurrency must be >= 0, got %d", ErrInvalid, c.Rebuild.Concurrency)
	}
	if c.Rebuild.RowsPerSecond < 0 {
		return fmt.Errorf("%w: rebuild.rows_per_second must be >= 0, got %d", ErrInvalid, c.Rebuild.RowsPerSecond)
	}
	if c.Rebuild.PageSize < 0 || c.Rebuild.PageSize > store.MaxLimit {
		return fmt.Errorf("%w: rebuild.page_size must be in [0, %d], got %d", ErrInvalid, store.MaxLimit, c.Rebuild.PageSize)
	}
	return nil
}

func (c *Config) level() (slog.Level, error) {
	var lvl slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	return lvl, nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (*vecdb.Logger, error) {
	lvl, err := c.level()
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(c.Log.Format, FormatJSON) {
		return vecdb.NewJSONLoggerTo(w, lvl), nil
	}
	return vecdb.NewTextLoggerTo(w, lvl), nil
}

// OpenBackend opens the configured record store. The caller owns it.
func (c *Config) OpenBackend(ctx context.Context, logger *slog.Logger) (store.Backend, error) {
	switch c.Store.Backend {
	case "", BackendMemory:
		return memory.New(), nil
	case BackendBadger:
		b, err := badgerstore.Open(func(o *badgerstore.Options) {
			o.Dir = c.Store.Dir
			o.Logger = logger
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case BackendSQLite:
		b, err := sqlite.Open(ctx, c.Store.DSN)
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: unknown store.backend %q", ErrInvalid, c.Store.Backend)
	}
}

// Options converts c into DB options. Logs go to stderr. The returned
// options carry an opened backend, which the DB closes on Close.
func (c *Config) Options(ctx context.Context) ([]vecdb.Option, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	logger, err := c.Logger(os.Stderr)
	if err != nil {
		return nil, err
	}

	backend, err := c.OpenBackend(ctx, logger.Logger)
	if err != nil {
		return nil, fmt.Errorf("config: opening %s store: %w", c.Store.Backend, err)
	}

	opts := []vecdb.Option{
		vecdb.WithLogger(logger),
		vecdb.WithStore(backend),
		vecdb.WithDefaultIndex(c.Index.Default),
		vecdb.WithRebuildConcurrency(c.Rebuild.Concurrency),
		vecdb.WithRebuildRate(c.Rebuild.RowsPerSecond),
		vecdb.WithPageSize(c.Rebuild.PageSize),
	}
	if c.Seed != nil {
		opts = append(opts, vecdb.WithSeed(*c.Seed))
	}
	return opts, nil
}

// Marshal encodes c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
