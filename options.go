package vecdb

import (
	"log/slog"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/store"
)

type options struct {
	backend          store.Backend
	metricsCollector MetricsCollector
	logger           *Logger

	seed   int64
	seeded bool

	rebuildConcurrency int64
	rebuildRate        int64
	pageSize           int

	defaultIndex index.Config
}

// Option configures a DB.
type Option func(*options)

// WithStore sets the record store backend. The DB takes ownership and
// closes it on Close. The default is an in-memory store.
//
// Example with Badger:
//
//	backend, _ := badgerstore.Open()
//	db, _ := vecdb.New(vecdb.WithStore(backend))
func WithStore(b store.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &vecdb.BasicMetricsCollector{}
//	db, _ := vecdb.New(vecdb.WithMetricsCollector(metrics))
//	// ... use db ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := vecdb.NewJSONLogger(slog.LevelInfo)
//	db, _ := vecdb.New(vecdb.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithSeed makes index construction deterministic. Every index the DB
// creates derives its seed from this base seed and its creation order.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
		o.seeded = true
	}
}

// WithRebuildConcurrency bounds the number of index rebuilds running at
// the same time. Default: 1.
func WithRebuildConcurrency(n int) Option {
	return func(o *options) {
		o.rebuildConcurrency = int64(n)
	}
}

// WithRebuildRate limits how many chunk rows per second are streamed into
// index rebuilds. Zero means unlimited.
func WithRebuildRate(rowsPerSecond int) Option {
	return func(o *options) {
		o.rebuildRate = int64(rowsPerSecond)
	}
}

// WithPageSize sets the number of chunks read per page during rebuilds
// and cascading deletes. Default: 1000.
func WithPageSize(n int) Option {
	return func(o *options) {
		o.pageSize = n
	}
}

// WithDefaultIndex sets the index configuration NewLibrary starts from.
// Default: flat.
func WithDefaultIndex(cfg index.Config) Option {
	return func(o *options) {
		o.defaultIndex = cfg.Clone()
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
		defaultIndex:     index.FlatConfig(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
