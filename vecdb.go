package vecdb

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/index"
	_ "github.com/hupe1980/vecdb/index/flat" // register index factories
	_ "github.com/hupe1980/vecdb/index/ivf"
	_ "github.com/hupe1980/vecdb/index/lsh"
	"github.com/hupe1980/vecdb/internal/locks"
	"github.com/hupe1980/vecdb/internal/resource"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/service"
	"github.com/hupe1980/vecdb/store"
	"github.com/hupe1980/vecdb/store/memory"
)

// Re-exported service types.
type (
	Query         = service.Query
	Filters       = service.Filters
	Hit           = service.Hit
	CreateLibrary = service.CreateLibrary
	WriteOptions  = service.WriteOptions
)

// WithExpectedVersion makes a write conditional on the caller's version.
func WithExpectedVersion(v int64) func(o *WriteOptions) {
	return service.WithExpectedVersion(v)
}

// DB is an embedded multi-library vector database.
//
// All methods are safe for concurrent use.
type DB struct {
	backend  store.Backend
	services *service.Services
	indexes  *index.Registry
	logger   *Logger
	metrics  MetricsCollector

	defaultIndex index.Config

	closeOnce sync.Once
	closeErr  error
}

// New creates a DB. Without WithStore it keeps all records in memory.
//
// Indexes live in memory only. When the store outlives the process, call
// Bootstrap after New to rebuild them from the stored chunks.
func New(optFns ...Option) (*DB, error) {
	opts := applyOptions(optFns)

	if opts.rebuildConcurrency < 0 {
		return nil, fmt.Errorf("%w: rebuild concurrency must be >= 0, got %d", ErrValidation, opts.rebuildConcurrency)
	}
	if opts.rebuildRate < 0 {
		return nil, fmt.Errorf("%w: rebuild rate must be >= 0, got %d", ErrValidation, opts.rebuildRate)
	}
	if opts.pageSize < 0 || opts.pageSize > store.MaxLimit {
		return nil, fmt.Errorf("%w: page size must be in [0, %d], got %d", ErrValidation, store.MaxLimit, opts.pageSize)
	}
	if err := opts.defaultIndex.Validate(); err != nil {
		return nil, fmt.Errorf("%w: default index: %v", ErrValidation, err)
	}

	backend := opts.backend
	if backend == nil {
		backend = memory.New()
	}

	var indexOpts []func(o *index.Options)
	if opts.seeded {
		indexOpts = append(indexOpts, index.WithSeed(opts.seed))
	}
	indexes := index.NewRegistry(indexOpts...)

	services := service.New(service.Deps{
		Libraries: backend.Libraries(),
		Documents: backend.Documents(),
		Chunks:    backend.Chunks(),
		Indexes:   indexes,
		Locks:     locks.NewRegistry(),
		Resources: resource.NewController(resource.Config{
			MaxRebuilds:   opts.rebuildConcurrency,
			RowsPerSecond: opts.rebuildRate,
		}),
		Logger:   opts.logger.Logger,
		Observer: opts.metricsCollector,
		PageSize: opts.pageSize,
	})

	return &DB{
		backend:  backend,
		services: services,
		indexes:  indexes,
		logger:   opts.logger,
		metrics:  opts.metricsCollector,

		defaultIndex: opts.defaultIndex,
	}, nil
}

// Bootstrap rebuilds the index of every stored library.
func (db *DB) Bootstrap(ctx context.Context) error {
	err := db.services.Libraries.Bootstrap(ctx)
	if err != nil {
		db.logger.LogBootstrap(ctx, db.indexes.Len(), err)
	}
	return err
}

// Libraries returns the library service.
func (db *DB) Libraries() *service.LibraryService { return db.services.Libraries }

// Documents returns the document service.
func (db *DB) Documents() *service.DocumentService { return db.services.Documents }

// Chunks returns the chunk service.
func (db *DB) Chunks() *service.ChunkService { return db.services.Chunks }

// Searcher returns the search service.
func (db *DB) Searcher() *service.SearchService { return db.services.Search }

// Upsert inserts or replaces a chunk. See service.ChunkService.Upsert.
func (db *DB) Upsert(ctx context.Context, chunk *model.Chunk, optFns ...func(o *WriteOptions)) (*model.Chunk, error) {
	return db.services.Chunks.Upsert(ctx, chunk, optFns...)
}

// KNNSearch runs q against the library. See service.SearchService.Search.
func (db *DB) KNNSearch(ctx context.Context, libraryID uuid.UUID, q Query) ([]Hit, error) {
	return db.services.Search.Search(ctx, libraryID, q)
}

// Stats returns the statistics of the library's live index.
func (db *DB) Stats(libraryID uuid.UUID) (index.Stats, error) {
	idx, ok := db.indexes.Get(libraryID)
	if !ok {
		return index.Stats{}, model.NotFound("index", libraryID)
	}
	return idx.Stats(), nil
}
