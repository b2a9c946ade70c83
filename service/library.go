package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

// CreateLibrary describes a new library.
type CreateLibrary struct {
	// ID is optional. A zero ID is replaced with a new one.
	ID           uuid.UUID
	Name         string
	EmbeddingDim int
	// IndexConfig defaults to a flat index.
	IndexConfig index.Config
	Metadata    model.LibraryMetadata
}

// LibraryService manages libraries and their index lifecycles.
type LibraryService struct {
	d *Deps
}

// Create stores a new library and registers an empty index for it.
func (s *LibraryService) Create(ctx context.Context, in CreateLibrary) (*model.Library, error) {
	lib := &model.Library{
		ID:           in.ID,
		Name:         in.Name,
		EmbeddingDim: in.EmbeddingDim,
		IndexConfig:  in.IndexConfig.WithDefaults(),
		Metadata:     in.Metadata.Clone(),
	}
	if lib.ID == uuid.Nil {
		lib.ID = model.NewID()
	}
	if err := lib.Validate(); err != nil {
		return nil, err
	}

	if err := s.d.Libraries.Add(ctx, lib); err != nil {
		logFailure(ctx, s.d.Logger, "library create", err, "library_id", lib.ID)
		return nil, err
	}

	if _, err := s.d.Indexes.GetOrCreate(lib.ID, lib.IndexConfig, lib.EmbeddingDim); err != nil {
		if _, derr := s.d.Libraries.Delete(context.WithoutCancel(ctx), lib.ID); derr != nil {
			s.d.Logger.ErrorContext(ctx, "compensation failed", "op", "library create", "library_id", lib.ID, "error", derr)
		}
		return nil, translateError(err)
	}

	s.d.Logger.InfoContext(ctx, "library created",
		"library_id", lib.ID,
		"name", lib.Name,
		"dimension", lib.EmbeddingDim,
		"index", lib.IndexConfig.String(),
	)
	return lib, nil
}

// Get returns the library or model.ErrNotFound.
func (s *LibraryService) Get(ctx context.Context, id uuid.UUID) (*model.Library, error) {
	return s.d.Libraries.Get(ctx, id)
}

// List returns all libraries in creation order.
func (s *LibraryService) List(ctx context.Context) ([]*model.Library, error) {
	return s.d.Libraries.List(ctx)
}

// UpdateConfig persists a new index configuration and replaces the
// library's index with one of the new kind, rebuilt from the stored
// chunks. Concurrent searches keep using the old index until the new one
// is complete.
func (s *LibraryService) UpdateConfig(ctx context.Context, id uuid.UUID, cfg index.Config, optFns ...func(o *WriteOptions)) (*model.Library, error) {
	opts := applyWriteOptions(optFns)

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, translateError(err)
	}

	lib, err := s.d.Libraries.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	expected := opts.expected(lib.Version)

	unlock, err := s.d.lockLibrary(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	previous := lib.IndexConfig
	lib.IndexConfig = cfg
	if err := s.d.Libraries.UpdateOnVersion(ctx, lib, expected); err != nil {
		logFailure(ctx, s.d.Logger, "library update config", err, "library_id", id)
		return nil, err
	}

	if _, err := s.swapRebuilt(ctx, lib); err != nil {
		lib.IndexConfig = previous
		if rerr := s.d.Libraries.UpdateOnVersion(context.WithoutCancel(ctx), lib, lib.Version); rerr != nil {
			s.d.Logger.ErrorContext(ctx, "compensation failed", "op", "library update config", "library_id", id, "error", rerr)
		}
		return nil, err
	}

	return lib, nil
}

// Rebuild rebuilds the library's index from the stored chunks using its
// current configuration and returns the new index's statistics.
func (s *LibraryService) Rebuild(ctx context.Context, id uuid.UUID) (index.Stats, error) {
	lib, err := s.d.Libraries.Get(ctx, id)
	if err != nil {
		return index.Stats{}, err
	}

	unlock, err := s.d.lockLibrary(ctx, id)
	if err != nil {
		return index.Stats{}, err
	}
	defer unlock()

	// The configuration may have changed while waiting for the lock.
	if lib, err = s.d.Libraries.Get(ctx, id); err != nil {
		return index.Stats{}, err
	}

	idx, err := s.swapRebuilt(ctx, lib)
	if err != nil {
		return index.Stats{}, err
	}
	return idx.Stats(), nil
}

// swapRebuilt builds a complete index for lib and installs it. The caller
// holds the library's write lock.
func (s *LibraryService) swapRebuilt(ctx context.Context, lib *model.Library) (index.Index, error) {
	start := time.Now()

	idx, n, err := s.d.buildIndex(ctx, lib)
	s.d.Observer.RecordRebuild(n, time.Since(start), err)
	if err != nil {
		logFailure(ctx, s.d.Logger, "index rebuild", err, "library_id", lib.ID)
		return nil, err
	}

	s.d.Indexes.Swap(lib.ID, idx)

	s.d.Logger.InfoContext(ctx, "index rebuilt",
		"library_id", lib.ID,
		"index", lib.IndexConfig.String(),
		"vectors", n,
		"duration", time.Since(start),
	)
	return idx, nil
}

// Bootstrap rebuilds the index of every stored library. Libraries are
// rebuilt in parallel, bounded by the rebuild concurrency limit.
func (s *LibraryService) Bootstrap(ctx context.Context) error {
	libs, err := s.d.Libraries.List(ctx)
	if err != nil {
		return fmt.Errorf("listing libraries: %w", err)
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(int(max(s.d.Resources.Config().MaxRebuilds, 1)))

	for _, lib := range libs {
		g.Go(func() error {
			_, err := s.Rebuild(gctx, lib.ID)
			// A library deleted concurrently needs no index.
			if errors.Is(err, model.ErrNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("rebuilding library %s: %w", lib.ID, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	s.d.Logger.InfoContext(ctx, "bootstrap completed",
		"libraries", len(libs),
		"duration", time.Since(start),
	)
	return nil
}

// Delete removes the library with all its documents, chunks and its
// index. Deleting an unknown library is a no-op.
func (s *LibraryService) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := s.delete(ctx, id)
	s.d.Observer.RecordDelete(time.Since(start), err)
	logFailure(ctx, s.d.Logger, "library delete", err, "library_id", id)
	return err
}

func (s *LibraryService) delete(ctx context.Context, id uuid.UUID) error {
	if _, err := s.d.Libraries.Get(ctx, id); err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		return err
	}

	unlock, err := s.d.lockLibrary(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	pageSize := s.d.listPageSize()
	docs, chunks := 0, 0

	// Every page is read from offset zero since the previous one is gone.
	for {
		page, err := s.d.Documents.ListByLibrary(ctx, id, store.ListOptions{Limit: pageSize})
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, doc := range page {
			n, err := s.d.Chunks.DeleteByDocument(ctx, doc.ID)
			if err != nil {
				return err
			}
			chunks += n
			if _, err := s.d.Documents.Delete(ctx, doc.ID); err != nil {
				return err
			}
			docs++
		}
	}

	// Chunks whose document record is already gone.
	for {
		page, err := s.d.Chunks.ListByLibrary(ctx, id, pageSize, 0)
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}
		for _, c := range page {
			if _, err := s.d.Chunks.Delete(ctx, c.ID); err != nil {
				return err
			}
			chunks++
		}
	}

	s.d.Indexes.Remove(id)
	if _, err := s.d.Libraries.Delete(ctx, id); err != nil {
		return err
	}

	s.d.Logger.InfoContext(ctx, "library deleted",
		"library_id", id,
		"documents", docs,
		"chunks", chunks,
	)
	return nil
}
