// Package service implements the library, document, chunk and search
// operations on top of the record stores and the per-library indexes.
//
// Every library has a read-write lock. Writers to a library hold its write
// lock for the whole operation, so writes within one library are totally
// ordered. Searches hold the read lock only long enough to fetch the
// library's current index and then query it without any lock. Input is
// validated before a lock is taken wherever the check does not depend on
// state guarded by the lock.
//
// Optimistic version checks in the stores detect writers that race or
// bypass the locks. A failed check surfaces as model.ErrConflict and is
// never retried here.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/internal/locks"
	"github.com/hupe1980/vecdb/internal/resource"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

// DefaultPageSize is the number of chunks read per page while streaming a
// library into an index rebuild.
const DefaultPageSize = 1000

// Observer receives operation metrics.
type Observer interface {
	RecordUpsert(duration time.Duration, err error)
	RecordBulkUpsert(count, failed int, duration time.Duration)
	RecordSearch(k int, duration time.Duration, err error)
	RecordDelete(duration time.Duration, err error)
	RecordRebuild(vectors int, duration time.Duration, err error)
	RecordMove(chunks int, duration time.Duration, err error)
}

type noopObserver struct{}

func (noopObserver) RecordUpsert(time.Duration, error)        {}
func (noopObserver) RecordBulkUpsert(int, int, time.Duration) {}
func (noopObserver) RecordSearch(int, time.Duration, error)   {}
func (noopObserver) RecordDelete(time.Duration, error)        {}
func (noopObserver) RecordRebuild(int, time.Duration, error)  {}
func (noopObserver) RecordMove(int, time.Duration, error)     {}

// Deps are the collaborators shared by all services.
type Deps struct {
	Libraries store.LibraryStore
	Documents store.DocumentStore
	Chunks    store.ChunkStore

	Indexes   *index.Registry
	Locks     *locks.Registry
	Resources *resource.Controller

	Logger   *slog.Logger
	Observer Observer

	// PageSize is the chunk page size used by rebuilds. Zero means
	// DefaultPageSize.
	PageSize int
}

func (d *Deps) withDefaults() *Deps {
	out := *d
	if out.Indexes == nil {
		out.Indexes = index.NewRegistry()
	}
	if out.Locks == nil {
		out.Locks = locks.NewRegistry()
	}
	if out.Resources == nil {
		out.Resources = resource.NewController(resource.Config{})
	}
	if out.Logger == nil {
		out.Logger = slog.New(slog.DiscardHandler)
	}
	if out.Observer == nil {
		out.Observer = noopObserver{}
	}
	if out.PageSize <= 0 {
		out.PageSize = DefaultPageSize
	}
	return &out
}

// lockLibrary acquires the library's write lock and returns its release.
func (d *Deps) lockLibrary(ctx context.Context, id uuid.UUID) (func(), error) {
	l := d.Locks.For(id)
	if err := l.Lock(ctx); err != nil {
		return nil, err
	}
	return l.Unlock, nil
}

// liveIndex returns the library's current index. The caller holds the
// library's write lock. The library is read again so that one deleted while
// waiting for the lock reports not found instead of getting a new index.
func (d *Deps) liveIndex(ctx context.Context, libraryID uuid.UUID) (index.Index, error) {
	lib, err := d.Libraries.Get(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	idx, err := d.Indexes.GetOrCreate(lib.ID, lib.IndexConfig, lib.EmbeddingDim)
	if err != nil {
		return nil, translateError(err)
	}
	return idx, nil
}

// translateError maps lower-layer sentinels onto the model's error kinds.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	// Already classified.
	if errors.Is(err, model.ErrValidation) || errors.Is(err, model.ErrNotFound) || errors.Is(err, model.ErrConflict) {
		return err
	}

	var dm *index.ErrDimensionMismatch
	if errors.As(err, &dm) {
		return model.NewDimensionMismatch(dm.Expected, dm.Actual, err)
	}
	if errors.Is(err, distance.ErrLengthMismatch) {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if errors.Is(err, index.ErrUnsupportedConfig) || errors.Is(err, index.ErrInvalidParameter) {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}
	if errors.Is(err, index.ErrInvalidK) || errors.Is(err, distance.ErrUnsupportedMetric) {
		return fmt.Errorf("%w: %w", model.ErrValidation, err)
	}

	return err
}

// undoLog collects compensating actions for a multi-step write.
type undoLog struct {
	steps []func(ctx context.Context) error
}

func (u *undoLog) push(step func(ctx context.Context) error) {
	u.steps = append(u.steps, step)
}

// rollback runs the recorded steps in reverse order. A failing step is
// logged and does not stop the remaining ones.
func (u *undoLog) rollback(ctx context.Context, logger *slog.Logger, op string) {
	// Compensation must run even if the caller's context is done.
	ctx = context.WithoutCancel(ctx)
	for i := len(u.steps) - 1; i >= 0; i-- {
		if err := u.steps[i](ctx); err != nil {
			logger.ErrorContext(ctx, "compensation failed", "op", op, "step", i, "error", err)
		}
	}
	u.steps = nil
}

// logFailure logs version conflicts at warn level and everything
// unexpected at error level. Validation and not-found errors are the
// caller's concern and are not logged.
func logFailure(ctx context.Context, logger *slog.Logger, op string, err error, args ...any) {
	switch {
	case err == nil, errors.Is(err, model.ErrValidation), errors.Is(err, model.ErrNotFound):
	case errors.Is(err, model.ErrConflict):
		logger.WarnContext(ctx, op+" conflict", append(args, "error", err)...)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.DebugContext(ctx, op+" canceled", append(args, "error", err)...)
	default:
		logger.ErrorContext(ctx, op+" failed", append(args, "error", err)...)
	}
}
