package service

import (
	"context"
	"fmt"

	"github.com/hupe1980/vecdb/index"
	"github.com/hupe1980/vecdb/model"
)

// buildIndex creates an empty index for lib's current configuration and
// fills it with every embedded chunk of the library, streamed from the
// chunk store page by page. The result is not registered; callers swap it
// in once it is complete.
func (d *Deps) buildIndex(ctx context.Context, lib *model.Library) (index.Index, int, error) {
	if err := d.Resources.AcquireRebuild(ctx); err != nil {
		return nil, 0, err
	}
	defer d.Resources.ReleaseRebuild()

	idx, err := d.Indexes.New(lib.IndexConfig, lib.EmbeddingDim)
	if err != nil {
		return nil, 0, translateError(err)
	}

	items, err := d.collectItems(ctx, lib)
	if err != nil {
		return nil, 0, err
	}

	if err := idx.Rebuild(items); err != nil {
		return nil, 0, translateError(err)
	}
	return idx, len(items), nil
}

func (d *Deps) collectItems(ctx context.Context, lib *model.Library) ([]index.Item, error) {
	pageSize := d.listPageSize()
	var items []index.Item

	for offset := 0; ; {
		page, err := d.Chunks.ListByLibrary(ctx, lib.ID, pageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("listing chunks of library %s: %w", lib.ID, err)
		}
		if len(page) == 0 {
			return items, nil
		}
		if err := d.Resources.WaitRows(ctx, len(page)); err != nil {
			return nil, err
		}

		for _, c := range page {
			if !c.HasEmbedding() {
				continue
			}
			if err := model.CheckDimension(lib.EmbeddingDim, c.Embedding); err != nil {
				d.Logger.WarnContext(ctx, "skipping chunk with mismatched embedding",
					"library_id", lib.ID,
					"chunk_id", c.ID,
					"error", err,
				)
				continue
			}
			items = append(items, index.Item{ID: c.ID, Vector: c.Embedding})
		}

		if len(page) < pageSize {
			return items, nil
		}
		offset += len(page)
	}
}
