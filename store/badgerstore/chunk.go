package badgerstore

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type chunkStore struct {
	s *Store
}

var _ store.ChunkStore = (*chunkStore)(nil)

func (cs *chunkStore) Add(_ context.Context, chunk *model.Chunk) error {
	seq, err := cs.s.nextSeq()
	if err != nil {
		return err
	}

	now := store.Now()
	rec := chunk.Clone()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	val, err := encodeRecord(seq, rec)
	if err != nil {
		return err
	}

	key := primaryKey(prefixChunk, chunk.ID)
	err = cs.s.db.Update(func(txn *badger.Txn) error {
		if _, _, found, err := getRecord(txn, key); err != nil {
			return err
		} else if found {
			return store.AlreadyExists(store.KindChunk, chunk.ID)
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		if err := txn.Set(ownerKey(prefixChunkByLib, chunk.LibraryID, seq), chunk.ID[:]); err != nil {
			return err
		}
		return txn.Set(ownerKey(prefixChunkByDoc, chunk.DocumentID, seq), chunk.ID[:])
	})
	if errors.Is(err, badger.ErrConflict) {
		return store.AlreadyExists(store.KindChunk, chunk.ID)
	}
	if err != nil {
		return conflictOr(err, store.KindChunk, chunk.ID, 0)
	}

	chunk.Version, chunk.CreatedAt, chunk.UpdatedAt = rec.Version, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (cs *chunkStore) Get(_ context.Context, id uuid.UUID) (*model.Chunk, error) {
	var c *model.Chunk
	err := cs.s.db.View(func(txn *badger.Txn) error {
		var err error
		_, c, err = getChunk(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (cs *chunkStore) ListByLibrary(_ context.Context, libraryID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	return cs.listOwned(ownerPrefix(prefixChunkByLib, libraryID), limit, offset)
}

func (cs *chunkStore) ListByDocument(_ context.Context, documentID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	return cs.listOwned(ownerPrefix(prefixChunkByDoc, documentID), limit, offset)
}

func (cs *chunkStore) listOwned(prefix []byte, limit, offset int) ([]*model.Chunk, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	offset = max(offset, 0)

	var out []*model.Chunk
	err := cs.s.db.View(func(txn *badger.Txn) error {
		ids, err := ownedIDs(txn, prefix, offset, limit)
		if err != nil {
			return err
		}
		out = make([]*model.Chunk, 0, len(ids))
		for _, id := range ids {
			_, c, err := getChunk(txn, id)
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list chunks: %w", err)
	}
	return out, nil
}

func (cs *chunkStore) UpdateOnVersion(_ context.Context, chunk *model.Chunk, expected int64) error {
	key := primaryKey(prefixChunk, chunk.ID)
	rec := chunk.Clone()

	err := cs.s.db.Update(func(txn *badger.Txn) error {
		seq, body, found, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return model.Conflict(store.KindChunk, chunk.ID, expected)
		}
		stored, err := store.DecodeChunk(body)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			return model.Conflict(store.KindChunk, chunk.ID, expected)
		}

		if err := moveOwner(txn, prefixChunkByLib, stored.LibraryID, rec.LibraryID, seq, rec.ID); err != nil {
			return err
		}
		if err := moveOwner(txn, prefixChunkByDoc, stored.DocumentID, rec.DocumentID, seq, rec.ID); err != nil {
			return err
		}

		rec.Version = expected + 1
		rec.CreatedAt = stored.CreatedAt
		rec.UpdatedAt = store.Now()

		val, err := encodeRecord(seq, rec)
		if err != nil {
			return err
		}
		return txn.Set(key, val)
	})
	if err != nil {
		return conflictOr(err, store.KindChunk, chunk.ID, expected)
	}

	chunk.Version, chunk.CreatedAt, chunk.UpdatedAt = rec.Version, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (cs *chunkStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	var deleted bool

	err := cs.s.update(func(txn *badger.Txn) error {
		deleted = false
		seq, c, err := getChunk(txn, id)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		deleted = true
		return deleteChunk(txn, seq, c)
	})
	if err != nil {
		return false, fmt.Errorf("badgerstore: delete chunk %s: %w", id, err)
	}
	return deleted, nil
}

// DeleteByDocument removes the document's chunks in batches so a large
// document never exceeds Badger's transaction size limit.
func (cs *chunkStore) DeleteByDocument(_ context.Context, documentID uuid.UUID) (int, error) {
	prefix := ownerPrefix(prefixChunkByDoc, documentID)
	total := 0

	for {
		var n int
		err := cs.s.update(func(txn *badger.Txn) error {
			n = 0
			ids, err := ownedIDs(txn, prefix, 0, deleteBatchSize)
			if err != nil {
				return err
			}
			for _, id := range ids {
				seq, c, err := getChunk(txn, id)
				if errors.Is(err, model.ErrNotFound) {
					continue
				}
				if err != nil {
					return err
				}
				if err := deleteChunk(txn, seq, c); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return total, fmt.Errorf("badgerstore: delete chunks of document %s: %w", documentID, err)
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}

func deleteChunk(txn *badger.Txn, seq uint64, c *model.Chunk) error {
	if err := txn.Delete(primaryKey(prefixChunk, c.ID)); err != nil {
		return err
	}
	if err := txn.Delete(ownerKey(prefixChunkByLib, c.LibraryID, seq)); err != nil {
		return err
	}
	return txn.Delete(ownerKey(prefixChunkByDoc, c.DocumentID, seq))
}

func moveOwner(txn *badger.Txn, prefix byte, from, to uuid.UUID, seq uint64, id uuid.UUID) error {
	if from == to {
		return nil
	}
	if err := txn.Delete(ownerKey(prefix, from, seq)); err != nil {
		return err
	}
	return txn.Set(ownerKey(prefix, to, seq), id[:])
}

func getChunk(txn *badger.Txn, id uuid.UUID) (uint64, *model.Chunk, error) {
	seq, body, found, err := getRecord(txn, primaryKey(prefixChunk, id))
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, model.NotFound(store.KindChunk, id)
	}
	c, err := store.DecodeChunk(body)
	if err != nil {
		return 0, nil, err
	}
	return seq, c, nil
}
