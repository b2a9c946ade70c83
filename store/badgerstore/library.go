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

type libraryStore struct {
	s *Store
}

var _ store.LibraryStore = (*libraryStore)(nil)

func (ls *libraryStore) Add(_ context.Context, lib *model.Library) error {
	seq, err := ls.s.nextSeq()
	if err != nil {
		return err
	}

	now := store.Now()
	rec := lib.Clone()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	val, err := encodeRecord(seq, rec)
	if err != nil {
		return err
	}

	key := primaryKey(prefixLibrary, lib.ID)
	err = ls.s.db.Update(func(txn *badger.Txn) error {
		if _, _, found, err := getRecord(txn, key); err != nil {
			return err
		} else if found {
			return store.AlreadyExists(store.KindLibrary, lib.ID)
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(libraryOrderKey(seq), lib.ID[:])
	})
	if errors.Is(err, badger.ErrConflict) {
		return store.AlreadyExists(store.KindLibrary, lib.ID)
	}
	if err != nil {
		return conflictOr(err, store.KindLibrary, lib.ID, 0)
	}

	lib.Version, lib.CreatedAt, lib.UpdatedAt = rec.Version, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (ls *libraryStore) Get(_ context.Context, id uuid.UUID) (*model.Library, error) {
	var lib *model.Library
	err := ls.s.db.View(func(txn *badger.Txn) error {
		var err error
		lib, err = getLibrary(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return lib, nil
}

func (ls *libraryStore) List(_ context.Context) ([]*model.Library, error) {
	var out []*model.Library
	err := ls.s.db.View(func(txn *badger.Txn) error {
		ids, err := ownedIDs(txn, []byte{prefixLibraryOrder}, 0, -1)
		if err != nil {
			return err
		}
		out = make([]*model.Library, 0, len(ids))
		for _, id := range ids {
			lib, err := getLibrary(txn, id)
			if err != nil {
				return err
			}
			out = append(out, lib)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list libraries: %w", err)
	}
	return out, nil
}

func (ls *libraryStore) UpdateOnVersion(_ context.Context, lib *model.Library, expected int64) error {
	key := primaryKey(prefixLibrary, lib.ID)
	rec := lib.Clone()

	err := ls.s.db.Update(func(txn *badger.Txn) error {
		seq, body, found, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return model.Conflict(store.KindLibrary, lib.ID, expected)
		}
		stored, err := store.DecodeLibrary(body)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			return model.Conflict(store.KindLibrary, lib.ID, expected)
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
		return conflictOr(err, store.KindLibrary, lib.ID, expected)
	}

	lib.Version, lib.CreatedAt, lib.UpdatedAt = rec.Version, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (ls *libraryStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	key := primaryKey(prefixLibrary, id)
	var deleted bool

	err := ls.s.update(func(txn *badger.Txn) error {
		deleted = false
		seq, _, found, err := getRecord(txn, key)
		if err != nil || !found {
			return err
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
		deleted = true
		return txn.Delete(libraryOrderKey(seq))
	})
	if err != nil {
		return false, fmt.Errorf("badgerstore: delete library %s: %w", id, err)
	}
	return deleted, nil
}

func getLibrary(txn *badger.Txn, id uuid.UUID) (*model.Library, error) {
	_, body, found, err := getRecord(txn, primaryKey(prefixLibrary, id))
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, model.NotFound(store.KindLibrary, id)
	}
	return store.DecodeLibrary(body)
}
