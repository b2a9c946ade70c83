package badgerstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type documentStore struct {
	s *Store
}

var _ store.DocumentStore = (*documentStore)(nil)

func (ds *documentStore) Add(_ context.Context, doc *model.Document) error {
	seq, err := ds.s.nextSeq()
	if err != nil {
		return err
	}

	now := store.Now()
	rec := doc.Clone()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now

	val, err := encodeRecord(seq, rec)
	if err != nil {
		return err
	}

	key := primaryKey(prefixDocument, doc.ID)
	err = ds.s.db.Update(func(txn *badger.Txn) error {
		if _, _, found, err := getRecord(txn, key); err != nil {
			return err
		} else if found {
			return store.AlreadyExists(store.KindDocument, doc.ID)
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(ownerKey(prefixDocByLibrary, doc.LibraryID, seq), doc.ID[:])
	})
	if errors.Is(err, badger.ErrConflict) {
		return store.AlreadyExists(store.KindDocument, doc.ID)
	}
	if err != nil {
		return conflictOr(err, store.KindDocument, doc.ID, 0)
	}

	doc.Version, doc.CreatedAt, doc.UpdatedAt = rec.Version, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (ds *documentStore) Get(_ context.Context, id uuid.UUID) (*model.Document, error) {
	var doc *model.Document
	err := ds.s.db.View(func(txn *badger.Txn) error {
		var err error
		_, doc, err = getDocument(txn, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

type sequencedDocument struct {
	seq uint64
	doc *model.Document
}

func (ds *documentStore) ListByLibrary(_ context.Context, libraryID uuid.UUID, opts store.ListOptions) ([]*model.Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	var matched []sequencedDocument
	err := ds.s.db.View(func(txn *badger.Txn) error {
		ids, err := ownedIDs(txn, ownerPrefix(prefixDocByLibrary, libraryID), 0, -1)
		if err != nil {
			return err
		}
		for _, id := range ids {
			seq, doc, err := getDocument(txn, id)
			if err != nil {
				return err
			}
			if opts.Match(doc) {
				matched = append(matched, sequencedDocument{seq: seq, doc: doc})
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badgerstore: list documents: %w", err)
	}

	slices.SortStableFunc(matched, func(a, b sequencedDocument) int {
		c := opts.Key(a.doc).Compare(opts.Key(b.doc))
		if c == 0 {
			c = cmp.Compare(a.seq, b.seq)
		}
		if opts.Order == store.OrderDesc {
			return -c
		}
		return c
	})

	start, end := store.Page(len(matched), opts.Offset, opts.Limit)
	out := make([]*model.Document, 0, end-start)
	for _, m := range matched[start:end] {
		out = append(out, m.doc)
	}
	return out, nil
}

func (ds *documentStore) UpdateOnVersion(_ context.Context, doc *model.Document, expected int64) error {
	key := primaryKey(prefixDocument, doc.ID)
	rec := doc.Clone()

	err := ds.s.db.Update(func(txn *badger.Txn) error {
		seq, body, found, err := getRecord(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return model.Conflict(store.KindDocument, doc.ID, expected)
		}
		stored, err := store.DecodeDocument(body)
		if err != nil {
			return err
		}
		if stored.Version != expected {
			return model.Conflict(store.KindDocument, doc.ID, expected)
		}

		if stored.LibraryID != rec.LibraryID {
			if err := txn.Delete(ownerKey(prefixDocByLibrary, stored.LibraryID, seq)); err != nil {
				return err
			}
			if err := txn.Set(ownerKey(prefixDocByLibrary, rec.LibraryID, seq), rec.ID[:]); err != nil {
				return err
			}
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
		return conflictOr(err, store.KindDocument, doc.ID, expected)
	}

	doc.Version, doc.CreatedAt, doc.UpdatedAt = rec.Version, rec.CreatedAt, rec.UpdatedAt
	return nil
}

func (ds *documentStore) Delete(_ context.Context, id uuid.UUID) (bool, error) {
	var deleted bool

	err := ds.s.update(func(txn *badger.Txn) error {
		deleted = false
		seq, doc, err := getDocument(txn, id)
		if errors.Is(err, model.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := txn.Delete(primaryKey(prefixDocument, id)); err != nil {
			return err
		}
		deleted = true
		return txn.Delete(ownerKey(prefixDocByLibrary, doc.LibraryID, seq))
	})
	if err != nil {
		return false, fmt.Errorf("badgerstore: delete document %s: %w", id, err)
	}
	return deleted, nil
}

func getDocument(txn *badger.Txn, id uuid.UUID) (uint64, *model.Document, error) {
	seq, body, found, err := getRecord(txn, primaryKey(prefixDocument, id))
	if err != nil {
		return 0, nil, err
	}
	if !found {
		return 0, nil, model.NotFound(store.KindDocument, id)
	}
	doc, err := store.DecodeDocument(body)
	if err != nil {
		return 0, nil, err
	}
	return seq, doc, nil
}
