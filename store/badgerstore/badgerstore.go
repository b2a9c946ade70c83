// Package badgerstore implements the record stores on BadgerDB.
//
// Records are msgpack encoded and prefixed with their 8-byte insertion
// sequence number. Secondary keys map an owner id and a sequence number
// to the owned record id, so prefix scans list records in insertion
// order. Optimistic version checks run inside a read-write transaction;
// Badger's serializable snapshot isolation turns a concurrent commit on
// the same record into a conflict.
//
// Key layout:
//
//	l/<library>              library record
//	L/<seq>                  library id (list order)
//	d/<document>             document record
//	D/<library>/<seq>        document id
//	c/<chunk>                chunk record
//	C/<library>/<seq>        chunk id
//	E/<document>/<seq>       chunk id
package badgerstore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

const (
	prefixLibrary       = 'l'
	prefixLibraryOrder  = 'L'
	prefixDocument      = 'd'
	prefixDocByLibrary  = 'D'
	prefixChunk         = 'c'
	prefixChunkByLib    = 'C'
	prefixChunkByDoc    = 'E'
	sequenceBandwidth   = 256
	deleteBatchSize     = 1000
	maxConflictRetries  = 8
	seqSize             = 8
	recordHeaderSize    = seqSize
	ownerKeySize        = 1 + 16 + seqSize
	primaryKeySize      = 1 + 16
	libraryOrderKeySize = 1 + seqSize
)

// Options configures the Badger backend.
type Options struct {
	// Dir is the data directory. Empty runs Badger in memory-only mode.
	Dir string

	// Logger receives Badger's warnings and errors. Nil discards them.
	Logger *slog.Logger
}

// Store is a Badger-backed store.Backend.
type Store struct {
	db  *badger.DB
	seq *badger.Sequence

	libraries *libraryStore
	documents *documentStore
	chunks    *chunkStore
}

var _ store.Backend = (*Store)(nil)

// Open opens a Badger database. Without options the database lives in
// memory only.
func Open(optFns ...func(o *Options)) (*Store, error) {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	dbOpts := badger.DefaultOptions(opts.Dir)
	if opts.Dir == "" {
		dbOpts = dbOpts.WithInMemory(true)
	}
	dbOpts = dbOpts.WithLogger(badgerLogger{logger: opts.Logger})

	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}

	seq, err := db.GetSequence([]byte("!seq"), sequenceBandwidth)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badgerstore: sequence: %w", err)
	}

	s := &Store{db: db, seq: seq}
	s.libraries = &libraryStore{s: s}
	s.documents = &documentStore{s: s}
	s.chunks = &chunkStore{s: s}
	return s, nil
}

// Libraries returns the library store.
func (s *Store) Libraries() store.LibraryStore { return s.libraries }

// Documents returns the document store.
func (s *Store) Documents() store.DocumentStore { return s.documents }

// Chunks returns the chunk store.
func (s *Store) Chunks() store.ChunkStore { return s.chunks }

// Close releases the sequence and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func (s *Store) nextSeq() (uint64, error) {
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("badgerstore: next sequence: %w", err)
	}
	return n, nil
}

// update runs fn in a read-write transaction, retrying when Badger
// reports a conflicting concurrent commit. Only idempotent writes use it.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for range maxConflictRetries {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func primaryKey(prefix byte, id uuid.UUID) []byte {
	k := make([]byte, 0, primaryKeySize)
	k = append(k, prefix)
	return append(k, id[:]...)
}

func ownerPrefix(prefix byte, owner uuid.UUID) []byte {
	return primaryKey(prefix, owner)
}

func ownerKey(prefix byte, owner uuid.UUID, seq uint64) []byte {
	k := make([]byte, 0, ownerKeySize)
	k = append(k, prefix)
	k = append(k, owner[:]...)
	return binary.BigEndian.AppendUint64(k, seq)
}

func libraryOrderKey(seq uint64) []byte {
	k := make([]byte, 0, libraryOrderKeySize)
	k = append(k, prefixLibraryOrder)
	return binary.BigEndian.AppendUint64(k, seq)
}

// encodeRecord prepends the sequence number to the encoded entity.
func encodeRecord(seq uint64, v any) ([]byte, error) {
	body, err := store.Encode(v)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, recordHeaderSize+len(body))
	out = binary.BigEndian.AppendUint64(out, seq)
	return append(out, body...), nil
}

func splitRecord(val []byte) (uint64, []byte, error) {
	if len(val) < recordHeaderSize {
		return 0, nil, fmt.Errorf("badgerstore: corrupt record of %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val[:seqSize]), val[recordHeaderSize:], nil
}

// getRecord loads the raw record stored under key. found is false when
// the key is absent.
func getRecord(txn *badger.Txn, key []byte) (seq uint64, body []byte, found bool, err error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil, false, nil
	}
	if err != nil {
		return 0, nil, false, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, nil, false, err
	}
	seq, body, err = splitRecord(val)
	if err != nil {
		return 0, nil, false, err
	}
	return seq, body, true, nil
}

// ownedIDs scans the ids stored under an owner prefix in key order,
// skipping offset entries and returning at most limit ids. A negative
// limit returns everything after offset.
func ownedIDs(txn *badger.Txn, prefix []byte, offset, limit int) ([]uuid.UUID, error) {
	iterOpts := badger.DefaultIteratorOptions
	iterOpts.Prefix = prefix
	it := txn.NewIterator(iterOpts)
	defer it.Close()

	var ids []uuid.UUID
	skipped := 0
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if skipped < offset {
			skipped++
			continue
		}
		if limit >= 0 && len(ids) >= limit {
			break
		}
		var id uuid.UUID
		if err := it.Item().Value(func(val []byte) error {
			var err error
			id, err = uuid.FromBytes(val)
			return err
		}); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// conflictOr maps Badger's transaction conflict to the model's conflict
// kind and wraps everything else.
func conflictOr(err error, kind string, id uuid.UUID, expected int64) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, badger.ErrConflict) {
		return model.Conflict(kind, id, expected)
	}
	var ce *model.ConflictError
	if errors.As(err, &ce) || errors.Is(err, model.ErrConflict) {
		return err
	}
	return fmt.Errorf("badgerstore: %s %s: %w", kind, id, err)
}

// badgerLogger forwards Badger's warnings and errors to slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(f string, v ...any) {
	if l.logger != nil {
		l.logger.Error(fmt.Sprintf(f, v...), "component", "badger")
	}
}

func (l badgerLogger) Warningf(f string, v ...any) {
	if l.logger != nil {
		l.logger.Warn(fmt.Sprintf(f, v...), "component", "badger")
	}
}

func (badgerLogger) Infof(string, ...any)  {}
func (badgerLogger) Debugf(string, ...any) {}
