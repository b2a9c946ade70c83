// Package sqlite implements the record stores on SQLite using the pure Go
// modernc.org/sqlite driver.
//
// Each entity is a row whose key columns (id, owner ids, version and
// timestamps) are queryable and whose body is the msgpack encoded record.
// Optimistic version checks are a single UPDATE ... WHERE version = ?
// statement, so check and increment happen atomically in the engine.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/hupe1980/vecdb/store"
)

//go:embed schema.sql
var schema string

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Store is a SQLite-backed store.Backend.
type Store struct {
	db *sql.DB

	libraries *libraryStore
	documents *documentStore
	chunks    *chunkStore
}

var _ store.Backend = (*Store)(nil)

// Open opens the database at dsn and creates the schema. An empty dsn or
// MemoryDSN opens a private in-memory database.
func Open(ctx context.Context, dsn string) (*Store, error) {
	inMemory := dsn == "" || dsn == MemoryDSN
	if inMemory {
		dsn = MemoryDSN
	} else {
		dsn += "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to :memory: is a separate database.
	if inMemory {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: creating schema: %w", err)
	}

	s := &Store{db: db}
	s.libraries = &libraryStore{db: db}
	s.documents = &documentStore{db: db}
	s.chunks = &chunkStore{db: db}
	return s, nil
}

// Libraries returns the library store.
func (s *Store) Libraries() store.LibraryStore { return s.libraries }

// Documents returns the document store.
func (s *Store) Documents() store.DocumentStore { return s.documents }

// Chunks returns the chunk store.
func (s *Store) Chunks() store.ChunkStore { return s.chunks }

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// header holds the authoritative key columns of a row.
type header struct {
	id        uuid.UUID
	version   int64
	createdAt time.Time
	updatedAt time.Time
}

func scanHeader(sc scanner, extra ...any) (header, []byte, error) {
	var (
		h         header
		id        string
		createdAt int64
		updatedAt int64
		body      []byte
	)
	dest := append([]any{&id, &h.version, &createdAt, &updatedAt}, extra...)
	dest = append(dest, &body)
	if err := sc.Scan(dest...); err != nil {
		return header{}, nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return header{}, nil, fmt.Errorf("sqlite: parsing id %q: %w", id, err)
	}
	h.id = parsed
	h.createdAt = fromNanos(createdAt)
	h.updatedAt = fromNanos(updatedAt)
	return h, body, nil
}

func toNanos(t time.Time) int64 {
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func rowsAffected(res sql.Result) (int64, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return n, nil
}
