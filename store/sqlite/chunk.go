package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type chunkStore struct {
	db *sql.DB
}

var _ store.ChunkStore = (*chunkStore)(nil)

const chunkColumns = `id, version, created_at, updated_at, library_id, document_id, body`

func (s *chunkStore) Add(ctx context.Context, chunk *model.Chunk) error {
	now := store.Now()
	body, err := store.Encode(chunk)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO chunks (id, library_id, document_id, version, created_at, updated_at, body)
		VALUES (?, ?, ?, 1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, chunk.ID.String(), chunk.LibraryID.String(), chunk.DocumentID.String(), toNanos(now), toNanos(now), body)
	if err != nil {
		return fmt.Errorf("sqlite: inserting chunk: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.AlreadyExists(store.KindChunk, chunk.ID)
	}

	chunk.Version, chunk.CreatedAt, chunk.UpdatedAt = 1, now, now
	return nil
}

func (s *chunkStore) Get(ctx context.Context, id uuid.UUID) (*model.Chunk, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE id = ?`, id.String())
	c, err := scanChunk(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(store.KindChunk, id)
	}
	return c, err
}

func (s *chunkStore) ListByLibrary(ctx context.Context, libraryID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	return s.list(ctx, `library_id`, libraryID, limit, offset)
}

func (s *chunkStore) ListByDocument(ctx context.Context, documentID uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	return s.list(ctx, `document_id`, documentID, limit, offset)
}

func (s *chunkStore) list(ctx context.Context, column string, owner uuid.UUID, limit, offset int) ([]*model.Chunk, error) {
	if limit <= 0 {
		limit = store.DefaultLimit
	}
	offset = max(offset, 0)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+` FROM chunks WHERE `+column+` = ? ORDER BY seq LIMIT ? OFFSET ?`,
		owner.String(), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing chunks: %w", err)
	}
	defer rows.Close()

	var out []*model.Chunk
	for rows.Next() {
		c, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *chunkStore) UpdateOnVersion(ctx context.Context, chunk *model.Chunk, expected int64) error {
	now := store.Now()
	body, err := store.Encode(chunk)
	if err != nil {
		return err
	}

	var createdAt int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE chunks SET library_id = ?, document_id = ?, version = ?, updated_at = ?, body = ?
		WHERE id = ? AND version = ?
		RETURNING created_at
	`, chunk.LibraryID.String(), chunk.DocumentID.String(), expected+1, toNanos(now), body,
		chunk.ID.String(), expected).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conflict(store.KindChunk, chunk.ID, expected)
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating chunk: %w", err)
	}

	chunk.Version, chunk.CreatedAt, chunk.UpdatedAt = expected+1, fromNanos(createdAt), now
	return nil
}

func (s *chunkStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting chunk: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func (s *chunkStore) DeleteByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, documentID.String())
	if err != nil {
		return 0, fmt.Errorf("sqlite: deleting chunks: %w", err)
	}
	n, err := rowsAffected(res)
	return int(n), err
}

func scanChunk(sc scanner) (*model.Chunk, error) {
	var libraryID, documentID string
	h, body, err := scanHeader(sc, &libraryID, &documentID)
	if err != nil {
		return nil, err
	}
	c, err := store.DecodeChunk(body)
	if err != nil {
		return nil, err
	}
	lib, err := uuid.Parse(libraryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parsing library id %q: %w", libraryID, err)
	}
	doc, err := uuid.Parse(documentID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parsing document id %q: %w", documentID, err)
	}
	c.ID, c.LibraryID, c.DocumentID = h.id, lib, doc
	c.Version, c.CreatedAt, c.UpdatedAt = h.version, h.createdAt, h.updatedAt
	return c, nil
}
