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

type libraryStore struct {
	db *sql.DB
}

var _ store.LibraryStore = (*libraryStore)(nil)

const libraryColumns = `id, version, created_at, updated_at, body`

func (s *libraryStore) Add(ctx context.Context, lib *model.Library) error {
	now := store.Now()
	body, err := store.Encode(lib)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO libraries (id, version, created_at, updated_at, body)
		VALUES (?, 1, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, lib.ID.String(), toNanos(now), toNanos(now), body)
	if err != nil {
		return fmt.Errorf("sqlite: inserting library: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.AlreadyExists(store.KindLibrary, lib.ID)
	}

	lib.Version, lib.CreatedAt, lib.UpdatedAt = 1, now, now
	return nil
}

func (s *libraryStore) Get(ctx context.Context, id uuid.UUID) (*model.Library, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+libraryColumns+` FROM libraries WHERE id = ?`, id.String())
	lib, err := scanLibrary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(store.KindLibrary, id)
	}
	return lib, err
}

func (s *libraryStore) List(ctx context.Context) ([]*model.Library, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+libraryColumns+` FROM libraries ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing libraries: %w", err)
	}
	defer rows.Close()

	var out []*model.Library
	for rows.Next() {
		lib, err := scanLibrary(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lib)
	}
	return out, rows.Err()
}

func (s *libraryStore) UpdateOnVersion(ctx context.Context, lib *model.Library, expected int64) error {
	now := store.Now()
	body, err := store.Encode(lib)
	if err != nil {
		return err
	}

	var createdAt int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE libraries SET version = ?, updated_at = ?, body = ?
		WHERE id = ? AND version = ?
		RETURNING created_at
	`, expected+1, toNanos(now), body, lib.ID.String(), expected).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conflict(store.KindLibrary, lib.ID, expected)
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating library: %w", err)
	}

	lib.Version, lib.CreatedAt, lib.UpdatedAt = expected+1, fromNanos(createdAt), now
	return nil
}

func (s *libraryStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting library: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

func scanLibrary(sc scanner) (*model.Library, error) {
	h, body, err := scanHeader(sc)
	if err != nil {
		return nil, err
	}
	lib, err := store.DecodeLibrary(body)
	if err != nil {
		return nil, err
	}
	lib.ID, lib.Version, lib.CreatedAt, lib.UpdatedAt = h.id, h.version, h.createdAt, h.updatedAt
	return lib, nil
}
