package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
)

type documentStore struct {
	db *sql.DB
}

var _ store.DocumentStore = (*documentStore)(nil)

const documentColumns = `id, version, created_at, updated_at, library_id, body`

func (s *documentStore) Add(ctx context.Context, doc *model.Document) error {
	now := store.Now()
	body, tags, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, library_id, version, created_at, updated_at, tags, body)
		VALUES (?, ?, 1, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, doc.ID.String(), doc.LibraryID.String(), toNanos(now), toNanos(now), tags, body)
	if err != nil {
		return fmt.Errorf("sqlite: inserting document: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return store.AlreadyExists(store.KindDocument, doc.ID)
	}

	doc.Version, doc.CreatedAt, doc.UpdatedAt = 1, now, now
	return nil
}

func (s *documentStore) Get(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ?`, id.String())
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, model.NotFound(store.KindDocument, id)
	}
	return doc, err
}

func (s *documentStore) ListByLibrary(ctx context.Context, libraryID uuid.UUID, opts store.ListOptions) ([]*model.Document, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.WithDefaults()

	var (
		query strings.Builder
		args  = []any{libraryID.String()}
	)
	query.WriteString(`SELECT ` + documentColumns + ` FROM documents WHERE library_id = ?`)
	if !opts.CreatedAfter.IsZero() {
		query.WriteString(` AND created_at > ?`)
		args = append(args, toNanos(opts.CreatedAfter))
	}
	if opts.HasTag != "" {
		query.WriteString(` AND EXISTS (SELECT 1 FROM json_each(documents.tags) WHERE json_each.value = ?)`)
		args = append(args, opts.HasTag)
	}

	// SortBy and Order are validated enums.
	dir := "DESC"
	if opts.Order == store.OrderAsc {
		dir = "ASC"
	}
	fmt.Fprintf(&query, ` ORDER BY %s %s, seq %s LIMIT ? OFFSET ?`, string(opts.SortBy), dir, dir)
	args = append(args, opts.Limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing documents: %w", err)
	}
	defer rows.Close()

	var out []*model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (s *documentStore) UpdateOnVersion(ctx context.Context, doc *model.Document, expected int64) error {
	now := store.Now()
	body, tags, err := encodeDocument(doc)
	if err != nil {
		return err
	}

	var createdAt int64
	err = s.db.QueryRowContext(ctx, `
		UPDATE documents SET library_id = ?, version = ?, updated_at = ?, tags = ?, body = ?
		WHERE id = ? AND version = ?
		RETURNING created_at
	`, doc.LibraryID.String(), expected+1, toNanos(now), tags, body, doc.ID.String(), expected).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Conflict(store.KindDocument, doc.ID, expected)
	}
	if err != nil {
		return fmt.Errorf("sqlite: updating document: %w", err)
	}

	doc.Version, doc.CreatedAt, doc.UpdatedAt = expected+1, fromNanos(createdAt), now
	return nil
}

func (s *documentStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, id.String())
	if err != nil {
		return false, fmt.Errorf("sqlite: deleting document: %w", err)
	}
	n, err := rowsAffected(res)
	return n > 0, err
}

// encodeDocument returns the record body and the JSON tag array queried
// by json_each.
func encodeDocument(doc *model.Document) ([]byte, string, error) {
	body, err := store.Encode(doc)
	if err != nil {
		return nil, "", err
	}
	tags := doc.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return nil, "", fmt.Errorf("sqlite: encoding tags: %w", err)
	}
	return body, string(b), nil
}

func scanDocument(sc scanner) (*model.Document, error) {
	var libraryID string
	h, body, err := scanHeader(sc, &libraryID)
	if err != nil {
		return nil, err
	}
	doc, err := store.DecodeDocument(body)
	if err != nil {
		return nil, err
	}
	lib, err := uuid.Parse(libraryID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: parsing library id %q: %w", libraryID, err)
	}
	doc.ID, doc.LibraryID, doc.Version, doc.CreatedAt, doc.UpdatedAt = h.id, lib, h.version, h.createdAt, h.updatedAt
	return doc, nil
}
