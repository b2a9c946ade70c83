package model

import (
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/vecdb/index"
)

// MaxEmbeddingDim bounds a library's embedding dimension.
const MaxEmbeddingDim = 8192

// NewID returns a new time-ordered (version 7) UUID.
func NewID() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// Library is a named collection of documents sharing one embedding
// dimension and one index configuration.
type Library struct {
	ID           uuid.UUID       `json:"id" msgpack:"id"`
	Name         string          `json:"name" msgpack:"name"`
	EmbeddingDim int             `json:"embedding_dim" msgpack:"embedding_dim"`
	IndexConfig  index.Config    `json:"index_config" msgpack:"index_config"`
	Metadata     LibraryMetadata `json:"metadata" msgpack:"metadata"`
	Version      int64           `json:"version" msgpack:"version"`
	CreatedAt    time.Time       `json:"created_at" msgpack:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" msgpack:"updated_at"`
}

// Clone returns a deep copy of l.
func (l *Library) Clone() *Library {
	if l == nil {
		return nil
	}
	c := *l
	c.IndexConfig = l.IndexConfig.Clone()
	c.Metadata = l.Metadata.Clone()
	return &c
}

// Validate checks the library's name, dimension and index configuration.
func (l *Library) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return Validationf("library name must not be empty")
	}
	if l.EmbeddingDim < 1 || l.EmbeddingDim > MaxEmbeddingDim {
		return Validationf("embedding_dim must be in [1, %d], got %d", MaxEmbeddingDim, l.EmbeddingDim)
	}
	if err := l.IndexConfig.Validate(); err != nil {
		return Validationf("index_config: %v", err)
	}
	return nil
}

// Document belongs to one library and owns an ordered list of chunk ids.
type Document struct {
	ID        uuid.UUID        `json:"id" msgpack:"id"`
	LibraryID uuid.UUID        `json:"library_id" msgpack:"library_id"`
	Metadata  DocumentMetadata `json:"metadata" msgpack:"metadata"`
	ChunkIDs  []uuid.UUID      `json:"chunk_ids" msgpack:"chunk_ids"`
	Version   int64            `json:"version" msgpack:"version"`
	CreatedAt time.Time        `json:"created_at" msgpack:"created_at"`
	UpdatedAt time.Time        `json:"updated_at" msgpack:"updated_at"`
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata = d.Metadata.Clone()
	c.ChunkIDs = slices.Clone(d.ChunkIDs)
	return &c
}

// HasChunk reports whether id is in the document's chunk list.
func (d *Document) HasChunk(id uuid.UUID) bool {
	return slices.Contains(d.ChunkIDs, id)
}

// RemoveChunk drops id from the chunk list and reports whether it was present.
func (d *Document) RemoveChunk(id uuid.UUID) bool {
	i := slices.Index(d.ChunkIDs, id)
	if i < 0 {
		return false
	}
	d.ChunkIDs = slices.Delete(d.ChunkIDs, i, i+1)
	return true
}

// Chunk is a piece of text with an optional embedding.
type Chunk struct {
	ID         uuid.UUID     `json:"id" msgpack:"id"`
	LibraryID  uuid.UUID     `json:"library_id" msgpack:"library_id"`
	DocumentID uuid.UUID     `json:"document_id" msgpack:"document_id"`
	Text       string        `json:"text" msgpack:"text"`
	Position   int           `json:"position" msgpack:"position"`
	Embedding  []float32     `json:"embedding,omitempty" msgpack:"embedding,omitempty"`
	Metadata   ChunkMetadata `json:"metadata" msgpack:"metadata"`
	Version    int64         `json:"version" msgpack:"version"`
	CreatedAt  time.Time     `json:"created_at" msgpack:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at" msgpack:"updated_at"`
}

// Clone returns a deep copy of c.
func (c *Chunk) Clone() *Chunk {
	if c == nil {
		return nil
	}
	out := *c
	out.Embedding = slices.Clone(c.Embedding)
	out.Metadata = c.Metadata.Clone()
	return &out
}

// HasEmbedding reports whether the chunk carries a vector.
func (c *Chunk) HasEmbedding() bool {
	return c.Embedding != nil
}

// Validate checks the chunk's text, position and, when dim > 0, its
// embedding dimension.
func (c *Chunk) Validate(dim int) error {
	if c.Text == "" {
		return Validationf("chunk text must not be empty")
	}
	if c.Position < 0 {
		return Validationf("chunk position must be >= 0, got %d", c.Position)
	}
	if dim > 0 && c.HasEmbedding() {
		return CheckDimension(dim, c.Embedding)
	}
	return nil
}
