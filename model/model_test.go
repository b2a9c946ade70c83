package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/index"
)

func TestErrors(t *testing.T) {
	id := uuid.New()

	err := NotFound("library", id)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), id.String())

	err = Conflict("chunk", id, 3)
	assert.ErrorIs(t, err, ErrConflict)
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, int64(3), ce.Expected)

	assert.ErrorIs(t, Validationf("bad %d", 1), ErrValidation)

	cause := &index.ErrDimensionMismatch{Expected: 4, Actual: 2}
	dm := NewDimensionMismatch(4, 2, cause)
	assert.ErrorIs(t, dm, ErrValidation)
	var idm *index.ErrDimensionMismatch
	assert.ErrorAs(t, dm, &idm)
	assert.NotErrorIs(t, dm, ErrConflict)

	assert.NoError(t, CheckDimension(2, []float32{1, 2}))
	var mde *DimensionMismatchError
	require.ErrorAs(t, CheckDimension(3, []float32{1, 2}), &mde)
	assert.Equal(t, 3, mde.Expected)
	assert.Equal(t, 2, mde.Actual)
	assert.True(t, errors.Is(mde, ErrValidation))
}

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.Equal(t, uuid.Version(7), a.Version())
	assert.NotEqual(t, a, b)
}

func TestLibraryValidate(t *testing.T) {
	tests := []struct {
		name  string
		lib   Library
		valid bool
	}{
		{"Valid", Library{Name: "docs", EmbeddingDim: 4}, true},
		{"MaxDim", Library{Name: "docs", EmbeddingDim: MaxEmbeddingDim}, true},
		{"EmptyName", Library{Name: "  ", EmbeddingDim: 4}, false},
		{"ZeroDim", Library{Name: "docs"}, false},
		{"HugeDim", Library{Name: "docs", EmbeddingDim: MaxEmbeddingDim + 1}, false},
		{"BadIndex", Library{Name: "docs", EmbeddingDim: 4, IndexConfig: index.Config{Type: "hnsw"}}, false},
		{"BadLSH", Library{Name: "docs", EmbeddingDim: 4, IndexConfig: index.LSHConfig(65, 1)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.lib.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrValidation)
			}
		})
	}
}

func TestChunkValidate(t *testing.T) {
	assert.NoError(t, (&Chunk{Text: "a"}).Validate(4))
	assert.NoError(t, (&Chunk{Text: "a", Embedding: []float32{1, 2}}).Validate(2))
	assert.ErrorIs(t, (&Chunk{}).Validate(4), ErrValidation)
	assert.ErrorIs(t, (&Chunk{Text: "a", Position: -1}).Validate(4), ErrValidation)

	var dm *DimensionMismatchError
	assert.ErrorAs(t, (&Chunk{Text: "a", Embedding: []float32{1}}).Validate(2), &dm)
}

func TestClone(t *testing.T) {
	page := 3
	c := &Chunk{
		ID:        uuid.New(),
		Text:      "hello",
		Embedding: []float32{1, 2},
		Metadata: ChunkMetadata{
			Metadata:   Metadata{Tags: []string{"a"}, Custom: map[string]string{"k": "v"}},
			PageNumber: &page,
		},
	}
	cc := c.Clone()
	cc.Embedding[0] = 9
	cc.Metadata.Tags[0] = "b"
	cc.Metadata.Custom["k"] = "w"
	*cc.Metadata.PageNumber = 7
	assert.Equal(t, float32(1), c.Embedding[0])
	assert.Equal(t, "a", c.Metadata.Tags[0])
	assert.Equal(t, "v", c.Metadata.Custom["k"])
	assert.Equal(t, 3, *c.Metadata.PageNumber)

	d := &Document{ChunkIDs: []uuid.UUID{uuid.New()}, Metadata: DocumentMetadata{Metadata: Metadata{Tags: []string{"x"}}}}
	dc := d.Clone()
	dc.ChunkIDs[0] = uuid.Nil
	dc.Metadata.Tags[0] = "y"
	assert.NotEqual(t, uuid.Nil, d.ChunkIDs[0])
	assert.Equal(t, "x", d.Metadata.Tags[0])

	l := &Library{IndexConfig: index.LSHConfig(2, 2)}
	lc := l.Clone()
	lc.IndexConfig.LSH.NumTables = 5
	assert.Equal(t, 2, l.IndexConfig.LSH.NumTables)

	var nilChunk *Chunk
	assert.Nil(t, nilChunk.Clone())
}

func TestDocumentChunks(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	d := &Document{ChunkIDs: []uuid.UUID{a, b}}
	assert.True(t, d.HasChunk(a))
	assert.True(t, d.RemoveChunk(a))
	assert.False(t, d.RemoveChunk(a))
	assert.Equal(t, []uuid.UUID{b}, d.ChunkIDs)
}

func TestMetadata(t *testing.T) {
	m := Metadata{Tags: []string{"go", "db"}}
	assert.True(t, m.HasTag("go"))
	assert.False(t, m.HasTag("py"))
	assert.True(t, m.HasAnyTag([]string{"py", "db"}))
	assert.False(t, m.HasAnyTag(nil))

	b, err := json.Marshal(ChunkMetadata{Metadata: Metadata{Author: "ann"}, SHA256: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"author":"ann","sha256":"abc"}`, string(b))
}
