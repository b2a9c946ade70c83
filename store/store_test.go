package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/model"
)

func TestListOptions(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		o := ListOptions{}.WithDefaults()
		assert.Equal(t, DefaultLimit, o.Limit)
		assert.Equal(t, SortByUpdatedAt, o.SortBy)
		assert.Equal(t, OrderDesc, o.Order)
	})

	t.Run("Validate", func(t *testing.T) {
		tests := []struct {
			name string
			opts ListOptions
			ok   bool
		}{
			{"Zero", ListOptions{}, true},
			{"Full", ListOptions{Limit: 10, Offset: 5, SortBy: SortByCreatedAt, Order: OrderAsc}, true},
			{"NegativeLimit", ListOptions{Limit: -1}, false},
			{"LimitTooLarge", ListOptions{Limit: MaxLimit + 1}, false},
			{"NegativeOffset", ListOptions{Offset: -1}, false},
			{"UnknownSort", ListOptions{SortBy: "name"}, false},
			{"UnknownOrder", ListOptions{Order: "sideways"}, false},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := tt.opts.Validate()
				if tt.ok {
					assert.NoError(t, err)
				} else {
					assert.ErrorIs(t, err, model.ErrValidation)
				}
			})
		}
	})

	t.Run("Match", func(t *testing.T) {
		created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		doc := &model.Document{
			Metadata:  model.DocumentMetadata{Metadata: model.Metadata{Tags: []string{"x"}}},
			CreatedAt: created,
			UpdatedAt: created.Add(time.Hour),
		}

		assert.True(t, ListOptions{}.Match(doc))
		assert.True(t, ListOptions{HasTag: "x"}.Match(doc))
		assert.False(t, ListOptions{HasTag: "y"}.Match(doc))
		assert.False(t, ListOptions{CreatedAfter: created}.Match(doc), "created_after is strict")
		assert.True(t, ListOptions{CreatedAfter: created.Add(-time.Second)}.Match(doc))

		assert.Equal(t, doc.UpdatedAt, ListOptions{}.WithDefaults().Key(doc))
		assert.Equal(t, doc.CreatedAt, ListOptions{SortBy: SortByCreatedAt}.Key(doc))
	})
}

func TestPage(t *testing.T) {
	tests := []struct {
		n, offset, limit int
		start, end       int
	}{
		{10, 0, 3, 0, 3},
		{10, 8, 3, 8, 10},
		{10, 12, 3, 10, 10},
		{10, -1, 3, 0, 3},
		{200, 0, 0, 0, DefaultLimit},
		{0, 0, 5, 0, 0},
	}
	for _, tt := range tests {
		start, end := Page(tt.n, tt.offset, tt.limit)
		assert.Equal(t, tt.start, start)
		assert.Equal(t, tt.end, end)
	}
}

func TestCodec(t *testing.T) {
	page := 3
	c := &model.Chunk{
		ID:        model.NewID(),
		Text:      "hello",
		Embedding: []float32{0.5, -1},
		Metadata: model.ChunkMetadata{
			Metadata:   model.Metadata{Tags: []string{"t"}, Custom: map[string]string{"k": "v"}},
			PageNumber: &page,
		},
		Version:   4,
		CreatedAt: Now(),
	}

	b, err := Encode(c)
	require.NoError(t, err)
	got, err := DecodeChunk(b)
	require.NoError(t, err)

	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, c.Embedding, got.Embedding)
	assert.Equal(t, c.Metadata, got.Metadata)
	assert.Equal(t, c.Version, got.Version)
	assert.True(t, c.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, time.UTC, got.CreatedAt.Location())

	_, err = DecodeLibrary([]byte{0xc1})
	assert.Error(t, err)
}
