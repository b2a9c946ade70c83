package badgerstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/store"
	"github.com/hupe1980/vecdb/store/storetest"
)

func TestConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Backend {
		s, err := Open()
		require.NoError(t, err)
		return s
	})
}

func TestOnDisk(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(func(o *Options) { o.Dir = dir })
	require.NoError(t, err)

	lib := &model.Library{ID: model.NewID(), Name: "persisted", EmbeddingDim: 3}
	require.NoError(t, s.Libraries().Add(t.Context(), lib))
	require.NoError(t, s.Close())

	s, err = Open(func(o *Options) { o.Dir = dir })
	require.NoError(t, err)
	defer func() { assert.NoError(t, s.Close()) }()

	got, err := s.Libraries().Get(t.Context(), lib.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.Name)
	assert.Equal(t, int64(1), got.Version)
}

func TestKeys(t *testing.T) {
	id := model.NewID()

	k := ownerKey(prefixChunkByLib, id, 258)
	assert.Len(t, k, ownerKeySize)
	assert.Equal(t, byte(prefixChunkByLib), k[0])
	assert.Equal(t, id[:], k[1:17])
	assert.Equal(t, []byte{0, 0, 0, 0, 0, 0, 1, 2}, k[17:])

	// Sequence numbers sort in key order.
	assert.Less(t, string(ownerKey(prefixChunkByLib, id, 255)), string(ownerKey(prefixChunkByLib, id, 256)))

	val, err := encodeRecord(7, map[string]int{"a": 1})
	require.NoError(t, err)
	seq, body, err := splitRecord(val)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), seq)
	assert.NotEmpty(t, body)

	_, _, err = splitRecord([]byte{1, 2})
	assert.Error(t, err)
}
