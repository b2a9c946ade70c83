package idmap

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap(t *testing.T) {
	m := New[string](4)
	a, b, c := uuid.New(), uuid.New(), uuid.New()

	sa, _, replaced := m.Put(a, "a")
	assert.False(t, replaced)
	sb, _, _ := m.Put(b, "b")
	assert.Equal(t, uint32(0), sa)
	assert.Equal(t, uint32(1), sb)
	assert.Equal(t, 2, m.Len())

	slot, prev, replaced := m.Put(a, "a2")
	assert.True(t, replaced)
	assert.Equal(t, "a", prev)
	assert.Equal(t, sa, slot)

	v, ok := m.Get(a)
	require.True(t, ok)
	assert.Equal(t, "a2", v)

	slot, prev, ok = m.Delete(a)
	require.True(t, ok)
	assert.Equal(t, sa, slot)
	assert.Equal(t, "a2", prev)
	_, ok = m.Get(a)
	assert.False(t, ok)
	_, ok = m.At(sa)
	assert.False(t, ok)

	_, _, ok = m.Delete(a)
	assert.False(t, ok)

	// Freed slot is reused.
	sc, _, _ := m.Put(c, "c")
	assert.Equal(t, sa, sc)
	e, ok := m.At(sc)
	require.True(t, ok)
	assert.Equal(t, c, e.ID)

	_, ok = m.At(99)
	assert.False(t, ok)
}

func TestMapAll(t *testing.T) {
	m := New[int](0)
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i, id := range ids {
		m.Put(id, i)
	}
	m.Delete(ids[1])

	var slots []uint32
	var values []int
	for s, e := range m.All() {
		slots = append(slots, s)
		values = append(values, e.Value)
	}
	assert.Equal(t, []uint32{0, 2}, slots)
	assert.Equal(t, []int{0, 2}, values)
}
