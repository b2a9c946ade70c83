// Package idmap maps chunk ids to dense uint32 slots.
//
// Posting lists hold slots rather than UUIDs so they fit in roaring
// bitmaps. Slots freed by Delete are reused by later inserts.
// A Map is not safe for concurrent use; the owning index guards it.
package idmap

import (
	"iter"

	"github.com/google/uuid"
)

// Entry is a live (id, value) pair.
type Entry[V any] struct {
	ID    uuid.UUID
	Value V
}

// Map assigns every id a stable slot while it is live.
type Map[V any] struct {
	slots   map[uuid.UUID]uint32
	entries []Entry[V]
	live    []bool
	free    []uint32
}

// New creates an empty map sized for capacity entries.
func New[V any](capacity int) *Map[V] {
	return &Map[V]{
		slots:   make(map[uuid.UUID]uint32, capacity),
		entries: make([]Entry[V], 0, capacity),
		live:    make([]bool, 0, capacity),
	}
}

// Len returns the number of live entries.
func (m *Map[V]) Len() int {
	return len(m.slots)
}

// Slot returns the slot of id.
func (m *Map[V]) Slot(id uuid.UUID) (uint32, bool) {
	s, ok := m.slots[id]
	return s, ok
}

// Get returns the value stored for id.
func (m *Map[V]) Get(id uuid.UUID) (V, bool) {
	s, ok := m.slots[id]
	if !ok {
		var zero V
		return zero, false
	}
	return m.entries[s].Value, true
}

// Put stores v under id. An existing id keeps its slot and its previous
// value is returned with replaced set.
func (m *Map[V]) Put(id uuid.UUID, v V) (slot uint32, prev V, replaced bool) {
	if s, ok := m.slots[id]; ok {
		prev = m.entries[s].Value
		m.entries[s].Value = v
		return s, prev, true
	}

	if n := len(m.free); n > 0 {
		slot = m.free[n-1]
		m.free = m.free[:n-1]
		m.entries[slot] = Entry[V]{ID: id, Value: v}
		m.live[slot] = true
	} else {
		slot = uint32(len(m.entries))
		m.entries = append(m.entries, Entry[V]{ID: id, Value: v})
		m.live = append(m.live, true)
	}
	m.slots[id] = slot
	return slot, prev, false
}

// Delete removes id and returns its slot and value.
func (m *Map[V]) Delete(id uuid.UUID) (slot uint32, prev V, ok bool) {
	slot, ok = m.slots[id]
	if !ok {
		return 0, prev, false
	}
	prev = m.entries[slot].Value
	delete(m.slots, id)
	m.entries[slot] = Entry[V]{}
	m.live[slot] = false
	m.free = append(m.free, slot)
	return slot, prev, true
}

// At returns the entry at slot.
func (m *Map[V]) At(slot uint32) (Entry[V], bool) {
	if int(slot) >= len(m.entries) || !m.live[slot] {
		return Entry[V]{}, false
	}
	return m.entries[slot], true
}

// All iterates live entries in ascending slot order.
func (m *Map[V]) All() iter.Seq2[uint32, Entry[V]] {
	return func(yield func(uint32, Entry[V]) bool) {
		for i, e := range m.entries {
			if !m.live[i] {
				continue
			}
			if !yield(uint32(i), e) {
				return
			}
		}
	}
}
