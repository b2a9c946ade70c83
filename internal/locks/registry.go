package locks

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Registry lazily creates one RWLock per id.
//
// Entries are never removed: an id that has been deleted keeps its lock so
// that goroutines still waiting on it and later callers always share the
// same instance.
type Registry struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*RWLock
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{locks: make(map[uuid.UUID]*RWLock)}
}

// For returns the lock for id, creating it on first use.
func (r *Registry) For(id uuid.UUID) *RWLock {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[id]
	if !ok {
		l = NewRWLock()
		r.locks[id] = l
	}
	return l
}

// Len returns the number of locks created so far.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// LockPair acquires the write locks of a and b in ascending order of their
// string form, independent of argument order. The returned function
// releases both. If a == b the lock is taken once.
func (r *Registry) LockPair(ctx context.Context, a, b uuid.UUID) (func(), error) {
	if a == b {
		l := r.For(a)
		if err := l.Lock(ctx); err != nil {
			return nil, err
		}
		return l.Unlock, nil
	}

	first, second := a, b
	if second.String() < first.String() {
		first, second = second, first
	}

	l1, l2 := r.For(first), r.For(second)
	if err := l1.Lock(ctx); err != nil {
		return nil, err
	}
	if err := l2.Lock(ctx); err != nil {
		l1.Unlock()
		return nil, err
	}

	return func() {
		l2.Unlock()
		l1.Unlock()
	}, nil
}
