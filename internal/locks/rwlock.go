package locks

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// maxReaders bounds the number of concurrent readers.
const maxReaders = 1 << 30

// RWLock is a context-aware shared-read / exclusive-write lock.
type RWLock struct {
	sem *semaphore.Weighted
}

// NewRWLock creates an unlocked RWLock.
func NewRWLock() *RWLock {
	return &RWLock{sem: semaphore.NewWeighted(maxReaders)}
}

// RLock acquires a read lock, blocking while a writer holds or waits for
// the lock.
func (l *RWLock) RLock(ctx context.Context) error {
	return l.sem.Acquire(ctx, 1)
}

// TryRLock acquires a read lock without blocking.
func (l *RWLock) TryRLock() bool {
	return l.sem.TryAcquire(1)
}

// RUnlock releases a read lock.
func (l *RWLock) RUnlock() {
	l.sem.Release(1)
}

// Lock acquires the write lock, blocking until all readers have released.
func (l *RWLock) Lock(ctx context.Context) error {
	return l.sem.Acquire(ctx, maxReaders)
}

// TryLock acquires the write lock without blocking.
func (l *RWLock) TryLock() bool {
	return l.sem.TryAcquire(maxReaders)
}

// Unlock releases the write lock.
func (l *RWLock) Unlock() {
	l.sem.Release(maxReaders)
}
