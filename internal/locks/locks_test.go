package locks

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRWLock_ConcurrentReaders(t *testing.T) {
	l := NewRWLock()
	const readers = 16

	var wg sync.WaitGroup
	var held atomic.Int32
	release := make(chan struct{})

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !assert.NoError(t, l.RLock(context.Background())) {
				return
			}
			held.Add(1)
			<-release
			l.RUnlock()
		}()
	}

	require.Eventually(t, func() bool { return held.Load() == readers }, time.Second, time.Millisecond)
	assert.False(t, l.TryLock(), "writer must wait for readers")

	close(release)
	wg.Wait()
	assert.True(t, l.TryLock())
	l.Unlock()
}

func TestRWLock_WriterExcludesReaders(t *testing.T) {
	l := NewRWLock()
	require.NoError(t, l.Lock(context.Background()))

	acquired := make(chan struct{})
	go func() {
		if err := l.RLock(context.Background()); err == nil {
			close(acquired)
			l.RUnlock()
		}
	}()

	select {
	case <-acquired:
		t.Fatal("reader acquired lock while writer held it")
	case <-time.After(50 * time.Millisecond):
	}

	assert.False(t, l.TryRLock())
	l.Unlock()

	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("reader did not acquire lock after writer released")
	}
}

func TestRWLock_ReaderExcludesWriter(t *testing.T) {
	l := NewRWLock()
	require.NoError(t, l.RLock(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, l.Lock(ctx), context.DeadlineExceeded)

	l.RUnlock()
	require.NoError(t, l.Lock(context.Background()))
	l.Unlock()
}

func TestRegistry_For(t *testing.T) {
	r := NewRegistry()
	a, b := uuid.New(), uuid.New()

	assert.Same(t, r.For(a), r.For(a))
	assert.NotSame(t, r.For(a), r.For(b))
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_LockPair(t *testing.T) {
	r := NewRegistry()
	a, b := uuid.New(), uuid.New()

	unlock, err := r.LockPair(context.Background(), a, b)
	require.NoError(t, err)
	assert.False(t, r.For(a).TryRLock())
	assert.False(t, r.For(b).TryRLock())
	unlock()

	assert.True(t, r.For(a).TryLock())
	r.For(a).Unlock()

	unlock, err = r.LockPair(context.Background(), a, a)
	require.NoError(t, err)
	unlock()
}

func TestRegistry_LockPairOppositeOrder(t *testing.T) {
	r := NewRegistry()
	a, b := uuid.New(), uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock, err := r.LockPair(context.Background(), a, b)
			if assert.NoError(t, err) {
				unlock()
			}
		}()
		go func() {
			defer wg.Done()
			unlock, err := r.LockPair(context.Background(), b, a)
			if assert.NoError(t, err) {
				unlock()
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("deadlock acquiring lock pairs in opposite order")
	}
}

func TestRegistry_LockPairCancelled(t *testing.T) {
	r := NewRegistry()
	a, b := uuid.New(), uuid.New()

	require.NoError(t, r.For(b).Lock(context.Background()))
	defer r.For(b).Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := r.LockPair(ctx, a, b)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The first lock must have been released on failure.
	assert.True(t, r.For(a).TryLock())
	r.For(a).Unlock()
}
