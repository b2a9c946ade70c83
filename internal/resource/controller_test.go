package resource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func acquireWithin(t *testing.T, c *Controller, d time.Duration) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), d)
	defer cancel()
	return c.AcquireRebuild(ctx)
}

func TestController_Rebuilds(t *testing.T) {
	c := NewController(Config{MaxRebuilds: 2})

	require.NoError(t, c.AcquireRebuild(t.Context()))
	require.NoError(t, c.AcquireRebuild(t.Context()))
	assert.Equal(t, int64(2), c.ActiveRebuilds())

	assert.ErrorIs(t, acquireWithin(t, c, 10*time.Millisecond), context.DeadlineExceeded)
	assert.Equal(t, int64(2), c.ActiveRebuilds(), "a failed acquire holds no slot")

	c.ReleaseRebuild()
	require.NoError(t, acquireWithin(t, c, time.Second))
	assert.Equal(t, int64(2), c.ActiveRebuilds())

	c.ReleaseRebuild()
	c.ReleaseRebuild()
	assert.Equal(t, int64(0), c.ActiveRebuilds())
}

func TestController_DefaultSlots(t *testing.T) {
	c := NewController(Config{})
	assert.Equal(t, int64(1), c.Config().MaxRebuilds)

	require.NoError(t, c.AcquireRebuild(t.Context()))
	assert.Error(t, acquireWithin(t, c, 5*time.Millisecond))
	c.ReleaseRebuild()
}

func TestController_Rows(t *testing.T) {
	c := NewController(Config{RowsPerSecond: 10})

	// The first burst is available at once.
	require.NoError(t, c.WaitRows(t.Context(), 10))

	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Millisecond)
	defer cancel()
	assert.Error(t, c.WaitRows(ctx, 25))
}

func TestController_Unlimited(t *testing.T) {
	c := NewController(Config{MaxRebuilds: 1})
	assert.NoError(t, c.WaitRows(t.Context(), 1_000_000))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.ErrorIs(t, c.WaitRows(ctx, 1), context.Canceled)
}

func TestController_Nil(t *testing.T) {
	var c *Controller
	require.NoError(t, c.AcquireRebuild(t.Context()))
	c.ReleaseRebuild()
	assert.Equal(t, int64(0), c.ActiveRebuilds())
	assert.NoError(t, c.WaitRows(t.Context(), 5))
	assert.Equal(t, Config{}, c.Config())
}
