package resource

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Config holds resource limits.
type Config struct {
	// MaxRebuilds is the maximum number of concurrent index rebuilds.
	// If 0, defaults to 1.
	MaxRebuilds int64

	// RowsPerSecond is the maximum number of chunk rows streamed into
	// rebuilds per second. If 0, unlimited.
	RowsPerSecond int64
}

// Controller manages rebuild concurrency and throughput.
type Controller struct {
	cfg Config

	rebuildSem *semaphore.Weighted
	active     atomic.Int64

	rowLimiter *rate.Limiter
}

// NewController creates a new resource controller.
func NewController(cfg Config) *Controller {
	if cfg.MaxRebuilds <= 0 {
		cfg.MaxRebuilds = 1
	}

	c := &Controller{
		cfg:        cfg,
		rebuildSem: semaphore.NewWeighted(cfg.MaxRebuilds),
	}

	if cfg.RowsPerSecond > 0 {
		c.rowLimiter = rate.NewLimiter(rate.Limit(cfg.RowsPerSecond), int(cfg.RowsPerSecond))
	}

	return c
}

// Config returns the effective limits.
func (c *Controller) Config() Config {
	if c == nil {
		return Config{}
	}
	return c.cfg
}

// AcquireRebuild reserves a rebuild slot.
// Blocks if all slots are busy.
func (c *Controller) AcquireRebuild(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if err := c.rebuildSem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.active.Add(1)
	return nil
}

// ReleaseRebuild releases a rebuild slot.
func (c *Controller) ReleaseRebuild() {
	if c == nil {
		return
	}
	c.active.Add(-1)
	c.rebuildSem.Release(1)
}

// ActiveRebuilds returns the number of rebuilds currently holding a slot.
func (c *Controller) ActiveRebuilds() int64 {
	if c == nil {
		return 0
	}
	return c.active.Load()
}

// WaitRows waits until the rate limit allows n more rows.
// Requests larger than the burst are split.
func (c *Controller) WaitRows(ctx context.Context, n int) error {
	if c == nil || c.rowLimiter == nil {
		return ctx.Err()
	}
	burst := c.rowLimiter.Burst()
	for n > 0 {
		step := min(n, burst)
		if err := c.rowLimiter.WaitN(ctx, step); err != nil {
			return err
		}
		n -= step
	}
	return nil
}
