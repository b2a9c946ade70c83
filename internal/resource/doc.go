// Package resource governs background index rebuilds.
//
// The Controller provides two limits:
//
//   - Concurrency: the number of library rebuilds running at once (weighted semaphore)
//   - Throughput: the number of chunk rows a rebuild may stream per second (token bucket)
//
// # Rebuild Slots
//
//	rc := resource.NewController(resource.Config{
//	    MaxRebuilds: 4,
//	})
//
//	if err := rc.AcquireRebuild(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseRebuild()
//
// # Row Rate Limiting
//
// Rebuilds page chunk rows out of the store and call WaitRows for every
// page so that a large rebuild does not starve foreground writers:
//
//	rc := resource.NewController(resource.Config{
//	    RowsPerSecond: 50_000,
//	})
//
//	if err := rc.WaitRows(ctx, len(page)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle nil Controller gracefully - they become no-ops.
package resource
