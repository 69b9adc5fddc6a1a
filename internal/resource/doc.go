// Package resource governs the I/O side of the media pool.
//
// The Controller bounds two resources shared by every read-through worker:
//
//   - Concurrency: the number of reads in flight on the I/O worker pool
//   - Bandwidth: a token bucket over bytes pulled from upstream
//
//	┌──────────────────────────────────────────────┐
//	│                  Controller                  │
//	├──────────────────────┬───────────────────────┤
//	│  Worker slots (sem)  │  IO rate limiter      │
//	├──────────────────────┼───────────────────────┤
//	│  AcquireBackground   │  AcquireIO            │
//	│  TryAcquireBackground│  TryAcquireIO         │
//	│  ReleaseBackground   │                       │
//	└──────────────────────┴───────────────────────┘
//
// # Worker Slots
//
//	rc := resource.NewController(resource.Config{MaxBackgroundWorkers: 4})
//
//	if err := rc.AcquireBackground(ctx); err != nil {
//	    return err
//	}
//	defer rc.ReleaseBackground()
//
// # Bandwidth
//
//	rc := resource.NewController(resource.Config{IOLimitBytesPerSec: 8 << 20})
//
//	// Charge the bytes of a finished fetch before caching them.
//	if err := rc.AcquireIO(ctx, len(data)); err != nil {
//	    return err
//	}
//
// # Nil Safety
//
// All methods handle a nil Controller gracefully - they become no-ops.
package resource
