// Package testutil provides testing utilities for mediapool.
//
// This package is intended for use in tests and benchmarks only.
// It provides deterministic media payloads and scrolling patterns.
//
// # Payloads
//
//	rng := testutil.NewRNG(seed)
//	segment := rng.RandomBytes(4096)       // incompressible
//	manifest := rng.CompressibleBytes(4096) // compresses well
//
// # Scrolling
//
//	for _, page := range rng.PageWalk(200, feedLength, 2) {
//	    _ = feed.PageChanged(page, feedLength)
//	}
package testutil
