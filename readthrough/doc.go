// Package readthrough merges a cache.Store and an upstream.Fetcher into a
// single Read(key, range) call with read-through-and-populate semantics.
//
// Each Read:
//
//  1. pins the entry keys it may touch, so eviction cannot remove them mid-read
//  2. serves the range from the cache if a cached entry covers it
//  3. otherwise fetches it, retrying transient failures with exponential
//     backoff and surfacing permanent failures at once
//  4. stores the fetched bytes
//  5. unpins on every exit path
//
// Concurrent misses for the same entry share one fetch. A caller whose
// context ends stops waiting, but the fetch it started runs to completion and
// still populates the cache.
package readthrough
