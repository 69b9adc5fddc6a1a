// Package mediapool keeps the media around the current page of a scrolling
// feed loaded, and exactly one of it playing.
//
// A Feed combines three layers:
//
//   - a byte cache with a soft capacity and least-recently-used eviction,
//     kept in memory or on disk (internal/cache)
//   - a read-through adapter that fetches misses from an upstream with
//     retries and pins the entries it is reading (readthrough, upstream)
//   - a resource pool holding decoded resources for a window of pages around
//     the current one (pool, window)
//
// # Quick Start
//
//	fetcher := upstream.NewHTTPFetcher("https://media.example.com/clips", nil)
//	catalog := window.Keys{"intro", "clip-1~v2", "clip-2"}
//
//	feed, err := mediapool.Open(ctx, fetcher, catalog,
//	    mediapool.WithCacheDir("/var/cache/feed"),
//	    mediapool.WithCacheCapacity(200<<20),
//	    mediapool.WithCompression(mediapool.CompressionZSTD),
//	)
//	if err != nil {
//	    return err
//	}
//	defer feed.Close()
//
//	// The user scrolled to page 1.
//	_ = feed.PageChanged(1, len(catalog))
//
// # Window
//
// With the default radius of 1 the pool holds the resources for pages
// index-1, index and index+1, clipped to the feed. On every page change the
// missing neighbors are acquired first, then the new page becomes active, and
// only then are pages that left the window released. Resources shared by the
// old and new window are kept, not recreated.
//
// # Concurrency
//
// Pool and window state belong to a control goroutine started by Open. Page
// changes are queued and applied in order; loads run on worker goroutines and
// post their results back to the control goroutine, which drops results for
// resources that were released or re-acquired in the meantime.
//
// # Keys
//
// Media keys are content ids, optionally followed by "~" and a rotation
// (see upstream.MediaKey). The rotation is forwarded upstream as an object
// version, so a rotated key never hits a stale cache entry.
package mediapool
