package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrInvalidCapacity is returned when a store is configured with a non-positive capacity.
var ErrInvalidCapacity = errors.New("cache capacity must be positive")

// Store is a byte-oriented key/blob cache.
// Returned slices must be treated as read-only; callers must not modify a
// slice after handing it to Put.
type Store interface {
	// Get returns a cached blob and refreshes its recency. ok=false on miss.
	Get(ctx context.Context, key string) (b []byte, ok bool)
	// Lookup returns the first of keys that is cached. The call counts as a
	// single hit or miss however many keys it tries.
	Lookup(ctx context.Context, keys ...string) (key string, b []byte, ok bool)
	// Peek is Get without counting a hit or miss.
	Peek(ctx context.Context, key string) (b []byte, ok bool)
	// Put inserts or replaces a blob, evicting unpinned entries while over capacity.
	Put(ctx context.Context, key string, b []byte)
	// Pin protects key from eviction until the matching Unpin.
	// Pins nest and may be taken before the key exists.
	Pin(key string)
	// Unpin releases one pin taken by Pin.
	Unpin(key string)
	// Remove drops key unless it is pinned. It reports whether an entry was removed.
	Remove(key string) bool
	// Size returns the total logical size of all entries in bytes.
	Size() int64
	// Len returns the number of entries.
	Len() int
	// Stats returns a snapshot of counters.
	Stats() Stats
	// Close releases any resources held by the store.
	Close() error
}

// Stats is a snapshot of store counters.
type Stats struct {
	Hits           int64
	Misses         int64
	Evictions      int64
	EvictedBytes   int64
	DegradedWrites int64
	Size           int64
	Capacity       int64
	Entries        int
	Pinned         int
}

// EvictFunc is called after an entry has been evicted to make room.
type EvictFunc func(key string, size int64)

// Config holds the settings shared by all stores.
type Config struct {
	// CapacityBytes is the soft cap on the total logical size of entries.
	CapacityBytes int64
	// OnEvict is called for every capacity-driven eviction. Optional.
	OnEvict EvictFunc
	// Logger receives degraded-write and housekeeping messages. Nil discards.
	Logger *slog.Logger
}

func (c Config) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.Logger
}

// CacheIOError reports a failed disk operation. It is recoverable: the store
// falls back to memory or bypasses the entry, and callers never see it.
type CacheIOError struct {
	Op   string
	Key  string
	Path string
	Err  error
}

func (e *CacheIOError) Error() string {
	return fmt.Sprintf("cache %s %q (%s): %v", e.Op, e.Key, e.Path, e.Err)
}

func (e *CacheIOError) Unwrap() error { return e.Err }
