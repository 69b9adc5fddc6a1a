package mediapool

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus;
// metrics/prometheus ships one.
//
// Methods may be called concurrently from fetch workers and the control goroutine.
type MetricsCollector interface {
	// RecordCacheLookup is called for every read, hit or miss.
	RecordCacheLookup(hit bool)

	// RecordFetch is called after each upstream fetch, once retries are done.
	// bytes is the payload size, attempts the number of tries made,
	// d the total time including backoff, err is nil if successful.
	RecordFetch(bytes int, attempts int, d time.Duration, err error)

	// RecordEviction is called for every entry evicted to make room.
	RecordEviction(bytes int64)

	// RecordTransition is called for every resource state change.
	RecordTransition(from, to string)

	// RecordDegradedWrite is called when a cache entry could not be persisted.
	RecordDegradedWrite()
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
// Use this when metrics collection is not needed.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordCacheLookup(bool)                     {}
func (NoopMetricsCollector) RecordFetch(int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordEviction(int64)                       {}
func (NoopMetricsCollector) RecordTransition(string, string)            {}
func (NoopMetricsCollector) RecordDegradedWrite()                       {}

// BasicMetricsCollector provides simple in-memory metrics collection.
// Useful for debugging and basic monitoring without external dependencies.
type BasicMetricsCollector struct {
	CacheHits      atomic.Int64
	CacheMisses    atomic.Int64
	FetchCount     atomic.Int64
	FetchErrors    atomic.Int64
	FetchAttempts  atomic.Int64
	FetchBytes     atomic.Int64
	FetchNanos     atomic.Int64
	Evictions      atomic.Int64
	EvictedBytes   atomic.Int64
	Transitions    atomic.Int64
	Releases       atomic.Int64
	DegradedWrites atomic.Int64
}

// RecordCacheLookup implements MetricsCollector.
func (b *BasicMetricsCollector) RecordCacheLookup(hit bool) {
	if hit {
		b.CacheHits.Add(1)
	} else {
		b.CacheMisses.Add(1)
	}
}

// RecordFetch implements MetricsCollector.
func (b *BasicMetricsCollector) RecordFetch(bytes int, attempts int, d time.Duration, err error) {
	b.FetchCount.Add(1)
	b.FetchAttempts.Add(int64(attempts))
	b.FetchNanos.Add(d.Nanoseconds())
	if err != nil {
		b.FetchErrors.Add(1)
		return
	}
	b.FetchBytes.Add(int64(bytes))
}

// RecordEviction implements MetricsCollector.
func (b *BasicMetricsCollector) RecordEviction(bytes int64) {
	b.Evictions.Add(1)
	b.EvictedBytes.Add(bytes)
}

// RecordTransition implements MetricsCollector.
func (b *BasicMetricsCollector) RecordTransition(from, to string) {
	b.Transitions.Add(1)
	if to == "released" {
		b.Releases.Add(1)
	}
}

// RecordDegradedWrite implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDegradedWrite() {
	b.DegradedWrites.Add(1)
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	return BasicMetricsStats{
		CacheHits:      b.CacheHits.Load(),
		CacheMisses:    b.CacheMisses.Load(),
		FetchCount:     b.FetchCount.Load(),
		FetchErrors:    b.FetchErrors.Load(),
		FetchAttempts:  b.FetchAttempts.Load(),
		FetchBytes:     b.FetchBytes.Load(),
		FetchAvgNanos:  b.getAvgFetchNanos(),
		Evictions:      b.Evictions.Load(),
		EvictedBytes:   b.EvictedBytes.Load(),
		Transitions:    b.Transitions.Load(),
		Releases:       b.Releases.Load(),
		DegradedWrites: b.DegradedWrites.Load(),
	}
}

func (b *BasicMetricsCollector) getAvgFetchNanos() int64 {
	count := b.FetchCount.Load()
	if count == 0 {
		return 0
	}
	return b.FetchNanos.Load() / count
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	CacheHits      int64
	CacheMisses    int64
	FetchCount     int64
	FetchErrors    int64
	FetchAttempts  int64
	FetchBytes     int64
	FetchAvgNanos  int64
	Evictions      int64
	EvictedBytes   int64
	Transitions    int64
	Releases       int64
	DegradedWrites int64
}
