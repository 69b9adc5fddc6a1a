package mediapool

import (
	"log/slog"
	"time"

	"github.com/hupe1980/mediapool/internal/cache"
	"github.com/hupe1980/mediapool/pool"
	"github.com/hupe1980/mediapool/window"
)

const (
	// DefaultCacheCapacity is the default cache size: 200 MB.
	DefaultCacheCapacity int64 = 200 << 20

	// DefaultEventBuffer is the number of page changes that can be queued
	// before PageChanged blocks.
	DefaultEventBuffer = 64
)

// Compression selects the on-disk encoding of cache entries.
type Compression = cache.Compression

const (
	CompressionNone = cache.CompressionNone
	CompressionLZ4  = cache.CompressionLZ4
	CompressionZSTD = cache.CompressionZSTD
)

// ParseCompression maps "none", "lz4" or "zstd" to a Compression.
func ParseCompression(s string) (Compression, error) {
	return cache.ParseCompression(s)
}

// CacheStats is a snapshot of cache counters.
type CacheStats = cache.Stats

type options struct {
	cacheDir         string
	cacheCapacity    int64
	compression      Compression
	minFreeBytes     int64
	radius           int
	prefetchBytes    int64
	maxAttempts      int
	initialBackoff   time.Duration
	maxBackoff       time.Duration
	workers          int64
	ioLimit          int64
	eventBuffer      int
	strict           bool
	decoder          pool.Decoder
	observer         pool.Observer
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures Open.
type Option func(*options)

// WithCacheDir persists the cache under dir. The directory is owned by the
// feed exclusively and is rescanned on Open, so entries survive restarts.
//
// Without a cache directory the cache is kept in memory.
func WithCacheDir(dir string) Option {
	return func(o *options) {
		o.cacheDir = dir
	}
}

// WithCacheCapacity sets the soft cache capacity in bytes (default 200 MB).
// Entries pinned by in-flight reads may push the cache over it temporarily.
func WithCacheCapacity(bytes int64) Option {
	return func(o *options) {
		o.cacheCapacity = bytes
	}
}

// WithCompression selects the encoding of new disk entries.
// It has no effect without WithCacheDir.
func WithCompression(c Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMinFreeBytes keeps this much space free on the cache filesystem.
// Writes that would cross it are kept in memory instead.
func WithMinFreeBytes(bytes int64) Option {
	return func(o *options) {
		o.minFreeBytes = bytes
	}
}

// WithRadius sets the number of neighbors kept live on each side of the
// current page. The default is 1, which keeps at most three resources.
func WithRadius(radius int) Option {
	return func(o *options) {
		o.radius = radius
	}
}

// WithPrefetchBytes limits the bytes read before a resource is Ready.
// 0 reads whole objects.
func WithPrefetchBytes(bytes int64) Option {
	return func(o *options) {
		o.prefetchBytes = bytes
	}
}

// WithRetry configures the upstream retry policy. Zero values keep the
// defaults: 3 attempts, 200ms initial backoff doubling up to 5s.
//
// Example:
//
//	feed, _ := mediapool.Open(ctx, fetcher, catalog,
//	    mediapool.WithRetry(5, 100*time.Millisecond, 2*time.Second),
//	)
func WithRetry(maxAttempts int, initialBackoff, maxBackoff time.Duration) Option {
	return func(o *options) {
		o.maxAttempts = maxAttempts
		o.initialBackoff = initialBackoff
		o.maxBackoff = maxBackoff
	}
}

// WithWorkers bounds the number of concurrent upstream fetches.
func WithWorkers(n int64) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithIOLimit caps upstream throughput in bytes per second. 0 is unlimited.
func WithIOLimit(bytesPerSec int64) Option {
	return func(o *options) {
		o.ioLimit = bytesPerSec
	}
}

// WithEventBuffer sets how many page changes may be queued before
// PageChanged blocks.
func WithEventBuffer(n int) Option {
	return func(o *options) {
		o.eventBuffer = n
	}
}

// WithStrictInvariants makes a pool invariant violation panic instead of
// being logged and corrected. Intended for tests.
func WithStrictInvariants() Option {
	return func(o *options) {
		o.strict = true
	}
}

// WithDecoder sets the factory for resource handles. The default is
// pool.NopDecoder, which holds the prefetched bytes only.
func WithDecoder(d pool.Decoder) Option {
	return func(o *options) {
		o.decoder = d
	}
}

// WithObserver registers an observer for resource state changes.
// It is called on the control goroutine and must not block.
func WithObserver(obs pool.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &mediapool.BasicMetricsCollector{}
//	feed, _ := mediapool.Open(ctx, fetcher, catalog, mediapool.WithMetricsCollector(metrics))
//	// ... use feed ...
//	stats := metrics.GetStats()
//	fmt.Printf("Hits: %d, Misses: %d\n", stats.CacheHits, stats.CacheMisses)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
//
// Example with JSON logging:
//
//	logger := mediapool.NewJSONLogger(slog.LevelInfo)
//	feed, _ := mediapool.Open(ctx, fetcher, catalog, mediapool.WithLogger(logger))
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cacheCapacity:    DefaultCacheCapacity,
		radius:           window.DefaultRadius,
		eventBuffer:      DefaultEventBuffer,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.metricsCollector == nil {
		o.metricsCollector = NoopMetricsCollector{}
	}
	if o.logger == nil {
		o.logger = NoopLogger()
	}
	if o.eventBuffer <= 0 {
		o.eventBuffer = DefaultEventBuffer
	}
	return o
}

func (o options) validate() error {
	if o.cacheCapacity <= 0 {
		return &ErrInvalidOption{Name: "cache capacity", Value: o.cacheCapacity, cause: ErrInvalidCapacity}
	}
	if o.radius < 1 {
		return &ErrInvalidOption{Name: "radius", Value: o.radius, cause: ErrInvalidRadius}
	}
	if o.prefetchBytes < 0 {
		return &ErrInvalidOption{Name: "prefetch bytes", Value: o.prefetchBytes}
	}
	return nil
}
