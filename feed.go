package mediapool

import (
	"context"
	"sync"

	"github.com/hupe1980/mediapool/internal/cache"
	"github.com/hupe1980/mediapool/internal/resource"
	"github.com/hupe1980/mediapool/pool"
	"github.com/hupe1980/mediapool/readthrough"
	"github.com/hupe1980/mediapool/upstream"
	"github.com/hupe1980/mediapool/window"
)

// Feed keeps the media around the current page of a feed loaded and playing.
//
// All pool and window state is owned by a single control goroutine. Page
// changes and load completions are serialized through it, so at most one
// resource plays at any time.
type Feed struct {
	opts    options
	log     *Logger
	metrics MetricsCollector

	store   cache.Store
	adapter *readthrough.Adapter
	pool    *pool.Pool
	ctrl    *window.Controller

	events    chan func()
	closing   chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// State is a point-in-time view of a Feed.
type State struct {
	// Window is the window set by the last processed page change.
	Window window.Window
	// Active is the active index, or -1.
	Active int
	// Resources lists the pooled resources in index order.
	Resources []pool.Snapshot
}

// Open creates a Feed reading media through fetcher and mapping page indices
// to media keys through catalog.
//
// Example:
//
//	fetcher := upstream.NewHTTPFetcher("https://media.example.com/clips", nil)
//	feed, err := mediapool.Open(ctx, fetcher, window.Keys{"a", "b", "c"},
//	    mediapool.WithCacheDir("/var/cache/feed"),
//	)
//	if err != nil { ... }
//	defer feed.Close()
//	_ = feed.PageChanged(0, 3)
func Open(ctx context.Context, fetcher upstream.Fetcher, catalog window.Catalog, optFns ...Option) (*Feed, error) {
	o := applyOptions(optFns)
	if err := o.validate(); err != nil {
		return nil, err
	}

	f := &Feed{
		opts:    o,
		log:     o.logger,
		metrics: o.metricsCollector,
		events:  make(chan func(), o.eventBuffer),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}

	store, err := f.openStore()
	if err != nil {
		return nil, err
	}
	f.store = store

	rc := resource.NewController(resource.Config{
		MaxBackgroundWorkers: o.workers,
		IOLimitBytesPerSec:   o.ioLimit,
	})
	f.adapter = readthrough.New(store, fetcher, readthrough.Config{
		MaxAttempts:    o.maxAttempts,
		InitialBackoff: o.initialBackoff,
		MaxBackoff:     o.maxBackoff,
		Controller:     rc,
		Logger:         o.logger.Logger,
		Metrics:        o.metricsCollector,
	})
	f.pool = pool.New(f.adapter, pool.Config{
		PrefetchBytes: o.prefetchBytes,
		Strict:        o.strict,
		Decoder:       o.decoder,
		Observer:      pool.ObserverFunc(f.onStateChange),
		Logger:        o.logger.Logger,
	})
	f.ctrl, err = window.NewController(f.pool, catalog, window.Config{
		Radius: o.radius,
		Logger: o.logger.Logger,
	})
	if err != nil {
		f.pool.Close()
		_ = store.Close()
		return nil, err
	}

	f.log.LogOpen(ctx, o.cacheDir, o.cacheCapacity, o.radius)

	go f.run()
	return f, nil
}

func (f *Feed) openStore() (cache.Store, error) {
	base := cache.Config{
		CapacityBytes: f.opts.cacheCapacity,
		OnEvict:       f.onEvict,
		Logger:        f.log.Logger,
	}
	if f.opts.cacheDir == "" {
		return cache.NewMemoryStore(base)
	}
	return cache.NewDiskStore(cache.DiskConfig{
		Config:          base,
		Dir:             f.opts.cacheDir,
		Compression:     f.opts.compression,
		MinFreeBytes:    f.opts.minFreeBytes,
		OnDegradedWrite: f.onDegradedWrite,
	})
}

func (f *Feed) onEvict(_ string, size int64) {
	f.metrics.RecordEviction(size)
}

func (f *Feed) onDegradedWrite(string, error) {
	f.metrics.RecordDegradedWrite()
}

// run is the control goroutine.
func (f *Feed) run() {
	defer close(f.done)
	for {
		select {
		case fn := <-f.events:
			fn()
		case c := <-f.pool.Completions():
			f.pool.Complete(c)
		case <-f.closing:
			f.pool.ReleaseAll()
			return
		}
	}
}

// submit queues fn for the control goroutine. It blocks while the event
// buffer is full.
func (f *Feed) submit(fn func()) error {
	select {
	case <-f.closing:
		return ErrClosed
	default:
	}
	select {
	case f.events <- fn:
		return nil
	case <-f.closing:
		return ErrClosed
	}
}

// PageChanged reports that the page at index is now current in a feed of
// feedLength pages. Resources for the window around index are acquired,
// index becomes the active resource, and resources outside the window are
// released. The change is applied asynchronously, in call order.
func (f *Feed) PageChanged(index, feedLength int) error {
	return f.submit(func() {
		f.ctrl.OnPageChanged(index, feedLength)
	})
}

// Retry reloads index after a failed load. It reports false if index is
// pooled, has not failed, or is outside the current window.
func (f *Feed) Retry(index int) (bool, error) {
	ok, err := f.retry(index)
	f.log.LogRetry(context.Background(), index, ok, err)
	return ok, err
}

func (f *Feed) retry(index int) (bool, error) {
	res := make(chan bool, 1)
	if err := f.submit(func() { res <- f.ctrl.Retry(index) }); err != nil {
		return false, err
	}
	select {
	case ok := <-res:
		return ok, nil
	case <-f.done:
		return false, ErrClosed
	}
}

// Failure returns the load error recorded for index, or nil.
func (f *Feed) Failure(index int) error {
	res := make(chan error, 1)
	if err := f.submit(func() { res <- f.pool.Failure(index) }); err != nil {
		return nil
	}
	select {
	case err := <-res:
		return err
	case <-f.done:
		return nil
	}
}

// Snapshot returns the current state as seen by the control goroutine,
// after every previously queued page change has been applied.
func (f *Feed) Snapshot() (State, error) {
	res := make(chan State, 1)
	err := f.submit(func() {
		res <- State{
			Window:    f.ctrl.Window(),
			Active:    f.pool.Active(),
			Resources: f.pool.Snapshots(),
		}
	})
	if err != nil {
		return State{}, err
	}
	select {
	case s := <-res:
		return s, nil
	case <-f.done:
		return State{}, ErrClosed
	}
}

// Read returns range r of the media at key through the cache. Players use
// it to stream beyond the prefetched bytes. It is safe for concurrent use.
func (f *Feed) Read(ctx context.Context, key string, r upstream.ByteRange) ([]byte, error) {
	select {
	case <-f.closing:
		return nil, ErrClosed
	default:
	}
	b, err := f.adapter.Read(ctx, key, r)
	f.log.LogRead(ctx, key, len(b), err)
	return b, err
}

// CacheStats returns a snapshot of the cache counters.
func (f *Feed) CacheStats() CacheStats {
	return f.store.Stats()
}

// onStateChange runs on the control goroutine.
func (f *Feed) onStateChange(t pool.Transition) {
	f.metrics.RecordTransition(t.From.String(), t.To.String())
	if f.opts.observer != nil {
		f.opts.observer.OnStateChange(t)
	}
}
