package readthrough

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/mediapool/internal/cache"
	"github.com/hupe1980/mediapool/upstream"
	"golang.org/x/sync/singleflight"
)

// ErrRetriesExhausted wraps the last transient error once all attempts failed.
var ErrRetriesExhausted = errors.New("fetch retries exhausted")

// Reader is the read contract served by Adapter.
type Reader interface {
	Read(ctx context.Context, key string, r upstream.ByteRange) ([]byte, error)
}

// Adapter implements Reader on top of a cache and a fetcher.
type Adapter struct {
	store   cache.Store
	fetcher upstream.Fetcher
	cfg     Config

	group   singleflight.Group
	flights sync.WaitGroup
}

// New creates an Adapter.
func New(store cache.Store, fetcher upstream.Fetcher, cfg Config) *Adapter {
	return &Adapter{
		store:   store,
		fetcher: fetcher,
		cfg:     cfg.withDefaults(),
	}
}

// EntryKey returns the cache key holding range r of key.
// Full-object reads use the media key itself.
func EntryKey(key string, r upstream.ByteRange) string {
	if r.Full() {
		return key
	}
	return key + "#" + r.String()
}

// Read returns range r of key, from the cache when possible.
func (a *Adapter) Read(ctx context.Context, key string, r upstream.ByteRange) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.Validate(); err != nil {
		return nil, upstream.NewPermanent(key, err)
	}
	entryKey := EntryKey(key, r)

	a.store.Pin(key)
	defer a.store.Unpin(key)
	if entryKey != key {
		a.store.Pin(entryKey)
		defer a.store.Unpin(entryKey)
	}

	if b, ok := a.lookup(ctx, key, entryKey, r); ok {
		a.cfg.Metrics.RecordCacheLookup(true)
		return b, nil
	}
	a.cfg.Metrics.RecordCacheLookup(false)

	// Every flight has a waiter registered before it starts, and that
	// waiter is counted until the flight's result is delivered.
	a.flights.Add(1)
	ch := a.group.DoChan(entryKey, func() (any, error) {
		// The fetch outlives callers that stop waiting.
		return a.fill(context.WithoutCancel(ctx), key, entryKey, r)
	})

	select {
	case res := <-ch:
		a.flights.Done()
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	case <-ctx.Done():
		go func() {
			<-ch
			a.flights.Done()
		}()
		return nil, ctx.Err()
	}
}

// Wait blocks until all in-flight fetches have stored their results.
func (a *Adapter) Wait() {
	a.flights.Wait()
}

// lookup makes one counted cache lookup for range r. A cached full object
// serves any range of it.
func (a *Adapter) lookup(ctx context.Context, key, entryKey string, r upstream.ByteRange) ([]byte, bool) {
	keys := []string{key}
	if entryKey != key {
		keys = []string{entryKey, key}
	}
	found, b, ok := a.store.Lookup(ctx, keys...)
	if !ok {
		return nil, false
	}
	if found != entryKey {
		return r.Slice(b), true
	}
	return b, true
}

func (a *Adapter) fill(ctx context.Context, key, entryKey string, r upstream.ByteRange) ([]byte, error) {
	// A flight that finished just before this one started may have stored it.
	if b, ok := a.store.Peek(ctx, entryKey); ok {
		return b, nil
	}

	rc := a.cfg.Controller
	if err := rc.AcquireBackground(ctx); err != nil {
		return nil, err
	}
	defer rc.ReleaseBackground()

	start := time.Now()
	data, attempts, err := a.fetch(ctx, key, r)
	a.cfg.Metrics.RecordFetch(len(data), attempts, time.Since(start), err)
	if err != nil {
		a.cfg.Logger.Warn("fetch failed", "key", key, "range", r.String(), "attempt", attempts, "error", err)
		return nil, err
	}

	if err := rc.AcquireIO(ctx, len(data)); err != nil {
		return nil, err
	}
	a.store.Put(ctx, entryKey, data)
	return data, nil
}

func (a *Adapter) fetch(ctx context.Context, key string, r upstream.ByteRange) ([]byte, int, error) {
	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			backoff := a.cfg.Backoff(attempt - 2)
			a.cfg.Logger.Debug("fetch retrying", "key", key, "attempt", attempt, "backoff", backoff, "error", lastErr)

			select {
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			case <-time.After(backoff):
			}
		}

		data, err := a.fetcher.Fetch(ctx, key, r)
		if err == nil {
			return data, attempt, nil
		}
		if !upstream.IsTransient(err) {
			return nil, attempt, err
		}
		lastErr = err
	}
	return nil, a.cfg.MaxAttempts, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, a.cfg.MaxAttempts, lastErr)
}
