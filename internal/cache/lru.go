package cache

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// MemoryStore implements Store on the heap.
type MemoryStore struct {
	mu  sync.Mutex
	idx *index

	onEvict EvictFunc
	log     *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewMemoryStore creates a heap-backed store bounded by cfg.CapacityBytes.
func NewMemoryStore(cfg Config) (*MemoryStore, error) {
	if cfg.CapacityBytes <= 0 {
		return nil, ErrInvalidCapacity
	}
	return &MemoryStore{
		idx:     newIndex(cfg.CapacityBytes),
		onEvict: cfg.OnEvict,
		log:     cfg.logger(),
	}, nil
}

// Get returns a cached blob.
func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, bool) {
	_, b, ok := s.Lookup(ctx, key)
	return b, ok
}

// Lookup returns the first cached key of keys.
func (s *MemoryStore) Lookup(ctx context.Context, keys ...string) (string, []byte, bool) {
	for _, key := range keys {
		if b, ok := s.Peek(ctx, key); ok {
			s.hits.Add(1)
			return key, b, true
		}
	}
	s.misses.Add(1)
	return "", nil, false
}

// Peek returns a cached blob without counting the lookup.
func (s *MemoryStore) Peek(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if it, ok := s.idx.get(key); ok {
		return it.mem, true
	}
	return nil, false
}

// Put caches a blob.
func (s *MemoryStore) Put(_ context.Context, key string, b []byte) {
	s.mu.Lock()
	size := int64(len(b))
	if size > s.idx.capacity && !s.idx.pinned(key) {
		// Would evict everything else and still not fit.
		s.idx.remove(key)
		s.mu.Unlock()
		return
	}
	s.idx.insert(&item{key: key, size: size, mem: b})
	victims := s.idx.evict()
	s.mu.Unlock()

	s.notify(victims)
}

// Pin protects key from eviction.
func (s *MemoryStore) Pin(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.idx.pin(key)
}

// Unpin releases a pin and trims the store if it was held over capacity.
func (s *MemoryStore) Unpin(key string) {
	s.mu.Lock()
	var victims []*item
	if s.idx.unpin(key) && s.idx.size > s.idx.capacity {
		victims = s.idx.evict()
	}
	s.mu.Unlock()

	s.notify(victims)
}

// Remove drops key unless it is pinned.
func (s *MemoryStore) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idx.pinned(key) {
		return false
	}
	_, ok := s.idx.remove(key)
	return ok
}

// Size returns the current size of the store in bytes.
func (s *MemoryStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.size
}

// Len returns the number of entries.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.lru.Len()
}

// Keys returns the cached keys from least to most recently used.
func (s *MemoryStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.idx.oldestFirst()
}

func (s *MemoryStore) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		Hits:         s.hits.Load(),
		Misses:       s.misses.Load(),
		Evictions:    s.idx.evictions,
		EvictedBytes: s.idx.evictedBytes,
		Size:         s.idx.size,
		Capacity:     s.idx.capacity,
		Entries:      s.idx.lru.Len(),
		Pinned:       len(s.idx.pins),
	}
}

func (s *MemoryStore) Close() error {
	return nil
}

func (s *MemoryStore) notify(victims []*item) {
	for _, it := range victims {
		s.log.Debug("cache evict", "key", it.key, "bytes", it.size)
		if s.onEvict != nil {
			s.onEvict(it.key, it.size)
		}
	}
}
