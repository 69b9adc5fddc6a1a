package upstream

import (
	"context"
	"sync"
	"time"
)

// MemoryFetcher serves objects from memory. Failures can be queued per key
// and fetches can be held open, which makes it the fetcher of choice for tests.
type MemoryFetcher struct {
	// Delay is applied to every fetch before it is answered.
	Delay time.Duration

	mu       sync.Mutex
	objects  map[string][]byte
	failures map[string][]error
	holds    map[string]chan struct{}
	calls    map[string]int
	total    int
}

// NewMemoryFetcher creates an empty MemoryFetcher.
func NewMemoryFetcher() *MemoryFetcher {
	return &MemoryFetcher{
		objects:  make(map[string][]byte),
		failures: make(map[string][]error),
		holds:    make(map[string]chan struct{}),
		calls:    make(map[string]int),
	}
}

// Set stores an object under key.
func (m *MemoryFetcher) Set(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
}

// FailNext queues errors returned, in order, by the next fetches of key.
func (m *MemoryFetcher) FailNext(key string, errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[key] = append(m.failures[key], errs...)
}

// Hold blocks fetches of key until the returned function is called.
func (m *MemoryFetcher) Hold(key string) (release func()) {
	ch := make(chan struct{})
	m.mu.Lock()
	m.holds[key] = ch
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			if m.holds[key] == ch {
				delete(m.holds, key)
			}
			m.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many times key was fetched.
func (m *MemoryFetcher) Calls(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

// TotalCalls returns the number of fetches across all keys.
func (m *MemoryFetcher) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.total
}

// Fetch implements Fetcher.
func (m *MemoryFetcher) Fetch(ctx context.Context, key string, r ByteRange) ([]byte, error) {
	m.mu.Lock()
	m.calls[key]++
	m.total++
	hold := m.holds[key]
	var injected error
	if q := m.failures[key]; len(q) > 0 {
		injected = q[0]
		m.failures[key] = q[1:]
	}
	obj, ok := m.objects[key]
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if injected != nil {
		return nil, injected
	}
	if !ok {
		return nil, NewPermanent(key, ErrNotFound)
	}
	out := r.Slice(obj)
	return append([]byte(nil), out...), nil
}
