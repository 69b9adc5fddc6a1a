package testutil

import (
	"math/rand"
	"sync"
)

// RNG struct encapsulates the random number generator and seed.
// It is thread-safe.
type RNG struct {
	rand *rand.Rand
	seed int64
	mu   sync.Mutex
}

// NewRNG creates a new RNG instance with the specified seed.
func NewRNG(seed int64) *RNG {
	return &RNG{
		rand: rand.New(rand.NewSource(seed)),
		seed: seed,
	}
}

// Reset resets the RNG to its initial seed.
func (r *RNG) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rand.Seed(r.seed)
}

// Seed returns the initial seed.
func (r *RNG) Seed() int64 {
	return r.seed
}

// Intn returns a non-negative pseudo-random number in [0,n).
func (r *RNG) Intn(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rand.Intn(n)
}

// RandomBytes returns n incompressible bytes, like an encoded media segment.
func (r *RNG) RandomBytes(n int) []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	_, _ = r.rand.Read(b)
	return b
}

// CompressibleBytes returns n bytes drawn from a small alphabet, like a
// manifest or a text track.
func (r *RNG) CompressibleBytes(n int) []byte {
	const alphabet = "#EXTINF:4.0,segment-"
	r.mu.Lock()
	defer r.mu.Unlock()
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[r.rand.Intn(len(alphabet))]
	}
	return b
}

// PageWalk returns steps page indices for a user scrolling a feed of
// feedLength pages. Each step moves at most maxJump pages; the walk starts at 0
// and stays inside the feed.
func (r *RNG) PageWalk(steps, feedLength, maxJump int) []int {
	if feedLength <= 0 || steps <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	walk := make([]int, steps)
	index := 0
	for i := range walk {
		index += r.rand.Intn(2*maxJump+1) - maxJump
		index = max(0, min(feedLength-1, index))
		walk[i] = index
	}
	return walk
}
