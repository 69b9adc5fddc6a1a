package readthrough

import (
	"log/slog"
	"time"

	"github.com/hupe1980/mediapool/internal/resource"
)

const (
	// DefaultMaxAttempts is the total number of fetch attempts per miss.
	DefaultMaxAttempts = 3
	// DefaultInitialBackoff is the wait before the second attempt.
	DefaultInitialBackoff = 200 * time.Millisecond
	// DefaultBackoffMultiplier grows the wait between later attempts.
	DefaultBackoffMultiplier = 2.0
	// DefaultMaxBackoff caps a single wait.
	DefaultMaxBackoff = 5 * time.Second
)

// Config configures an Adapter. Zero fields take the defaults above.
type Config struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	BackoffMultiplier float64
	MaxBackoff        time.Duration

	// Controller gates fetch concurrency and bandwidth. Nil means unlimited.
	Controller *resource.Controller
	// Logger receives retry and failure messages. Nil discards.
	Logger *slog.Logger
	// Metrics receives lookup and fetch measurements. Nil discards.
	Metrics Metrics
}

// DefaultConfig returns the default retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       DefaultMaxAttempts,
		InitialBackoff:    DefaultInitialBackoff,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxBackoff:        DefaultMaxBackoff,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultInitialBackoff
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = DefaultBackoffMultiplier
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultMaxBackoff
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	if c.Metrics == nil {
		c.Metrics = noopMetrics{}
	}
	return c
}

// Backoff returns the wait before retry number n (0-based).
func (c Config) Backoff(n int) time.Duration {
	c = c.withDefaults()
	backoff := float64(c.InitialBackoff)
	for range n {
		backoff *= c.BackoffMultiplier
	}
	if backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Metrics is the measurement sink used by an Adapter.
type Metrics interface {
	RecordCacheLookup(hit bool)
	RecordFetch(bytes int, attempts int, d time.Duration, err error)
}

type noopMetrics struct{}

func (noopMetrics) RecordCacheLookup(bool)                     {}
func (noopMetrics) RecordFetch(int, int, time.Duration, error) {}
