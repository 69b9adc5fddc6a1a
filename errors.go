package mediapool

import (
	"errors"
	"fmt"

	"github.com/hupe1980/mediapool/internal/cache"
	"github.com/hupe1980/mediapool/readthrough"
	"github.com/hupe1980/mediapool/upstream"
	"github.com/hupe1980/mediapool/window"
)

var (
	// ErrClosed is returned by operations on a closed Feed.
	ErrClosed = errors.New("feed is closed")

	// ErrInvalidRadius is returned when the window radius is below 1.
	ErrInvalidRadius = window.ErrInvalidRadius

	// ErrInvalidCapacity is returned when the cache capacity is not positive.
	ErrInvalidCapacity = cache.ErrInvalidCapacity

	// ErrNotFound is returned when the upstream has no object for a key.
	ErrNotFound = upstream.ErrNotFound

	// ErrInvalidRange is returned by Read for a negative or overflowing range.
	ErrInvalidRange = upstream.ErrInvalidRange

	// ErrRetriesExhausted is returned when every fetch attempt failed transiently.
	ErrRetriesExhausted = readthrough.ErrRetriesExhausted
)

// ErrInvalidOption reports an option value that Open cannot use.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrInvalidOption struct {
	Name  string
	Value any
	cause error
}

func (e *ErrInvalidOption) Error() string {
	return fmt.Sprintf("invalid option %s: %v", e.Name, e.Value)
}

func (e *ErrInvalidOption) Unwrap() error { return e.cause }
