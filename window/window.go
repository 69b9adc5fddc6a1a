package window

import (
	"errors"

	"github.com/RoaringBitmap/roaring/v2"
)

// DefaultRadius is the number of neighbors kept on each side of the current page.
const DefaultRadius = 1

// ErrInvalidRadius is returned for a radius below 1.
var ErrInvalidRadius = errors.New("window radius must be at least 1")

// Window is the set of pages allowed to hold a live resource:
// [Center-Radius, Center+Radius] ∩ [0, FeedLength-1].
type Window struct {
	Center     int
	Radius     int
	FeedLength int
}

// New returns the window around center.
func New(center, radius, feedLength int) (Window, error) {
	if radius < 1 {
		return Window{}, ErrInvalidRadius
	}
	return Window{Center: center, Radius: radius, FeedLength: feedLength}, nil
}

// Bounds returns the inclusive index range of the window. ok is false when
// the window is empty.
func (w Window) Bounds() (lo, hi int, ok bool) {
	lo = max(w.Center-w.Radius, 0)
	hi = min(w.Center+w.Radius, w.FeedLength-1)
	if lo > hi {
		return 0, 0, false
	}
	return lo, hi, true
}

// Members returns the window's indices as a bitmap.
func (w Window) Members() *roaring.Bitmap {
	rb := roaring.New()
	if lo, hi, ok := w.Bounds(); ok {
		rb.AddRange(uint64(lo), uint64(hi)+1)
	}
	return rb
}

// Contains reports whether index i is in the window.
func (w Window) Contains(i int) bool {
	lo, hi, ok := w.Bounds()
	return ok && i >= lo && i <= hi
}

// Indices returns the window's indices in ascending order.
func (w Window) Indices() []int {
	lo, hi, ok := w.Bounds()
	if !ok {
		return nil
	}
	out := make([]int, 0, hi-lo+1)
	for i := lo; i <= hi; i++ {
		out = append(out, i)
	}
	return out
}

// Len returns the number of indices in the window.
func (w Window) Len() int {
	lo, hi, ok := w.Bounds()
	if !ok {
		return 0
	}
	return hi - lo + 1
}
