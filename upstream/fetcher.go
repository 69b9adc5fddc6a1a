package upstream

import (
	"context"
	"fmt"
	"math"
)

// Fetcher reads byte ranges of upstream objects.
type Fetcher interface {
	// Fetch returns the bytes of r within the object named by key.
	// A range reaching past the end of the object returns the bytes up to
	// the end. Errors are *NetworkError, or the context's error when ctx is done.
	Fetch(ctx context.Context, key string, r ByteRange) ([]byte, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, key string, r ByteRange) ([]byte, error)

// Fetch calls f.
func (f FetcherFunc) Fetch(ctx context.Context, key string, r ByteRange) ([]byte, error) {
	return f(ctx, key, r)
}

// ByteRange selects part of an object. Length <= 0 means "to the end".
type ByteRange struct {
	Offset int64
	Length int64
}

// FullRange selects the whole object.
var FullRange = ByteRange{}

// Validate rejects negative offsets and ranges whose end overflows int64.
func (r ByteRange) Validate() error {
	if r.Offset < 0 {
		return fmt.Errorf("%w: negative offset %d", ErrInvalidRange, r.Offset)
	}
	if r.Length > 0 && r.Length > math.MaxInt64-r.Offset {
		return fmt.Errorf("%w: %d+%d overflows", ErrInvalidRange, r.Offset, r.Length)
	}
	return nil
}

// Full reports whether r selects the whole object.
func (r ByteRange) Full() bool {
	return r.Offset == 0 && r.Length <= 0
}

// Open reports whether r runs to the end of the object.
func (r ByteRange) Open() bool {
	return r.Length <= 0
}

// End returns the exclusive end offset, or -1 for an open range.
func (r ByteRange) End() int64 {
	if r.Open() {
		return -1
	}
	return r.Offset + r.Length
}

// Header renders r as an HTTP Range header value. Full ranges return "".
func (r ByteRange) Header() string {
	switch {
	case r.Full():
		return ""
	case r.Open():
		return fmt.Sprintf("bytes=%d-", r.Offset)
	default:
		return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
	}
}

// Slice cuts r out of a full object. Ranges past the end are clipped and
// invalid ranges select nothing.
func (r ByteRange) Slice(obj []byte) []byte {
	size := int64(len(obj))
	if r.Offset < 0 || r.Offset >= size {
		return []byte{}
	}
	end := size
	if !r.Open() && r.Length < size-r.Offset {
		end = r.Offset + r.Length
	}
	return obj[r.Offset:end]
}

func (r ByteRange) String() string {
	if r.Open() {
		return fmt.Sprintf("%d-", r.Offset)
	}
	return fmt.Sprintf("%d+%d", r.Offset, r.Length)
}
