package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// Kind classifies a fetch failure.
type Kind uint8

const (
	// Transient failures (timeouts, resets, throttling, 5xx) may succeed on retry.
	Transient Kind = iota + 1
	// Permanent failures (4xx, malformed keys) will not.
	Permanent
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

var (
	// ErrNotFound is wrapped by permanent errors for missing objects.
	ErrNotFound = errors.New("object not found")
	// ErrInvalidKey is wrapped by permanent errors for keys that cannot be addressed.
	ErrInvalidKey = errors.New("invalid media key")
	// ErrInvalidRange is wrapped by permanent errors for malformed byte ranges.
	ErrInvalidRange = errors.New("invalid byte range")
)

// NetworkError is returned by fetchers.
type NetworkError struct {
	Kind Kind
	Key  string
	Err  error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("fetch %q: %s: %v", e.Key, e.Kind, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// NewTransient wraps err as a retryable failure.
func NewTransient(key string, err error) *NetworkError {
	return &NetworkError{Kind: Transient, Key: key, Err: err}
}

// NewPermanent wraps err as a non-retryable failure.
func NewPermanent(key string, err error) *NetworkError {
	return &NetworkError{Kind: Permanent, Key: key, Err: err}
}

// IsTransient reports whether err carries a transient NetworkError.
func IsTransient(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == Transient
}

// IsPermanent reports whether err carries a permanent NetworkError.
func IsPermanent(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Kind == Permanent
}

// StatusKind classifies an HTTP status code. ok is false for 2xx.
func StatusKind(code int) (k Kind, ok bool) {
	switch {
	case code >= 200 && code < 300:
		return 0, false
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return Transient, true
	default:
		return Permanent, true
	}
}

// Classify wraps a transport error. Fetchers return the caller's context error
// before calling it, so a deadline seen here is a client or transport timeout
// and is transient. Cancellation is returned unchanged.
func Classify(key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewTransient(key, err)
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return err
	}
	if isTransientTransport(err) {
		return NewTransient(key, err)
	}
	return NewPermanent(key, err)
}

func isTransientTransport(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsTimeout
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}
