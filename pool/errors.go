package pool

import "fmt"

// InvariantViolation reports a broken pool invariant, such as two resources
// Playing at once. It is a programming error: Strict pools panic with it,
// others log it and correct the state.
type InvariantViolation struct {
	Index  int
	Other  int
	Detail string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("pool invariant violated at index %d (other %d): %s", e.Index, e.Other, e.Detail)
}

// LoadError records why a resource failed to load. The resource is released;
// the error stays available through Pool.Failure until the index is acquired again.
type LoadError struct {
	Index int
	Gen   uint64
	Key   string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load index %d (%q, gen %d): %v", e.Index, e.Key, e.Gen, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }
