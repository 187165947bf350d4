package cache

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get when neither tier holds a fresh value.
	ErrNotFound = errors.New("cache: not found")
	// ErrTimeout is returned when compute does not finish within the call's
	// Timeout or the caller's deadline. It is joined with the context error.
	ErrTimeout = errors.New("cache: compute timed out")
	// ErrClosed is returned by calls made after Close.
	ErrClosed = errors.New("cache: closed")
)

// ComputeError wraps a failure returned (or panicked) by a ComputeFunc.
type ComputeError struct {
	Key string
	Err error
}

func (e *ComputeError) Error() string {
	return fmt.Sprintf("cache: compute %q: %v", e.Key, e.Err)
}

func (e *ComputeError) Unwrap() error { return e.Err }

// waitError classifies why a caller stopped waiting for compute.
// Deadlines (the call's Timeout or the caller's own) become ErrTimeout;
// anything else is the caller's cancellation.
func waitError(key string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("cache: compute %q: %w: %w", key, ErrTimeout, err)
	}
	return fmt.Errorf("cache: compute %q: %w", key, err)
}
