package cb

import (
	"fmt"
	"time"
)

type CircuitBreakerParameters struct {
	MaxRequests         uint32
	ConsecutiveFailures uint32
	Interval            time.Duration
	Timeout             time.Duration
}

// circuitBreakerErrorWrapper lets a 5xx response count as a breaker failure
// while still handing the response back to the retry layer.
type circuitBreakerErrorWrapper[T any] struct {
	wrapped T
	status  int
}

func (e *circuitBreakerErrorWrapper[T]) Error() string {
	return fmt.Sprintf("upstream responded with status %d", e.status)
}

// callerAbort marks an attempt cut short by the caller's own context.
// It says nothing about the health of the upstream.
type callerAbort struct {
	err error
}

func (e *callerAbort) Error() string { return e.err.Error() }

func (e *callerAbort) Unwrap() error { return e.err }
