package cb

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker/v2"
)

// resourceBreaker guards the attempts made against one resource.
type resourceBreaker[V any] struct {
	*gobreaker.CircuitBreaker[*V]
}

// run executes f under the breaker. A wrapped upstream response is recovered
// from the failure so callers still see it.
func (b *resourceBreaker[V]) run(f func() (*V, error)) (*V, error) {
	res, err := b.Execute(f)
	var e *circuitBreakerErrorWrapper[*V]
	if errors.As(err, &e) {
		return e.wrapped, nil
	}
	var a *callerAbort
	if errors.As(err, &a) {
		return nil, a.err
	}
	return res, err
}

func newResourceBreaker[V any](resource string, p *CircuitBreakerParameters, onStateChange func(name string, from, to gobreaker.State)) *resourceBreaker[V] {
	settings := gobreaker.Settings{
		Name:        fmt.Sprintf("breaker[%s]", resource),
		MaxRequests: p.MaxRequests,
		Interval:    p.Interval,
		Timeout:     p.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.ConsecutiveFailures
		},
		OnStateChange: onStateChange,
		IsSuccessful:  notUpstreamFailure,
	}
	return &resourceBreaker[V]{CircuitBreaker: gobreaker.NewCircuitBreaker[*V](settings)}
}

func notUpstreamFailure(err error) bool {
	var a *callerAbort
	return err == nil || errors.As(err, &a)
}
