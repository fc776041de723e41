package resilient

import (
	"math"
	"net/http"
	"time"
)

const DefaultBackoffTimeout = 100 * time.Millisecond

type RetryParameters struct {
	MaxRetry       int
	BackoffTimeout time.Duration
	IdempotentOnly bool
}

// RetryState belongs to a single logical call and is never shared.
type RetryState struct {
	AttemptsMade      int
	AttemptsRemaining int
}

// Backoff returns the delay before the n-th retry: base * 2^(n-1).
// The result saturates instead of overflowing for very long retry budgets.
func Backoff(base time.Duration, n int) time.Duration {
	if n < 1 || base <= 0 {
		return 0
	}
	shift := n - 1
	if shift >= 62 || base > time.Duration(math.MaxInt64>>shift) {
		return time.Duration(math.MaxInt64)
	}
	return base << shift
}

var idempotentMethods = map[string]bool{
	http.MethodGet:     true,
	http.MethodHead:    true,
	http.MethodPut:     true,
	http.MethodDelete:  true,
	http.MethodOptions: true,
}

func isIdempotent(method string) bool {
	return idempotentMethods[method]
}
