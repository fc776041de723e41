package cb

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/RassulYunussov/svcclient/internal/common"
	"github.com/sony/gobreaker/v2"
)

type circuitBreakerBackedHttpClient struct {
	client     common.Attempter
	parameters CircuitBreakerParameters
	breakers   sync.Map
	logger     *slog.Logger
}

// CreateCircuitBreakerHttpClient puts a per-resource breaker in front of every attempt.
// Without parameters the client is returned unchanged.
func CreateCircuitBreakerHttpClient(client common.Attempter, circuitBreakerParameters *CircuitBreakerParameters, logger *slog.Logger) common.Attempter {
	if circuitBreakerParameters == nil {
		return client
	}
	return &circuitBreakerBackedHttpClient{
		client:     client,
		parameters: *circuitBreakerParameters,
		logger:     logger,
	}
}

func (c *circuitBreakerBackedHttpClient) Attempt(ctx context.Context, r *common.Request) (*common.Response, error) {
	return c.breakerFor(getResource(r)).run(func() (*common.Response, error) {
		return c.do(ctx, r)
	})
}

func (c *circuitBreakerBackedHttpClient) breakerFor(resource string) *resourceBreaker[common.Response] {
	if b, ok := c.breakers.Load(resource); ok {
		return b.(*resourceBreaker[common.Response])
	}
	b, _ := c.breakers.LoadOrStore(resource, newResourceBreaker[common.Response](resource, &c.parameters, c.onStateChange))
	return b.(*resourceBreaker[common.Response])
}

func (c *circuitBreakerBackedHttpClient) onStateChange(name string, from, to gobreaker.State) {
	c.logger.Warn("circuit breaker state changed",
		slog.String("breaker", name),
		slog.String("from", from.String()),
		slog.String("to", to.String()))
}

func getResource(r *common.Request) string {
	if r.Resource != "" {
		return r.Resource
	}
	return r.Method + "_" + r.Path
}

func (c *circuitBreakerBackedHttpClient) do(ctx context.Context, r *common.Request) (*common.Response, error) {
	resp, err := c.client.Attempt(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &callerAbort{err: err}
		}
		return nil, err
	}
	if resp.StatusCode < http.StatusInternalServerError {
		return resp, nil
	}
	return nil, &circuitBreakerErrorWrapper[*common.Response]{
		wrapped: resp,
		status:  resp.StatusCode,
	}
}

// IsRejected reports whether the breaker refused the attempt without reaching the upstream.
func IsRejected(err error) bool {
	return errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests)
}
