package resilient

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/RassulYunussov/svcclient/internal/common"
	"github.com/RassulYunussov/svcclient/internal/transport"
)

// Outcome is the single terminal result of a logical call.
// Exactly one of Response and Err is set.
type Outcome struct {
	Response *common.Response
	Err      error
	State    RetryState
}

type ResilientHttpClient interface {
	Execute(ctx context.Context, r *common.Request) Outcome
}

type resilientHttpClient struct {
	client         common.Attempter
	maxRetry       int
	backoffTimeout time.Duration
	idempotentOnly bool
	logger         *slog.Logger
}

func CreateResilientHttpClient(client common.Attempter, retryParameters *RetryParameters, logger *slog.Logger) ResilientHttpClient {
	c := resilientHttpClient{client: client, backoffTimeout: DefaultBackoffTimeout, logger: logger} // default to not retry
	if retryParameters != nil {
		c.maxRetry = retryParameters.MaxRetry
		c.idempotentOnly = retryParameters.IdempotentOnly
		if retryParameters.BackoffTimeout > 0 {
			c.backoffTimeout = retryParameters.BackoffTimeout
		}
	}
	return &c
}

func (c *resilientHttpClient) Execute(ctx context.Context, r *common.Request) Outcome {
	state := RetryState{AttemptsRemaining: c.budget(r.Method)}
	for {
		resp, err := c.client.Attempt(ctx, r)
		state.AttemptsMade++
		if !c.retryable(ctx, resp, err) || state.AttemptsRemaining == 0 {
			return Outcome{Response: resp, Err: err, State: state}
		}
		delay := Backoff(c.backoffTimeout, state.AttemptsMade)
		state.AttemptsRemaining--
		c.logger.WarnContext(ctx, "retrying outbound request",
			slog.String("method", r.Method),
			slog.String("path", r.Path),
			slog.String("request_id", r.Header.Get(common.CorrelationHeader)),
			slog.Duration("delay", delay),
			slog.Int("retries_left", state.AttemptsRemaining))
		if sleepErr := sleep(ctx, delay); sleepErr != nil {
			return Outcome{Response: resp, Err: err, State: state}
		}
	}
}

func (c *resilientHttpClient) budget(method string) int {
	if c.idempotentOnly && !isIdempotent(method) {
		return 0
	}
	return c.maxRetry
}

// retryable covers transport failures (timeouts included) and 5xx responses.
// A cancelled caller context ends the call regardless of the budget left.
func (c *resilientHttpClient) retryable(ctx context.Context, resp *common.Response, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if err != nil {
		var f *transport.Failure
		return errors.As(err, &f)
	}
	return resp.StatusCode >= 500
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
