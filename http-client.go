package svcclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/RassulYunussov/svcclient/internal/cb"
	"github.com/RassulYunussov/svcclient/internal/common"
	"github.com/RassulYunussov/svcclient/internal/resilient"
	"github.com/RassulYunussov/svcclient/internal/transport"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
)

const CorrelationHeader = common.CorrelationHeader

var validate = validator.New()

// ClientConfig describes one target service. It is fixed once the client is created.
type ClientConfig struct {
	BaseAddress string        `validate:"required,url"`
	ServiceName string        `validate:"required"`
	Timeout     time.Duration `validate:"gt=0"`
	MaxRetries  int           `validate:"gte=0"`
}

// Client talks to a single upstream service.
// Retriable failures: network errors, per-attempt timeouts, http-5xx.
// Everything else is returned after the first attempt.
// A Client holds no per-call state and is safe for concurrent use.
type Client struct {
	config   ClientConfig
	executor resilient.ResilientHttpClient
	logger   *slog.Logger
}

type Option func(*clientCreationParameters) *clientCreationParameters

// Response is a successful (status < 400) upstream response.
type Response struct {
	StatusCode int
	Body       json.RawMessage
	Header     http.Header
}

// Decode unmarshals the response body into v. An empty body leaves v untouched.
func (r *Response) Decode(v any) error {
	if len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Get new instance of Client
func Create(config ClientConfig, opts ...Option) (*Client, error) {
	if err := validate.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid client config for %q: %w", config.ServiceName, err)
	}
	base, err := url.Parse(config.BaseAddress)
	if err != nil {
		return nil, err
	}
	params := &clientCreationParameters{logger: slog.Default()}
	for _, o := range opts {
		params = o(params)
	}
	logger := params.logger.With(slog.String("service", config.ServiceName))

	attempter := transport.CreateHttpTransportClient(base, config.ServiceName, config.Timeout, params.roundTripper, logger)
	if params.registerer != nil {
		collector, err := newAttemptCollector(params.registerer)
		if err != nil {
			return nil, err
		}
		attempter = &metricsHttpClient{client: attempter, service: config.ServiceName, collector: collector}
	}
	attempter = cb.CreateCircuitBreakerHttpClient(attempter, params.circuitBreakerParameters, logger)

	return &Client{
		config: config,
		executor: resilient.CreateResilientHttpClient(attempter, &resilient.RetryParameters{
			MaxRetry:       config.MaxRetries,
			BackoffTimeout: resilient.DefaultBackoffTimeout,
			IdempotentOnly: params.idempotentRetriesOnly,
		}, logger),
		logger: logger,
	}, nil
}

// Restrict automatic retries to idempotent methods (GET, HEAD, PUT, DELETE, OPTIONS).
// By default every method is retried the same way.
func WithIdempotentRetriesOnly() Option {
	return func(p *clientCreationParameters) *clientCreationParameters {
		p.idempotentRetriesOnly = true
		return p
	}
}

// Apply circuit breaker policy per resource.
// An open breaker fails the call immediately as ServiceUnavailable without retrying.
// https://github.com/sony/gobreaker
func WithCircuitBreaker(maxRequests uint32,
	consecutiveFailures uint32,
	interval time.Duration,
	timeout time.Duration) Option {
	return func(p *clientCreationParameters) *clientCreationParameters {
		p.circuitBreakerParameters = &cb.CircuitBreakerParameters{
			MaxRequests:         maxRequests,
			ConsecutiveFailures: consecutiveFailures,
			Interval:            interval,
			Timeout:             timeout,
		}
		return p
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *clientCreationParameters) *clientCreationParameters {
		if logger != nil {
			p.logger = logger
		}
		return p
	}
}

// Register attempt counters and durations. Clients may share a registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(p *clientCreationParameters) *clientCreationParameters {
		p.registerer = reg
		return p
	}
}

func WithHTTPTransport(rt http.RoundTripper) Option {
	return func(p *clientCreationParameters) *clientCreationParameters {
		p.roundTripper = rt
		return p
	}
}

func (c *Client) ServiceName() string { return c.config.ServiceName }

func (c *Client) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.view().Get(ctx, path, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.view().Post(ctx, path, body, opts...)
}

func (c *Client) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.view().Put(ctx, path, body, opts...)
}

func (c *Client) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return c.view().Patch(ctx, path, body, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return c.view().Delete(ctx, path, opts...)
}

func (c *Client) do(ctx context.Context, method, path string, body any, injected http.Header, opts []RequestOption) (*Response, error) {
	if err := transport.ValidatePath(path); err != nil {
		return nil, err
	}
	params := applyRequestOptions(opts)
	header := params.headers.Clone()
	for k, vv := range injected {
		header[k] = append([]string(nil), vv...)
	}
	req := &common.Request{
		Method:   method,
		Path:     path,
		Query:    params.query,
		Header:   header,
		Resource: params.resource,
	}
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
		}
		req.Body = b
	}

	resp, err := normalize(c.config.ServiceName, c.executor.Execute(ctx, req))
	if e, ok := AsError(err); ok {
		c.logger.ErrorContext(ctx, "outbound call failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("request_id", header.Get(CorrelationHeader)),
			slog.String("kind", e.Kind.String()),
			slog.Int("status", e.StatusCode),
			slog.Int("attempts", e.Attempts),
			slog.String("error", e.Error()))
	}
	return resp, err
}
