package common

import (
	"context"
	"net/http"
	"net/url"
)

const (
	CorrelationHeader   = "X-Request-Id"
	AuthorizationHeader = "Authorization"
)

// Request is a fully prepared outbound request. Body holds the already
// serialized JSON payload so it can be replayed on every attempt.
type Request struct {
	Method   string
	Path     string
	Query    url.Values
	Header   http.Header
	Body     []byte
	Resource string
}

// Response is the raw outcome of one physical attempt that reached the upstream.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Common interface for all attempt decorators
type Attempter interface {
	// performs exactly one physical round trip, status codes are not interpreted
	Attempt(ctx context.Context, r *Request) (*Response, error)
}
