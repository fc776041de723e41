package svcclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/RassulYunussov/svcclient/internal/common"
)

// View is a request-scoped handle on a shared Client. It carries the headers
// injected into every attempt of every call made through it.
// Views are values: deriving a new one never changes the receiver or the Client.
type View struct {
	client  *Client
	headers http.Header
}

type RequestOption func(*requestParameters) *requestParameters

func (c *Client) view() View {
	return View{client: c}
}

func (c *Client) WithCorrelationID(id string) View {
	return c.view().WithCorrelationID(id)
}

func (c *Client) WithCredential(token string) View {
	return c.view().WithCredential(token)
}

// WithCorrelationID returns a view that sends id as the correlation header.
func (v View) WithCorrelationID(id string) View {
	return v.WithHeader(common.CorrelationHeader, id)
}

// WithCredential returns a view forwarding token verbatim as the Authorization header.
// An empty token leaves the view unchanged.
func (v View) WithCredential(token string) View {
	if token == "" {
		return v
	}
	return v.WithHeader(common.AuthorizationHeader, token)
}

// WithHeader returns a view that also injects name: value. Setting the same name again replaces it.
func (v View) WithHeader(name, value string) View {
	h := v.headers.Clone()
	if h == nil {
		h = make(http.Header)
	}
	h.Set(name, value)
	return View{client: v.client, headers: h}
}

func (v View) Get(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return v.client.do(ctx, http.MethodGet, path, nil, v.headers, opts)
}

func (v View) Post(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return v.client.do(ctx, http.MethodPost, path, body, v.headers, opts)
}

func (v View) Put(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return v.client.do(ctx, http.MethodPut, path, body, v.headers, opts)
}

func (v View) Patch(ctx context.Context, path string, body any, opts ...RequestOption) (*Response, error) {
	return v.client.do(ctx, http.MethodPatch, path, body, v.headers, opts)
}

func (v View) Delete(ctx context.Context, path string, opts ...RequestOption) (*Response, error) {
	return v.client.do(ctx, http.MethodDelete, path, nil, v.headers, opts)
}

// Add query parameters to a single call
func WithQuery(q url.Values) RequestOption {
	return func(p *requestParameters) *requestParameters {
		if p.query == nil {
			p.query = make(url.Values)
		}
		for k, vv := range q {
			p.query[k] = append(p.query[k], vv...)
		}
		return p
	}
}

// Add a header to a single call. Headers injected by the View take precedence.
func WithRequestHeader(name, value string) RequestOption {
	return func(p *requestParameters) *requestParameters {
		p.headers.Set(name, value)
		return p
	}
}

// Name the circuit breaker resource for a call, e.g. "GET /books/{id}" instead of one breaker per id.
func WithResource(resource string) RequestOption {
	return func(p *requestParameters) *requestParameters {
		p.resource = resource
		return p
	}
}
