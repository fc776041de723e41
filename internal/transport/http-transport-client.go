package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/RassulYunussov/svcclient/internal/common"
)

const contentTypeJSON = "application/json"

var ErrAbsolutePath = errors.New("path must be relative to the base address")

// Failure reports an attempt that produced no HTTP response.
type Failure struct {
	Service string
	Method  string
	Path    string
	Err     error
	timeout bool
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Method, f.Path, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Timeout reports whether the attempt exceeded the configured timeout.
func (f *Failure) Timeout() bool { return f.timeout }

type httpTransportClient struct {
	client  *http.Client
	base    *url.URL
	service string
	logger  *slog.Logger
}

func CreateHttpTransportClient(base *url.URL, service string, timeout time.Duration, rt http.RoundTripper, logger *slog.Logger) common.Attempter {
	b := *base
	if !strings.HasSuffix(b.Path, "/") {
		b.Path += "/"
	}
	return &httpTransportClient{
		client:  &http.Client{Timeout: timeout, Transport: rt},
		base:    &b,
		service: service,
		logger:  logger,
	}
}

func (c *httpTransportClient) Attempt(ctx context.Context, r *common.Request) (*common.Response, error) {
	target, err := resolve(c.base, r.Path, r.Query)
	if err != nil {
		return nil, err
	}
	var body io.Reader = http.NoBody
	if r.Body != nil {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return nil, err
	}
	for k, vv := range r.Header {
		req.Header[k] = append([]string(nil), vv...)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	start := time.Now()
	resp, err := c.do(req)
	elapsed := time.Since(start)
	requestID := r.Header.Get(common.CorrelationHeader)
	if err != nil {
		c.logger.DebugContext(ctx, "outbound attempt failed",
			slog.String("method", r.Method),
			slog.String("path", r.Path),
			slog.String("request_id", requestID),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
		return nil, &Failure{Service: c.service, Method: r.Method, Path: r.Path, Err: err, timeout: isTimeout(err)}
	}
	c.logger.DebugContext(ctx, "outbound attempt",
		slog.String("method", r.Method),
		slog.String("path", r.Path),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", elapsed))
	return resp, nil
}

// do reads the whole body so a timeout while streaming it is still a transport failure
// and the connection is released before the next attempt.
func (c *httpTransportClient) do(req *http.Request) (*common.Response, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return &common.Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// ValidatePath rejects paths that would escape the configured base address.
func ValidatePath(path string) error {
	_, err := parsePath(path)
	return err
}

func parsePath(path string) (*url.URL, error) {
	p, err := url.Parse(strings.TrimSpace(path))
	if err != nil {
		return nil, err
	}
	if p.IsAbs() || p.Host != "" {
		return nil, fmt.Errorf("%w: %q", ErrAbsolutePath, path)
	}
	return p, nil
}

func resolve(base *url.URL, path string, query url.Values) (*url.URL, error) {
	p, err := parsePath(path)
	if err != nil {
		return nil, err
	}
	// base path acts as a prefix, so "/books" against http://host/api resolves to /api/books
	p.Path = strings.TrimPrefix(p.Path, "/")
	p.RawPath = strings.TrimPrefix(p.RawPath, "/")
	target := base.ResolveReference(p)
	if len(query) > 0 {
		q := target.Query()
		for k, vv := range query {
			for _, v := range vv {
				q.Add(k, v)
			}
		}
		target.RawQuery = q.Encode()
	}
	return target, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
