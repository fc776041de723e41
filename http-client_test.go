package svcclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/RassulYunussov/svcclient/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sony/gobreaker/v2"
	"gotest.tools/v3/assert"
	is "gotest.tools/v3/assert/cmp"
)

const httpServerSleepTime = 50

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// getHttpServer answers with statuses in order, repeating the last one.
func getHttpServer(statuses ...int) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	return httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			n := int(calls.Add(1))
			status := statuses[len(statuses)-1]
			if n <= len(statuses) {
				status = statuses[n-1]
			}
			w.WriteHeader(status)
		}),
	), &calls
}

func getJsonServer(status int, body string) (*httptest.Server, *atomic.Int32) {
	var calls atomic.Int32
	return httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			calls.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_, _ = io.WriteString(w, body)
		}),
	), &calls
}

type failingRoundTripper struct {
	calls atomic.Int32
}

func (f *failingRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	f.calls.Add(1)
	return nil, errors.New("dial tcp: connection refused")
}

func createClient(t *testing.T, baseAddress string, maxRetries int, opts ...Option) *Client {
	t.Helper()
	client, err := Create(ClientConfig{
		BaseAddress: baseAddress,
		ServiceName: "catalog-service",
		Timeout:     200 * time.Millisecond,
		MaxRetries:  maxRetries,
	}, append([]Option{WithLogger(discardLogger)}, opts...)...)
	assert.NilError(t, err)
	return client
}

func TestOk(t *testing.T) {
	s, calls := getJsonServer(http.StatusOK, `{"data":{"id":"b-1"}}`)
	defer s.Close()
	client := createClient(t, s.URL, 3)
	resp, err := client.Get(context.Background(), "/books/b-1")
	assert.NilError(t, err)
	assert.Equal(t, int32(1), calls.Load(), "expected 1 call")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	assert.NilError(t, resp.Decode(&payload))
	assert.Equal(t, "b-1", payload.Data.ID)
}

func TestTransportFailuresExhaustBudget(t *testing.T) {
	for _, maxRetries := range []int{0, 1, 2} {
		t.Run(fmt.Sprintf("retries=%d", maxRetries), func(t *testing.T) {
			rt := &failingRoundTripper{}
			client := createClient(t, "http://catalog-service:3002", maxRetries, WithHTTPTransport(rt))

			start := time.Now()
			_, err := client.Get(context.Background(), "/books")
			elapsed := time.Since(start)

			assert.Assert(t, IsServiceUnavailable(err))
			assert.Equal(t, int32(maxRetries+1), rt.calls.Load())
			minDelay := time.Duration(0)
			for n := 1; n <= maxRetries; n++ {
				minDelay += 100 * time.Millisecond << (n - 1)
			}
			assert.Assert(t, elapsed >= minDelay, "elapsed %s, expected at least %s", elapsed, minDelay)

			e, ok := AsError(err)
			assert.Assert(t, ok)
			assert.Equal(t, KindTransportFailure, e.Kind)
			assert.Equal(t, "catalog-service", e.Service)
			assert.Equal(t, 0, e.StatusCode)
			assert.Equal(t, maxRetries+1, e.Attempts)
			assert.Equal(t, http.StatusServiceUnavailable, e.HTTPStatus())
			assert.Equal(t, "catalog-service is unavailable", e.Message)
			assert.Check(t, strings.HasPrefix(e.Error(), "catalog-service: service unavailable: GET /books: "), e.Error())
			assert.Check(t, is.Contains(e.Error(), "connection refused"))
		})
	}
}

func TestNotFoundIsReturnedImmediately(t *testing.T) {
	s, calls := getHttpServer(http.StatusNotFound)
	defer s.Close()
	client := createClient(t, s.URL, 3)

	start := time.Now()
	_, err := client.Get(context.Background(), "/books/missing")

	assert.Assert(t, time.Since(start) < 100*time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "expected 1 call")
	e, ok := AsError(err)
	assert.Assert(t, ok)
	assert.Equal(t, KindUpstreamClient, e.Kind)
	assert.Equal(t, http.StatusNotFound, e.StatusCode)
	assert.Equal(t, http.StatusNotFound, e.HTTPStatus())
	assert.Equal(t, "UPSTREAM_ERROR", e.Code)
	assert.Equal(t, "catalog-service: http 404: Not Found", e.Error())
	assert.Equal(t, 1, e.Attempts)
}

func TestServiceUnavailableThenOk(t *testing.T) {
	s, calls := getHttpServer(http.StatusServiceUnavailable, http.StatusOK)
	defer s.Close()
	client := createClient(t, s.URL, 2)
	resp, err := client.Get(context.Background(), "/books")
	assert.NilError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load(), "expected exactly one retry")
}

func TestNumberOfRequestsIs4For5xx(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 3)
	_, err := client.Get(context.Background(), "/books")
	assert.Assert(t, IsBadGateway(err))
	assert.Equal(t, int32(4), calls.Load(), "expected 4 calls")
	e, _ := AsError(err)
	assert.Equal(t, http.StatusInternalServerError, e.StatusCode)
	assert.Equal(t, http.StatusBadGateway, e.HTTPStatus())
	assert.Equal(t, 4, e.Attempts)
}

func TestNumberOfRequestsIs1For5xx(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 0)
	_, err := client.Get(context.Background(), "/books")
	assert.Assert(t, IsBadGateway(err))
	assert.Equal(t, int32(1), calls.Load(), "expected 1 call")
}

func TestStructuredConflictIsNeverRetried(t *testing.T) {
	s, calls := getJsonServer(http.StatusConflict, `{"message":"ISBN already exists","code":"CONFLICT"}`)
	defer s.Close()
	client := createClient(t, s.URL, 5)
	_, err := client.Post(context.Background(), "/books", map[string]string{"isbn": "978-3-16-148410-0"})

	assert.Equal(t, int32(1), calls.Load(), "expected 1 call")
	e, ok := AsError(err)
	assert.Assert(t, ok)
	assert.Equal(t, KindUpstreamApplication, e.Kind)
	assert.Equal(t, http.StatusConflict, e.StatusCode)
	assert.Equal(t, "ISBN already exists", e.Message)
	assert.Equal(t, "CONFLICT", e.Code)
	assert.Assert(t, !IsBadGateway(err))
	assert.Assert(t, !IsServiceUnavailable(err))
}

func TestStructuredValidationErrors(t *testing.T) {
	s, _ := getJsonServer(http.StatusBadRequest, `{"message":"Validation failed","errors":[{"field":"title","message":"is required"}]}`)
	defer s.Close()
	client := createClient(t, s.URL, 1)
	_, err := client.Put(context.Background(), "/books/b-1", map[string]string{})

	e, ok := AsError(err)
	assert.Assert(t, ok)
	assert.Equal(t, "UPSTREAM_ERROR", e.Code)
	assert.DeepEqual(t, []FieldError{{Field: "title", Message: "is required"}}, e.FieldErrors)
}

func TestStructuredServerErrorSurfacesAfterRetries(t *testing.T) {
	s, calls := getJsonServer(http.StatusInternalServerError, `{"message":"database is down","code":"DB_DOWN"}`)
	defer s.Close()
	client := createClient(t, s.URL, 1)
	_, err := client.Get(context.Background(), "/books")

	assert.Equal(t, int32(2), calls.Load())
	e, ok := AsError(err)
	assert.Assert(t, ok)
	assert.Equal(t, KindUpstreamApplication, e.Kind)
	assert.Equal(t, "database is down", e.Message)
	assert.Equal(t, http.StatusInternalServerError, e.HTTPStatus())
}

func TestTimeoutError(t *testing.T) {
	var calls atomic.Int32
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		time.Sleep(httpServerSleepTime * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()
	client, err := Create(ClientConfig{
		BaseAddress: s.URL,
		ServiceName: "catalog-service",
		Timeout:     20 * time.Millisecond,
		MaxRetries:  1,
	}, WithLogger(discardLogger))
	assert.NilError(t, err)

	_, err = client.Get(context.Background(), "/books")
	assert.Assert(t, IsServiceUnavailable(err))
	var f *transport.Failure
	assert.Assert(t, errors.As(err, &f))
	assert.Assert(t, f.Timeout())
	assert.Equal(t, int32(2), calls.Load(), "expected 2 calls")
}

func TestContextCancelError(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Get(ctx, "/books")
	assert.Assert(t, IsServiceUnavailable(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), calls.Load(), "expected 0 call")
}

func TestCorrelationIdOnEveryAttempt(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	var auth []string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen = append(seen, r.Header.Get("x-request-id"))
		auth = append(auth, r.Header.Get("Authorization"))
		n := len(seen)
		mu.Unlock()
		if n < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()
	client := createClient(t, s.URL, 2)

	_, err := client.WithCorrelationID("abc-123").WithCredential("Bearer t0k3n").Post(context.Background(), "/books", map[string]string{"title": "Dune"})
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"abc-123", "abc-123", "abc-123"}, seen)
	assert.DeepEqual(t, []string{"Bearer t0k3n", "Bearer t0k3n", "Bearer t0k3n"}, auth)
}

func TestBodyIsReplayedOnRetry(t *testing.T) {
	var mu sync.Mutex
	var bodies []string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		n := len(bodies)
		mu.Unlock()
		assert.Check(t, is.Equal("application/json", r.Header.Get("Content-Type")))
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer s.Close()
	client := createClient(t, s.URL, 1)
	resp, err := client.Post(context.Background(), "/books", map[string]string{"title": "Dune"})
	assert.NilError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.DeepEqual(t, []string{`{"title":"Dune"}`, `{"title":"Dune"}`}, bodies)
}

func TestDecoratorWinsOverCallHeaders(t *testing.T) {
	var got http.Header
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer s.Close()
	client := createClient(t, s.URL, 0)

	view := client.WithCredential("Bearer first").WithCorrelationID("view-id").WithCredential("Bearer second")
	_, err := view.Delete(context.Background(), "/books/b-1",
		WithRequestHeader("x-request-id", "caller-id"),
		WithRequestHeader("X-Tenant", "acme"))
	assert.NilError(t, err)
	assert.Equal(t, "view-id", got.Get("x-request-id"))
	assert.Equal(t, "Bearer second", got.Get("Authorization"))
	assert.Equal(t, "acme", got.Get("X-Tenant"))
}

func TestDecorationDoesNotMutateClientOrParentView(t *testing.T) {
	var mu sync.Mutex
	var ids []string
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		ids = append(ids, r.Header.Get("x-request-id")+"|"+r.Header.Get("Authorization"))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()
	client := createClient(t, s.URL, 0)

	parent := client.WithCorrelationID("parent")
	_ = parent.WithCredential("Bearer child")
	_, err := parent.Get(context.Background(), "/books")
	assert.NilError(t, err)
	_, err = client.Get(context.Background(), "/books")
	assert.NilError(t, err)
	assert.DeepEqual(t, []string{"parent|", "|"}, ids)
}

func TestConcurrentViewsDoNotShareHeaders(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": r.Header.Get("x-request-id")})
	}))
	defer s.Close()
	client := createClient(t, s.URL, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			resp, err := client.WithCorrelationID(id).Get(context.Background(), "/books")
			if err != nil {
				errs <- err
				return
			}
			var echoed map[string]string
			if err := resp.Decode(&echoed); err != nil {
				errs <- err
				return
			}
			if echoed["id"] != id {
				errs <- fmt.Errorf("expected %s, got %s", id, echoed["id"])
			}
		}(fmt.Sprintf("req-%d", i))
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NilError(t, err)
	}
}

func TestRepeatedGetIsByteIdentical(t *testing.T) {
	s, _ := getJsonServer(http.StatusOK, `{"data":[{"id":"b-1","title":"Dune"}],"total":1}`)
	defer s.Close()
	client := createClient(t, s.URL, 2)
	first, err := client.Get(context.Background(), "/books")
	assert.NilError(t, err)
	second, err := client.Get(context.Background(), "/books")
	assert.NilError(t, err)
	assert.DeepEqual(t, []byte(first.Body), []byte(second.Body))
}

func TestQueryAndBasePathPrefix(t *testing.T) {
	var got *url.URL
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.URL
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()
	client := createClient(t, s.URL+"/api", 0)
	_, err := client.Get(context.Background(), "/books", WithQuery(url.Values{"page": {"2"}, "author": {"Herbert"}}))
	assert.NilError(t, err)
	assert.Equal(t, "/api/books", got.Path)
	assert.Equal(t, "2", got.Query().Get("page"))
	assert.Equal(t, "Herbert", got.Query().Get("author"))
}

func TestAbsolutePathIsRejected(t *testing.T) {
	rt := &failingRoundTripper{}
	client := createClient(t, "http://catalog-service:3002", 2, WithHTTPTransport(rt))
	_, err := client.Get(context.Background(), "http://elsewhere/books")
	assert.ErrorIs(t, err, transport.ErrAbsolutePath)
	assert.Equal(t, int32(0), rt.calls.Load())
}

func TestInvalidConfig(t *testing.T) {
	for name, config := range map[string]ClientConfig{
		"missing address":  {ServiceName: "catalog-service", Timeout: time.Second},
		"relative address": {BaseAddress: "catalog-service", ServiceName: "catalog-service", Timeout: time.Second},
		"missing name":     {BaseAddress: "http://catalog-service:3002", Timeout: time.Second},
		"zero timeout":     {BaseAddress: "http://catalog-service:3002", ServiceName: "catalog-service"},
		"negative retries": {BaseAddress: "http://catalog-service:3002", ServiceName: "catalog-service", Timeout: time.Second, MaxRetries: -1},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := Create(config)
			assert.Assert(t, err != nil)
		})
	}
}

func TestIdempotentRetriesOnly(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 2, WithIdempotentRetriesOnly())

	_, err := client.Post(context.Background(), "/books", map[string]string{"title": "Dune"})
	assert.Assert(t, IsBadGateway(err))
	assert.Equal(t, int32(1), calls.Load(), "POST must not be retried")

	_, err = client.Put(context.Background(), "/books/b-1", map[string]string{"title": "Dune"})
	assert.Assert(t, IsBadGateway(err))
	assert.Equal(t, int32(4), calls.Load(), "PUT keeps its retries")
}

func TestPostIsRetriedByDefault(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 2)
	_, err := client.Patch(context.Background(), "/books/b-1", map[string]string{"title": "Dune"})
	assert.Assert(t, IsBadGateway(err))
	assert.Equal(t, int32(3), calls.Load())
}

func TestCircuitBreaker(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 0, WithCircuitBreaker(1, 2, time.Second, time.Second))
	for i := 0; i < 3; i++ {
		_, err := client.Get(context.Background(), "/books")
		if i > 1 {
			assert.Assert(t, IsServiceUnavailable(err))
			assert.ErrorIs(t, err, gobreaker.ErrOpenState)
		} else {
			assert.Assert(t, IsBadGateway(err))
		}
	}
	assert.Equal(t, int32(2), calls.Load(), "expected only 2 requests to reach server")
}

func TestOpenCircuitIsNotRetried(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 3, WithCircuitBreaker(1, 2, time.Second, time.Second))
	_, err := client.Get(context.Background(), "/books")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, int32(2), calls.Load(), "breaker opens after 2 failures and stops the retries")
	e, _ := AsError(err)
	assert.Equal(t, 3, e.Attempts)
}

func TestCircuitBreakerResource(t *testing.T) {
	s, calls := getHttpServer(http.StatusInternalServerError)
	defer s.Close()
	client := createClient(t, s.URL, 0, WithCircuitBreaker(1, 1, time.Second, time.Second))
	_, err := client.Get(context.Background(), "/books/1", WithResource("GET /books/{id}"))
	assert.Assert(t, IsBadGateway(err))
	_, err = client.Get(context.Background(), "/books/2", WithResource("GET /books/{id}"))
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	_, err = client.Get(context.Background(), "/books")
	assert.Assert(t, IsBadGateway(err))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallerDeadlinesKeepCircuitClosed(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(httpServerSleepTime * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer s.Close()
	client := createClient(t, s.URL, 2, WithCircuitBreaker(1, 5, time.Minute, 30*time.Second))

	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		_, err := client.Get(ctx, "/books")
		cancel()
		assert.Assert(t, IsServiceUnavailable(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	}

	resp, err := client.Get(context.Background(), "/books")
	assert.NilError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetrics(t *testing.T) {
	s, _ := getHttpServer(http.StatusServiceUnavailable, http.StatusOK)
	defer s.Close()
	reg := prometheus.NewRegistry()
	client := createClient(t, s.URL, 1, WithMetrics(reg))
	other := createClient(t, s.URL, 0, WithMetrics(reg))

	_, err := client.Get(context.Background(), "/books")
	assert.NilError(t, err)
	_, err = other.Get(context.Background(), "/books")
	assert.NilError(t, err)

	collector, err := newAttemptCollector(reg)
	assert.NilError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(collector.attempts.WithLabelValues("catalog-service", http.MethodGet, "5xx")))
	assert.Equal(t, 2.0, testutil.ToFloat64(collector.attempts.WithLabelValues("catalog-service", http.MethodGet, "ok")))
}
