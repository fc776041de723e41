// Package requestid assigns every inbound request a correlation id that is
// forwarded on all outbound calls made while serving it.
package requestid

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/RassulYunussov/svcclient"
	"github.com/google/uuid"
)

type contextKey struct{}

// Middleware reuses an inbound x-request-id or generates a new one, stores it
// in the request context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(svcclient.CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(svcclient.CorrelationHeader, id)

		slog.DebugContext(r.Context(), "request started",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path))

		next.ServeHTTP(w, r.WithContext(NewContext(r.Context(), id)))
	})
}

func NewContext(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the request id, or "" when none was assigned.
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
