package svcclient

import (
	"log/slog"
	"net/http"
	"net/url"

	"github.com/RassulYunussov/svcclient/internal/cb"
	"github.com/prometheus/client_golang/prometheus"
)

type clientCreationParameters struct {
	idempotentRetriesOnly    bool
	circuitBreakerParameters *cb.CircuitBreakerParameters
	logger                   *slog.Logger
	registerer               prometheus.Registerer
	roundTripper             http.RoundTripper
}

type requestParameters struct {
	query    url.Values
	headers  http.Header
	resource string
}

func applyRequestOptions(opts []RequestOption) *requestParameters {
	p := &requestParameters{headers: make(http.Header)}
	for _, o := range opts {
		if o != nil {
			p = o(p)
		}
	}
	return p
}
