package svcclient

import (
	"context"
	"errors"
	"time"

	"github.com/RassulYunussov/svcclient/internal/common"
	"github.com/prometheus/client_golang/prometheus"
)

type attemptCollector struct {
	attempts *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newAttemptCollector(reg prometheus.Registerer) (*attemptCollector, error) {
	attempts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "svcclient_attempts_total",
		Help: "Physical outbound attempts by target service, method and outcome.",
	}, []string{"service", "method", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "svcclient_attempt_duration_seconds",
		Help:    "Duration of physical outbound attempts.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"service", "method"})

	var err error
	if attempts, err = register(reg, attempts); err != nil {
		return nil, err
	}
	if duration, err = register(reg, duration); err != nil {
		return nil, err
	}
	return &attemptCollector{attempts: attempts, duration: duration}, nil
}

// register tolerates several clients sharing one registry.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

type metricsHttpClient struct {
	client    common.Attempter
	service   string
	collector *attemptCollector
}

func (c *metricsHttpClient) Attempt(ctx context.Context, r *common.Request) (*common.Response, error) {
	start := time.Now()
	resp, err := c.client.Attempt(ctx, r)
	c.collector.duration.WithLabelValues(c.service, r.Method).Observe(time.Since(start).Seconds())
	c.collector.attempts.WithLabelValues(c.service, r.Method, outcomeLabel(resp, err)).Inc()
	return resp, err
}

func outcomeLabel(resp *common.Response, err error) string {
	switch {
	case err != nil:
		return "transport_error"
	case resp.StatusCode >= 500:
		return "5xx"
	case resp.StatusCode >= 400:
		return "4xx"
	default:
		return "ok"
	}
}
