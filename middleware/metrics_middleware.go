package middleware

import (
	"context"
	"time"

	"chan-rpc/message"
	"chan-rpc/rpcerr"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts invocations per method and outcome ("ok" or the rpcerr kind) and
// observes their latency.
type Metrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chanrpc",
			Name:      "invocations_total",
			Help:      "Invocations handled, by method and outcome.",
		}, []string{"method", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chanrpc",
			Name:      "invocation_duration_seconds",
			Help:      "Invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
	reg.MustRegister(m.total, m.duration)
	return m
}

func (m *Metrics) Middleware() Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, inv *message.Invocation) (*message.Result, error) {
			start := time.Now()
			res, err := next(ctx, inv)
			method := methodName(inv)
			m.duration.WithLabelValues(method).Observe(time.Since(start).Seconds())
			outcome := "ok"
			if err != nil {
				outcome = rpcerr.KindOf(err).String()
			}
			m.total.WithLabelValues(method, outcome).Inc()
			return res, err
		}
	}
}
