package hooks

import (
	"fmt"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/Skryldev/image-source/core"
)

// PrometheusMetrics exports fetch and pipeline metrics to Prometheus.
type PrometheusMetrics struct {
	fetchDuration *promclient.HistogramVec
	cacheHits     *promclient.CounterVec
	coalesced     *promclient.CounterVec
	errors        *promclient.CounterVec
	stepDuration  *promclient.HistogramVec
	throughput    promclient.Counter
}

// NewPrometheusMetrics registers the collectors with reg (the default
// registerer when nil). Registering twice reuses the existing collectors.
func NewPrometheusMetrics(namespace string, reg promclient.Registerer) (*PrometheusMetrics, error) {
	if namespace == "" {
		namespace = "imagesource"
	}
	if reg == nil {
		reg = promclient.DefaultRegisterer
	}
	m := &PrometheusMetrics{
		fetchDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "fetch_duration_seconds",
			Help:      "Latency of fulfilment attempts by scheme.",
			Buckets:   promclient.DefBuckets,
		}, []string{"scheme"}),
		cacheHits: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Fetches served by an already fulfilled request.",
		}, []string{"scheme"}),
		coalesced: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "coalesced_total",
			Help:      "Callers that joined an in-flight fetch.",
		}, []string{"scheme"}),
		errors: promclient.NewCounterVec(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "errors_total",
			Help:      "Failures by scope and error category.",
		}, []string{"scope", "category"}),
		stepDuration: promclient.NewHistogramVec(promclient.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Latency of pipeline steps.",
			Buckets:   promclient.DefBuckets,
		}, []string{"step"}),
		throughput: promclient.NewCounter(promclient.CounterOpts{
			Namespace: namespace,
			Name:      "processed_bytes_total",
			Help:      "Cumulative bytes produced by pipeline steps.",
		}),
	}

	var err error
	if m.fetchDuration, err = register(reg, m.fetchDuration, "fetch histogram"); err != nil {
		return nil, err
	}
	if m.cacheHits, err = register(reg, m.cacheHits, "cache hit counter"); err != nil {
		return nil, err
	}
	if m.coalesced, err = register(reg, m.coalesced, "coalesced counter"); err != nil {
		return nil, err
	}
	if m.errors, err = register(reg, m.errors, "error counter"); err != nil {
		return nil, err
	}
	if m.stepDuration, err = register(reg, m.stepDuration, "step histogram"); err != nil {
		return nil, err
	}
	if m.throughput, err = register(reg, m.throughput, "throughput counter"); err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, returning the collector already registered under
// the same descriptor when there is one of the same type.
func register[C promclient.Collector](reg promclient.Registerer, c C, what string) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(promclient.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, fmt.Errorf("register %s: %w", what, err)
	}
	return c, nil
}

func (m *PrometheusMetrics) RecordFetchTime(scheme string, d time.Duration) {
	m.fetchDuration.WithLabelValues(scheme).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordCacheHit(scheme string) {
	m.cacheHits.WithLabelValues(scheme).Inc()
}

func (m *PrometheusMetrics) RecordCoalesced(scheme string) {
	m.coalesced.WithLabelValues(scheme).Inc()
}

func (m *PrometheusMetrics) RecordError(scope, category string) {
	m.errors.WithLabelValues(scope, category).Inc()
}

func (m *PrometheusMetrics) RecordStepTime(step string, d time.Duration) {
	m.stepDuration.WithLabelValues(step).Observe(d.Seconds())
}

func (m *PrometheusMetrics) RecordThroughput(bytes int64) {
	if bytes > 0 {
		m.throughput.Add(float64(bytes))
	}
}

var (
	_ core.MetricsCollector = (*PrometheusMetrics)(nil)
	_ core.MetricsCollector = (*InMemoryMetrics)(nil)
)
