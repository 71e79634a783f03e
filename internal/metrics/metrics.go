// Package metrics provides the gateway's pull-based instrumentation. It is
// strictly observational: nothing here can fail a request.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
)

// Outcome labels for the request counter.
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// IndexStats supplies gauge values at scrape time. Gauges reflect the value
// at read time, never a cached one.
type IndexStats func() (chunkCount int, sizeBytes int64)

// Metrics holds the process-wide counters, histograms and gauges.
// Initialized once at process start, never reset.
type Metrics struct {
	registry *prometheus.Registry

	requests   *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	noResponse prometheus.Counter
}

// New creates the metric set, registering gauges that call stats on every
// scrape.
func New(stats IndexStats) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gateway_requests_total",
			Help: "Requests by logical endpoint and final outcome.",
		}, []string{"endpoint", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Request latency by logical endpoint, regardless of outcome.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		noResponse: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gateway_engine_no_response_total",
			Help: "Queries where the engine produced no parseable answer.",
		}),
	}

	registry.MustRegister(m.requests, m.latency, m.noResponse)

	if stats != nil {
		registry.MustRegister(
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gateway_index_chunks",
				Help: "Document chunks in the current metadata snapshot.",
			}, func() float64 {
				chunks, _ := stats()
				return float64(chunks)
			}),
			prometheus.NewGaugeFunc(prometheus.GaugeOpts{
				Name: "gateway_index_size_bytes",
				Help: "Size of the opaque index artifact.",
			}, func() float64 {
				_, size := stats()
				return float64(size)
			}),
		)
	}

	return m
}

// Instrument runs fn for the given logical endpoint, recording exactly one
// counter increment and one latency observation reflecting the final
// outcome. The error is passed through untouched.
func (m *Metrics) Instrument(endpoint string, fn func() error) error {
	started := time.Now()
	err := fn()
	m.Observe(endpoint, err, time.Since(started))
	return err
}

// Observe records one finished request.
func (m *Metrics) Observe(endpoint string, err error, elapsed time.Duration) {
	status := OutcomeSuccess
	if err != nil {
		status = OutcomeError
	}
	m.requests.WithLabelValues(endpoint, status).Inc()
	m.latency.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

// MarkNoResponse counts a query whose engine output carried no sentinel.
// Such queries count as success at the request counter but stay observable
// through this dedicated series.
func (m *Metrics) MarkNoResponse() {
	m.noResponse.Inc()
}

// Handler returns the text exposition handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RequestCount returns the current counter value for an endpoint/status
// pair. Intended for tests and the stats endpoint.
func (m *Metrics) RequestCount(endpoint, status string) float64 {
	counter, err := m.requests.GetMetricWithLabelValues(endpoint, status)
	if err != nil {
		return 0
	}
	return counterValue(counter)
}

func counterValue(c prometheus.Counter) float64 {
	var sample dto.Metric
	if err := c.Write(&sample); err != nil {
		return 0
	}
	return sample.GetCounter().GetValue()
}

