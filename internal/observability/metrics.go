package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	activeRequests   prometheus.Gauge
	authFailures     *prometheus.CounterVec
	upstreamTotal    *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	upstreamErrors   *prometheus.CounterVec
	keysLoaded       prometheus.Gauge
	keyReloadTotal   *prometheus.CounterVec
	keyReloadTime    prometheus.Histogram
	buildInfo        *prometheus.GaugeVec
	registry         *prometheus.Registry
}

// NewMetrics creates a new Metrics instance with its own registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "llmgw"
	}

	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	m.requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets: []float64{
				.005, .025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300,
			},
		},
		[]string{"method", "status"},
	)

	m.activeRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_requests",
			Help:      "Number of in-flight HTTP requests",
		},
	)

	m.authFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_failures_total",
			Help:      "Total number of rejected requests by failure reason",
		},
		[]string{"reason"},
	)

	m.upstreamTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "Total number of requests forwarded to the upstream",
		},
		[]string{"method", "status"},
	)

	m.upstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream request duration in seconds",
			Buckets: []float64{
				.025, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300,
			},
		},
		[]string{"method", "status"},
	)

	m.upstreamErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of failed upstream calls by kind",
		},
		[]string{"kind"},
	)

	m.keysLoaded = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_keys_loaded",
			Help:      "Number of API keys in the current credential set",
		},
	)

	m.keyReloadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "key_reload_total",
			Help:      "Total number of credential reload attempts",
		},
		[]string{"result"},
	)

	m.keyReloadTime = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "key_reload_duration_seconds",
			Help:      "Duration of credential reload operations",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	m.buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information (value is always 1)",
		},
		[]string{"version"},
	)

	m.registry.MustRegister(
		m.requestsTotal,
		m.requestDuration,
		m.activeRequests,
		m.authFailures,
		m.upstreamTotal,
		m.upstreamDuration,
		m.upstreamErrors,
		m.keysLoaded,
		m.keyReloadTotal,
		m.keyReloadTime,
		m.buildInfo,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// RecordRequest records a completed inbound request.
func (m *Metrics) RecordRequest(method string, status int, duration time.Duration) {
	s := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(method, s).Inc()
	m.requestDuration.WithLabelValues(method, s).Observe(duration.Seconds())
}

// RequestStarted increments the in-flight request gauge.
func (m *Metrics) RequestStarted() {
	m.activeRequests.Inc()
}

// RequestFinished decrements the in-flight request gauge.
func (m *Metrics) RequestFinished() {
	m.activeRequests.Dec()
}

// RecordAuthFailure records a rejected request. Reason is one of
// "missing" or "invalid".
func (m *Metrics) RecordAuthFailure(reason string) {
	m.authFailures.WithLabelValues(reason).Inc()
}

// RecordUpstream records a completed upstream call.
func (m *Metrics) RecordUpstream(method string, status int, duration time.Duration) {
	s := strconv.Itoa(status)
	m.upstreamTotal.WithLabelValues(method, s).Inc()
	m.upstreamDuration.WithLabelValues(method, s).Observe(duration.Seconds())
}

// RecordUpstreamError records a failed upstream call. Kind is one of
// "unavailable", "timeout", "canceled" or "circuit_open".
func (m *Metrics) RecordUpstreamError(kind string) {
	m.upstreamErrors.WithLabelValues(kind).Inc()
}

// SetKeysLoaded sets the credential set size gauge.
func (m *Metrics) SetKeysLoaded(n int) {
	m.keysLoaded.Set(float64(n))
}

// RecordKeyReload records a credential reload attempt.
func (m *Metrics) RecordKeyReload(success bool, duration time.Duration) {
	result := "success"
	if !success {
		result = "error"
	}
	m.keyReloadTotal.WithLabelValues(result).Inc()
	m.keyReloadTime.Observe(duration.Seconds())
}

// SetBuildInfo sets the build info gauge.
func (m *Metrics) SetBuildInfo(version string) {
	m.buildInfo.WithLabelValues(version).Set(1)
}

// RegisterCollector registers an additional collector with the registry.
func (m *Metrics) RegisterCollector(c prometheus.Collector) error {
	return m.registry.Register(c)
}

// Handler returns an http.Handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
