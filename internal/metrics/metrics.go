// Package metrics holds the Prometheus collectors of the feedbackbot server.
//
// Collectors are registered on a caller-supplied registry so tests and
// multiple servers in one process do not clash on the global one.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedbackbot"

// Metrics groups the server's collectors.
type Metrics struct {
	reg *prometheus.Registry

	// Labels: route, code
	Requests *prometheus.CounterVec
	// Labels: route, category
	UpstreamErrors *prometheus.CounterVec
	// Labels: direction (prompt, completion), model
	Tokens *prometheus.CounterVec
	// Labels: status (success, error)
	StreamDuration *prometheus.HistogramVec
	ActiveStreams  prometheus.Gauge
	// Labels: category
	PIIFindings *prometheus.CounterVec
	// Labels: kind (session, enhanced), result (ok, invalid, limited)
	AuthAttempts *prometheus.CounterVec
}

// New creates the collectors on a fresh registry that also carries the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		UpstreamErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Failed upstream calls by route and error category.",
		}, []string{"route", "category"}),
		Tokens: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens reported by the upstream by direction and model.",
		}, []string{"direction", "model"}),
		StreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of proxied chat streams.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}, []string{"status"}),
		ActiveStreams: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Chat streams currently being proxied.",
		}),
		PIIFindings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pii_findings_total",
			Help:      "PII findings returned by detection, by category.",
		}, []string{"category"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_attempts_total",
			Help:      "Login attempts by kind and result.",
		}, []string{"kind", "result"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// ObserveRequest counts a finished request.
func (m *Metrics) ObserveRequest(route string, code int) {
	m.Requests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}

// ObserveTokens adds a completion's usage.
func (m *Metrics) ObserveTokens(model string, prompt, completion int) {
	if prompt > 0 {
		m.Tokens.WithLabelValues("prompt", model).Add(float64(prompt))
	}
	if completion > 0 {
		m.Tokens.WithLabelValues("completion", model).Add(float64(completion))
	}
}

// StreamStarted marks a stream as active and returns a func that records
// its duration when called with the outcome.
func (m *Metrics) StreamStarted() func(ok bool) {
	start := time.Now()
	m.ActiveStreams.Inc()
	return func(ok bool) {
		m.ActiveStreams.Dec()
		status := "success"
		if !ok {
			status = "error"
		}
		m.StreamDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
	}
}
