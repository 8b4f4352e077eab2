package api

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus metrics exported at GET /metrics.
type Metrics struct {
	registry          *prometheus.Registry
	RequestsTotal     *prometheus.CounterVec
	RequestDuration   *prometheus.HistogramVec
	ThreatEvaluations *prometheus.CounterVec
	BudgetDecisions   *prometheus.CounterVec
	EventsDropped     prometheus.Counter
	ProxyRunning      prometheus.Gauge
}

// NewMetrics creates a fresh registry and registers every metric on it.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelwatch",
				Name:      "http_requests_total",
				Help:      "Total number of local API requests processed",
			},
			[]string{"method", "status"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "sentinelwatch",
				Name:      "http_request_duration_seconds",
				Help:      "Local API request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method"},
		),
		ThreatEvaluations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelwatch",
				Name:      "threat_evaluations_total",
				Help:      "Total proxy-path threat evaluations",
			},
			[]string{"result"}, // result=clean/matched/blocked
		),
		BudgetDecisions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "sentinelwatch",
				Name:      "budget_decisions_total",
				Help:      "Total budget guardian decisions",
			},
			[]string{"decision"}, // decision=allow/warn/deny
		),
		EventsDropped: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "sentinelwatch",
				Name:      "events_dropped_total",
				Help:      "Total events dropped because the side-effect channel was full",
			},
		),
		ProxyRunning: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "sentinelwatch",
				Name:      "proxy_running",
				Help:      "1 if the LLM proxy listener is currently running, else 0",
			},
		),
	}
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// middleware records request count and latency for every route except
// /metrics and /health, mirroring the teacher's statusRecorder idiom.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		m.RequestDuration.WithLabelValues(r.Method).Observe(time.Since(start).Seconds())
		m.RequestsTotal.WithLabelValues(r.Method, statusToLabel(rec.status)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func statusToLabel(code int) string {
	if code >= 200 && code < 400 {
		return "ok"
	}
	return "error"
}
