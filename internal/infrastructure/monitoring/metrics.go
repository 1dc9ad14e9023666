package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Evaluation metrics
	Evaluations        *prometheus.CounterVec
	EvaluationDuration prometheus.Histogram
	ActiveInvocations  prometheus.Gauge
	CompileCache       *prometheus.CounterVec

	// Host bridge metrics
	HostRequests *prometheus.CounterVec
	HostCalls    *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// Store metrics
	Snapshots *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	// Snapshot for JSON API - track current values
	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON API
type MetricsSnapshot struct {
	TotalRequests     int64   `json:"total_requests"`
	TotalErrors       int64   `json:"total_errors"`
	TotalEvaluations  int64   `json:"total_evaluations"`
	FailedEvaluations int64   `json:"failed_evaluations"`
	ActiveConnections int64   `json:"active_connections"`
	AvgResponseTime   float64 `json:"avg_response_time_seconds"`
	Uptime            float64 `json:"uptime_seconds"`
}

// NewMetrics creates a metrics collector on its own registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "scripthost_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 7),
			},
			[]string{"method", "path"},
		),

		// Evaluation metrics
		Evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_evaluations_total",
				Help: "Total number of script evaluations",
			},
			[]string{"status"},
		),
		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "scripthost_evaluation_duration_seconds",
				Help:    "Script evaluation duration in seconds, including host round trips",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		ActiveInvocations: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scripthost_active_invocations",
				Help: "Number of in-flight script evaluations",
			},
		),
		CompileCache: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_compile_cache_total",
				Help: "Compile cache lookups by result",
			},
			[]string{"result"},
		),

		// Host bridge metrics
		HostRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_host_requests_total",
				Help: "Requests sent from sandboxes to the host",
			},
			[]string{"kind", "status"},
		),
		HostCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_host_calls_total",
				Help: "Host function invocations served by the host driver",
			},
			[]string{"function", "status"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "scripthost_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "kind"},
		),

		// Store metrics
		Snapshots: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "scripthost_snapshots_total",
				Help: "Snapshot save and load operations",
			},
			[]string{"op", "status"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "scripthost_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry returns the registry all metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	m.snapshot.AvgResponseTime += (duration.Seconds() - m.snapshot.AvgResponseTime) / float64(m.snapshot.TotalRequests)
	if status != "" && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordEvaluation records a finished evaluation. Status is "ok" or "error".
func (m *Metrics) RecordEvaluation(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(status).Inc()
	m.EvaluationDuration.Observe(duration.Seconds())

	m.mu.Lock()
	m.snapshot.TotalEvaluations++
	if status != "ok" {
		m.snapshot.FailedEvaluations++
	}
	m.mu.Unlock()
}

// IncActiveInvocations increments the in-flight evaluation gauge
func (m *Metrics) IncActiveInvocations() {
	if m == nil {
		return
	}
	m.ActiveInvocations.Inc()
}

// DecActiveInvocations decrements the in-flight evaluation gauge
func (m *Metrics) DecActiveInvocations() {
	if m == nil {
		return
	}
	m.ActiveInvocations.Dec()
}

// RecordCompile records a compile cache lookup
func (m *Metrics) RecordCompile(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CompileCache.WithLabelValues(result).Inc()
}

// RecordHostRequest records the outcome of a call or yield sent to the host
func (m *Metrics) RecordHostRequest(kind, status string) {
	if m == nil {
		return
	}
	m.HostRequests.WithLabelValues(kind, status).Inc()
}

// RecordHostCall records a host function invocation
func (m *Metrics) RecordHostCall(function, status string) {
	if m == nil {
		return
	}
	m.HostCalls.WithLabelValues(function, status).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, kind string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, kind).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// RecordSnapshot records a snapshot save or load
func (m *Metrics) RecordSnapshot(op, status string) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(op, status).Inc()
}

// GetSnapshot returns a copy of the current values for the JSON API
func (m *Metrics) GetSnapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := m.snapshot
	snap.Uptime = time.Since(m.startTime).Seconds()
	return snap
}
