package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the capture API and the
// background sync worker.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	recordsCaptured     prometheus.Counter
	recordsSyncedTotal  *prometheus.CounterVec
	syncFailedTotal     *prometheus.CounterVec
	syncDuration        *prometheus.HistogramVec
	retryScheduledTotal *prometheus.CounterVec
	queueDepth          *prometheus.GaugeVec
	breakerState        *prometheus.GaugeVec
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edge_sync",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edge_sync",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		recordsCaptured: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "edge_sync",
				Name:      "records_captured_total",
				Help:      "Total number of records durably appended to the local log.",
			},
		),
		recordsSyncedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edge_sync",
				Name:      "records_synced_total",
				Help:      "Total number of records confirmed by the cloud, grouped by sync path.",
			},
			[]string{"path"},
		),
		syncFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edge_sync",
				Name:      "sync_failed_total",
				Help:      "Total number of records moved to FAILED_PERMANENT, grouped by sync path and reason.",
			},
			[]string{"path", "reason"},
		),
		syncDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "edge_sync",
				Name:      "sync_duration_seconds",
				Help:      "Replication attempt duration in seconds for successful syncs, grouped by sync path.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"path"},
		),
		retryScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "edge_sync",
				Name:      "retry_scheduled_total",
				Help:      "Total number of failed attempts requeued with a backoff delay, grouped by sync path.",
			},
			[]string{"path"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "edge_sync",
				Name:      "queue_depth",
				Help:      "Current number of records in the local log grouped by sync state.",
			},
			[]string{"state"},
		),
		breakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "edge_sync",
				Name:      "breaker_state",
				Help:      "Circuit breaker state per endpoint: 0 closed, 1 half-open, 2 open.",
			},
			[]string{"endpoint"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.recordsCaptured,
		m.recordsSyncedTotal,
		m.syncFailedTotal,
		m.syncDuration,
		m.retryScheduledTotal,
		m.queueDepth,
		m.breakerState,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncRecordCaptured() {
	if m == nil {
		return
	}
	m.recordsCaptured.Inc()
}

func (m *Metrics) IncRecordSynced(path string) {
	if m == nil {
		return
	}
	m.recordsSyncedTotal.WithLabelValues(normalizeLabel(path)).Inc()
}

func (m *Metrics) IncSyncFailed(path string, reason string) {
	if m == nil {
		return
	}
	reasonLabel := normalizeLabel(reason)
	m.syncFailedTotal.WithLabelValues(normalizeLabel(path), reasonLabel).Inc()
}

func (m *Metrics) ObserveSyncDuration(path string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.syncDuration.WithLabelValues(normalizeLabel(path)).Observe(seconds)
}

func (m *Metrics) IncRetryScheduled(path string) {
	if m == nil {
		return
	}
	m.retryScheduledTotal.WithLabelValues(normalizeLabel(path)).Inc()
}

func (m *Metrics) SetQueueDepth(state string, depth float64) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(normalizeLabel(state)).Set(depth)
}

func (m *Metrics) SetBreakerState(endpoint string, state string) {
	if m == nil {
		return
	}

	var value float64
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "HALF_OPEN":
		value = 1
	case "OPEN":
		value = 2
	default:
		value = 0
	}
	m.breakerState.WithLabelValues(normalizeLabel(endpoint)).Set(value)
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
