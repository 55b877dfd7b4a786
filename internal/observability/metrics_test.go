package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsSyncCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncRecordCaptured()
	metrics.IncRecordSynced("inline")
	metrics.IncSyncFailed("worker", "retry_exhausted")
	metrics.ObserveSyncDuration("inline", 120*time.Millisecond)
	metrics.IncRetryScheduled("worker")
	metrics.SetQueueDepth("QUEUED", 7)
	metrics.SetBreakerState("record-create", "OPEN")

	if got := testutil.ToFloat64(metrics.recordsCaptured); got != 1 {
		t.Fatalf("records_captured_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.recordsSyncedTotal.WithLabelValues("inline")); got != 1 {
		t.Fatalf("records_synced_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.syncFailedTotal.WithLabelValues("worker", "retry_exhausted")); got != 1 {
		t.Fatalf("sync_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("worker")); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.queueDepth.WithLabelValues("queued")); got != 7 {
		t.Fatalf("queue_depth = %v, want 7", got)
	}
	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("record-create")); got != 2 {
		t.Fatalf("breaker_state = %v, want 2", got)
	}
}

func TestMetricsBreakerStateMapping(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.SetBreakerState("entity-lookup", "HALF_OPEN")
	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("entity-lookup")); got != 1 {
		t.Fatalf("breaker_state = %v, want 1", got)
	}

	metrics.SetBreakerState("entity-lookup", "CLOSED")
	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("entity-lookup")); got != 0 {
		t.Fatalf("breaker_state = %v, want 0", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
