package observability

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncMessageConsumed("PUSH")
	metrics.IncDelivered("push")
	metrics.IncFailed("push", "Provider_Rejected")
	metrics.IncDuplicateSkipped("push")
	metrics.IncDeadLettered("push")
	metrics.ObserveSendDuration("push", 120*time.Millisecond)
	metrics.IncWorkerInFlight("push")
	metrics.DecWorkerInFlight("push")

	if got := testutil.ToFloat64(metrics.messagesConsumedTotal.WithLabelValues("push")); got != 1 {
		t.Fatalf("messages_consumed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deliveredTotal.WithLabelValues("push")); got != 1 {
		t.Fatalf("notifications_delivered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.failedTotal.WithLabelValues("push", "provider_rejected")); got != 1 {
		t.Fatalf("notifications_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.duplicatesTotal.WithLabelValues("push")); got != 1 {
		t.Fatalf("duplicates_skipped_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.deadLetteredTotal.WithLabelValues("push")); got != 1 {
		t.Fatalf("dead_lettered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("push")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
}

func TestMetricsBreakerGauge(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.SetBreakerOpen("fcm", true)
	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("fcm")); got != 1 {
		t.Fatalf("breaker_open = %v, want 1", got)
	}

	metrics.SetBreakerOpen("fcm", false)
	if got := testutil.ToFloat64(metrics.breakerState.WithLabelValues("fcm")); got != 0 {
		t.Fatalf("breaker_open = %v, want 0", got)
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

func TestMetricsNilReceiverIsSafe(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncDelivered("push")
	metrics.IncFailed("push", "boom")
	metrics.ObserveSendDuration("push", time.Second)
	metrics.SetBreakerOpen("fcm", true)

	if metrics.Handler() == nil {
		t.Fatal("Handler() should fall back to the default registry")
	}
}
