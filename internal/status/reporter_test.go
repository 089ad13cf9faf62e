package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

func newTestReporter(t *testing.T, baseURL string) *HTTPReporter {
	t.Helper()

	reporter, err := NewHTTPReporter(baseURL, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("NewHTTPReporter() error = %v", err)
	}
	reporter.now = func() time.Time { return time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC) }
	reporter.sleep = func(ctx context.Context, d time.Duration) error { return nil }

	return reporter
}

func TestHTTPReporterReportDelivered(t *testing.T) {
	t.Parallel()

	var gotUpdate statusUpdate

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/notifications/r-77/status" {
			t.Fatalf("unexpected path %q", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotUpdate); err != nil {
			t.Fatalf("failed to decode request body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	reporter := newTestReporter(t, server.URL)

	if err := reporter.Report(context.Background(), "r-77", domain.DeliveryStatusDelivered, ""); err != nil {
		t.Fatalf("Report() unexpected error: %v", err)
	}

	if gotUpdate.Status != string(domain.DeliveryStatusDelivered) {
		t.Fatalf("update.status = %q", gotUpdate.Status)
	}
	if gotUpdate.Error != "" {
		t.Fatalf("update.error = %q, want empty", gotUpdate.Error)
	}
	if gotUpdate.Timestamp != "2026-03-14T09:30:00Z" {
		t.Fatalf("update.timestamp = %q", gotUpdate.Timestamp)
	}
}

func TestHTTPReporterRetriesOnce(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	reporter := newTestReporter(t, server.URL)

	if err := reporter.Report(context.Background(), "r-1", domain.DeliveryStatusFailed, "provider rejected token"); err != nil {
		t.Fatalf("Report() unexpected error: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("gateway called %d times, want 2", got)
	}
}

func TestHTTPReporterGivesUpAfterBoundedAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	reporter := newTestReporter(t, server.URL)

	if err := reporter.Report(context.Background(), "r-1", domain.DeliveryStatusFailed, "boom"); err == nil {
		t.Fatal("Report() should fail once attempts are exhausted")
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("gateway called %d times, want 2", got)
	}
}

func TestHTTPReporterRejectsEmptyRequestID(t *testing.T) {
	t.Parallel()

	reporter := newTestReporter(t, "https://gateway.internal")

	if err := reporter.Report(context.Background(), " ", domain.DeliveryStatusDelivered, ""); err == nil {
		t.Fatal("Report() should reject an empty request id")
	}
}
