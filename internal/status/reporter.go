// Package status pushes terminal delivery outcomes back to the gateway so
// callers polling a request can see whether it was delivered or failed.
package status

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

const (
	defaultReportTimeout  = 5 * time.Second
	defaultReportAttempts = 2
	defaultReportDelay    = 500 * time.Millisecond
)

// Reporter records the terminal outcome of a notification request. Reporting
// is best effort: a lost report never fails the delivery it describes.
type Reporter interface {
	Report(ctx context.Context, requestID string, status domain.DeliveryStatus, reason string) error
}

type statusUpdate struct {
	RequestID string `json:"request_id"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp"`
}

// HTTPReporter posts status updates to the gateway, retrying once on failure.
type HTTPReporter struct {
	client   *resty.Client
	baseURL  string
	logger   *zap.Logger
	attempts int
	delay    time.Duration
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewHTTPReporter(baseURL string, logger *zap.Logger) (*HTTPReporter, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("gateway url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := resty.New()
	client.SetTimeout(defaultReportTimeout)
	client.SetRetryCount(0)

	return &HTTPReporter{
		client:   client,
		baseURL:  trimmed,
		logger:   logger,
		attempts: defaultReportAttempts,
		delay:    defaultReportDelay,
		now:      time.Now,
		sleep:    sleepWithContext,
	}, nil
}

func (r *HTTPReporter) Report(ctx context.Context, requestID string, status domain.DeliveryStatus, reason string) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("status reporter is not initialized")
	}
	if strings.TrimSpace(requestID) == "" {
		return fmt.Errorf("%w: request id is required", domain.ErrValidation)
	}

	update := statusUpdate{
		RequestID: requestID,
		Status:    string(status),
		Error:     reason,
		Timestamp: r.now().UTC().Format(time.RFC3339),
	}

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = r.post(ctx, update)
		if lastErr == nil {
			return nil
		}

		r.logger.Warn("status report attempt failed",
			zap.String("request_id", requestID),
			zap.String("status", string(status)),
			zap.Int("attempt", attempt),
			zap.Error(lastErr),
		)

		if attempt < r.attempts {
			if err := r.sleep(ctx, r.delay); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("status report for %s gave up after %d attempts: %w", requestID, r.attempts, lastErr)
}

func (r *HTTPReporter) post(ctx context.Context, update statusUpdate) error {
	response, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(update).
		SetPathParam("requestId", update.RequestID).
		Post(r.baseURL + "/api/v1/notifications/{requestId}/status")
	if err != nil {
		return fmt.Errorf("status update request failed: %w", err)
	}

	if response.StatusCode() >= http.StatusMultipleChoices {
		return fmt.Errorf("gateway rejected status update with %d", response.StatusCode())
	}

	return nil
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
