package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

const (
	fcmProviderName   = "fcm"
	defaultFCMTimeout = 10 * time.Second
)

type fcmRequest struct {
	To           string          `json:"to"`
	Notification fcmNotification `json:"notification"`
	Data         map[string]any  `json:"data,omitempty"`
}

type fcmNotification struct {
	Title string `json:"title,omitempty"`
	Body  string `json:"body"`
}

type fcmResponse struct {
	MulticastID int64 `json:"multicast_id"`
	Success     int   `json:"success"`
	Failure     int   `json:"failure"`
	Results     []struct {
		MessageID string `json:"message_id"`
		Error     string `json:"error"`
	} `json:"results"`
}

// FCMProvider delivers push notifications through Firebase Cloud Messaging's
// HTTP API.
type FCMProvider struct {
	client    *resty.Client
	endpoint  string
	serverKey string
}

func NewFCMProvider(endpoint, serverKey string) (*FCMProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultFCMTimeout)
	client.SetRetryCount(0)

	return NewFCMProviderWithClient(endpoint, serverKey, client)
}

func NewFCMProviderWithClient(endpoint, serverKey string, client *resty.Client) (*FCMProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("fcm endpoint is required")
	}
	if strings.TrimSpace(serverKey) == "" {
		return nil, fmt.Errorf("fcm server key is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultFCMTimeout)
	}
	client.SetRetryCount(0)

	return &FCMProvider{
		client:    client,
		endpoint:  trimmedEndpoint,
		serverKey: strings.TrimSpace(serverKey),
	}, nil
}

func (p *FCMProvider) Name() string { return fcmProviderName }

func (p *FCMProvider) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}
	if strings.TrimSpace(delivery.Target.Address) == "" {
		return nil, terminalFCMError(0, "missing device token", nil)
	}

	reqBody := fcmRequest{
		To: delivery.Target.Address,
		Notification: fcmNotification{
			Title: delivery.Content.Subject,
			Body:  delivery.Content.Body,
		},
		Data: delivery.Metadata,
	}

	var body fcmResponse
	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "key="+p.serverKey).
		SetBody(reqBody).
		SetResult(&body).
		Post(p.endpoint)
	if err != nil {
		return nil, &domain.RemoteError{
			Service:   fcmProviderName,
			Message:   "fcm request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode < http.StatusOK || statusCode >= http.StatusMultipleChoices {
		return nil, &domain.RemoteError{
			Service:    fcmProviderName,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("fcm returned status %d", statusCode),
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}

	if body.Failure > 0 {
		reason := "unknown fcm error"
		if len(body.Results) > 0 && body.Results[0].Error != "" {
			reason = body.Results[0].Error
		}

		if isUnrecoverableFCMError(reason) {
			return nil, terminalFCMError(statusCode, reason, nil)
		}
		return nil, &domain.RemoteError{
			Service:    fcmProviderName,
			StatusCode: statusCode,
			Message:    reason,
			Transient:  true,
		}
	}

	messageID := ""
	if len(body.Results) > 0 {
		messageID = body.Results[0].MessageID
	}
	if messageID == "" && body.MulticastID != 0 {
		messageID = fmt.Sprintf("%d", body.MulticastID)
	}

	return &Response{
		StatusCode: statusCode,
		Body:       strings.TrimSpace(response.String()),
		MessageID:  messageID,
	}, nil
}

// isUnrecoverableFCMError reports whether the FCM result error means the
// target can never be delivered to. Retrying these burns the retry budget
// against a permanently dead token.
func isUnrecoverableFCMError(reason string) bool {
	switch reason {
	case "NotRegistered", "InvalidRegistration", "MissingRegistration", "MismatchSenderId", "InvalidPackageName":
		return true
	}
	return false
}

func terminalFCMError(statusCode int, message string, cause error) *domain.RemoteError {
	return &domain.RemoteError{
		Service:    fcmProviderName,
		StatusCode: statusCode,
		Message:    message,
		Transient:  false,
		Cause:      cause,
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
