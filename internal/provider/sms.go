package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

const (
	smsProviderName   = "sms-gateway"
	defaultSMSTimeout = 10 * time.Second
	maxSMSLength      = 160
)

type smsRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SMSProvider delivers short messages through an HTTP SMS gateway.
type SMSProvider struct {
	client   *resty.Client
	endpoint string
}

func NewSMSProvider(endpoint string) (*SMSProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultSMSTimeout)
	client.SetRetryCount(0)

	return NewSMSProviderWithClient(endpoint, client)
}

func NewSMSProviderWithClient(endpoint string, client *resty.Client) (*SMSProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("sms gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid sms gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultSMSTimeout)
	}
	client.SetRetryCount(0)

	return &SMSProvider{
		client:   client,
		endpoint: trimmedEndpoint,
	}, nil
}

func (p *SMSProvider) Name() string { return smsProviderName }

func (p *SMSProvider) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	msisdn := strings.TrimSpace(delivery.Target.Address)
	if msisdn == "" {
		return nil, &domain.RemoteError{
			Service:   smsProviderName,
			Message:   "missing recipient number",
			Transient: false,
		}
	}

	message := delivery.Content.Body
	if runes := []rune(message); len(runes) > maxSMSLength {
		message = string(runes[:maxSMSLength])
	}

	response, err := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(smsRequest{To: msisdn, Message: message}).
		Post(p.endpoint)
	if err != nil {
		return nil, &domain.RemoteError{
			Service:   smsProviderName,
			Message:   "sms gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return nil, &domain.RemoteError{
			Service:   smsProviderName,
			Message:   "sms gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	responseBody := strings.TrimSpace(response.String())

	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       responseBody,
			MessageID:  gatewayMessageID(response),
		}, nil
	}

	return nil, &domain.RemoteError{
		Service:    smsProviderName,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("sms gateway returned status %d: %s", statusCode, responseBody),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func gatewayMessageID(response *resty.Response) string {
	for _, key := range []string{"X-Message-ID", "X-Message-Id", "X-Request-ID", "X-Request-Id"} {
		if value := strings.TrimSpace(response.Header().Get(key)); value != "" {
			return value
		}
	}
	return ""
}
