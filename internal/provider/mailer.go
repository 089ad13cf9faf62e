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
	mailProviderName   = "mailer"
	defaultMailTimeout = 10 * time.Second
)

type mailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// MailProvider delivers email through an HTTP mail relay API.
type MailProvider struct {
	client   *resty.Client
	endpoint string
	apiKey   string
}

func NewMailProvider(endpoint, apiKey string) (*MailProvider, error) {
	client := resty.New()
	client.SetTimeout(defaultMailTimeout)
	client.SetRetryCount(0)

	return NewMailProviderWithClient(endpoint, apiKey, client)
}

func NewMailProviderWithClient(endpoint, apiKey string, client *resty.Client) (*MailProvider, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("mail relay endpoint is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultMailTimeout)
	}
	client.SetRetryCount(0)

	return &MailProvider{
		client:   client,
		endpoint: trimmedEndpoint,
		apiKey:   strings.TrimSpace(apiKey),
	}, nil
}

func (p *MailProvider) Name() string { return mailProviderName }

func (p *MailProvider) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	if p == nil || p.client == nil {
		return nil, fmt.Errorf("provider is not initialized")
	}

	address := strings.TrimSpace(delivery.Target.Address)
	if address == "" || !strings.Contains(address, "@") {
		return nil, &domain.RemoteError{
			Service:   mailProviderName,
			Message:   fmt.Sprintf("invalid recipient address %q", address),
			Transient: false,
		}
	}

	subject := delivery.Content.Subject
	if subject == "" {
		subject = "Notification"
	}

	request := p.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(mailRequest{To: address, Subject: subject, HTML: delivery.Content.Body})
	if p.apiKey != "" {
		request.SetHeader("Authorization", "Bearer "+p.apiKey)
	}

	response, err := request.Post(p.endpoint)
	if err != nil {
		return nil, &domain.RemoteError{
			Service:   mailProviderName,
			Message:   "mail relay request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return &Response{
			StatusCode: statusCode,
			Body:       strings.TrimSpace(response.String()),
			MessageID:  strings.TrimSpace(response.Header().Get("X-Message-Id")),
		}, nil
	}

	return nil, &domain.RemoteError{
		Service:    mailProviderName,
		StatusCode: statusCode,
		Message:    fmt.Sprintf("mail relay returned status %d: %s", statusCode, strings.TrimSpace(response.String())),
		Transient:  isTransientHTTPStatus(statusCode),
	}
}
