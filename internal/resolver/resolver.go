// Package resolver fetches delivery targets (device tokens, email addresses,
// phone numbers) from the user service.
package resolver

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
	serviceName           = "user-service"
	defaultResolveTimeout = 5 * time.Second
)

// Resolver resolves a user's delivery target for a channel.
type Resolver interface {
	Resolve(ctx context.Context, userID string, channel domain.Channel) (domain.Target, error)
}

type targetResponse struct {
	Data struct {
		Target string `json:"target"`
	} `json:"data"`
}

// HTTPResolver calls the user service over HTTP. A missing user or target is
// terminal; connectivity failures and 5xx responses are transient.
type HTTPResolver struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPResolver(baseURL string) (*HTTPResolver, error) {
	client := resty.New()
	client.SetTimeout(defaultResolveTimeout)
	client.SetRetryCount(0)

	return NewHTTPResolverWithClient(baseURL, client)
}

func NewHTTPResolverWithClient(baseURL string, client *resty.Client) (*HTTPResolver, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("user service url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultResolveTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPResolver{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (r *HTTPResolver) Resolve(ctx context.Context, userID string, channel domain.Channel) (domain.Target, error) {
	if r == nil || r.client == nil {
		return domain.Target{}, fmt.Errorf("resolver is not initialized")
	}
	if strings.TrimSpace(userID) == "" {
		return domain.Target{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if !channel.IsValid() {
		return domain.Target{}, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	var body targetResponse
	response, err := r.client.R().
		SetContext(ctx).
		SetResult(&body).
		SetPathParam("userId", userID).
		SetPathParam("channel", strings.ToLower(channel.String())).
		Get(r.baseURL + "/api/v1/users/{userId}/targets/{channel}")
	if err != nil {
		return domain.Target{}, &domain.RemoteError{
			Service:   serviceName,
			Message:   "target lookup failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	switch {
	case statusCode == http.StatusNotFound:
		return domain.Target{}, &domain.RemoteError{
			Service:    serviceName,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("no %s target for user %s", strings.ToLower(channel.String()), userID),
			Transient:  false,
			Cause:      domain.ErrNotFound,
		}
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		address := strings.TrimSpace(body.Data.Target)
		if address == "" {
			return domain.Target{}, &domain.RemoteError{
				Service:    serviceName,
				StatusCode: statusCode,
				Message:    fmt.Sprintf("empty %s target for user %s", strings.ToLower(channel.String()), userID),
				Transient:  false,
				Cause:      domain.ErrNotFound,
			}
		}
		return domain.Target{Channel: channel, Address: address}, nil
	default:
		return domain.Target{}, &domain.RemoteError{
			Service:    serviceName,
			StatusCode: statusCode,
			Message:    "unexpected target lookup response",
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
