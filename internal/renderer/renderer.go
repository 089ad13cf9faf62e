// Package renderer produces the final message content from a template code
// and variables via the template service.
package renderer

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
	serviceName          = "template-service"
	defaultRenderTimeout = 5 * time.Second
)

// Renderer renders a template into deliverable content.
type Renderer interface {
	Render(ctx context.Context, templateCode string, variables map[string]any) (domain.Content, error)
}

type renderRequest struct {
	TemplateCode string         `json:"template_code"`
	Variables    map[string]any `json:"variables,omitempty"`
}

type renderResponse struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// HTTPRenderer calls the template service over HTTP. An unknown template and
// a render rejection are terminal; connectivity failures and 5xx transient.
type HTTPRenderer struct {
	client  *resty.Client
	baseURL string
}

func NewHTTPRenderer(baseURL string) (*HTTPRenderer, error) {
	client := resty.New()
	client.SetTimeout(defaultRenderTimeout)
	client.SetRetryCount(0)

	return NewHTTPRendererWithClient(baseURL, client)
}

func NewHTTPRendererWithClient(baseURL string, client *resty.Client) (*HTTPRenderer, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, fmt.Errorf("template service url is required")
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}
	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultRenderTimeout)
	}
	client.SetRetryCount(0)

	return &HTTPRenderer{
		client:  client,
		baseURL: trimmed,
	}, nil
}

func (r *HTTPRenderer) Render(ctx context.Context, templateCode string, variables map[string]any) (domain.Content, error) {
	if r == nil || r.client == nil {
		return domain.Content{}, fmt.Errorf("renderer is not initialized")
	}
	if strings.TrimSpace(templateCode) == "" {
		return domain.Content{}, fmt.Errorf("%w: template code is required", domain.ErrValidation)
	}

	var body renderResponse
	response, err := r.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(renderRequest{TemplateCode: templateCode, Variables: variables}).
		SetResult(&body).
		Post(r.baseURL + "/api/v1/templates/render")
	if err != nil {
		return domain.Content{}, &domain.RemoteError{
			Service:   serviceName,
			Message:   "render request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}

	statusCode := response.StatusCode()
	switch {
	case statusCode == http.StatusNotFound:
		return domain.Content{}, &domain.RemoteError{
			Service:    serviceName,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("template %q not found", templateCode),
			Transient:  false,
			Cause:      domain.ErrNotFound,
		}
	case statusCode == http.StatusUnprocessableEntity:
		return domain.Content{}, &domain.RemoteError{
			Service:    serviceName,
			StatusCode: statusCode,
			Message:    fmt.Sprintf("template %q failed to render: %s", templateCode, strings.TrimSpace(response.String())),
			Transient:  false,
		}
	case statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices:
		if strings.TrimSpace(body.Body) == "" {
			return domain.Content{}, &domain.RemoteError{
				Service:    serviceName,
				StatusCode: statusCode,
				Message:    fmt.Sprintf("template %q rendered empty body", templateCode),
				Transient:  false,
			}
		}
		return domain.Content{Subject: body.Subject, Body: body.Body}, nil
	default:
		return domain.Content{}, &domain.RemoteError{
			Service:    serviceName,
			StatusCode: statusCode,
			Message:    "unexpected render response",
			Transient:  isTransientHTTPStatus(statusCode),
		}
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}
