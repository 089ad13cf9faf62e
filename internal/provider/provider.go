package provider

import (
	"context"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
)

// Delivery is one resolved, rendered send: target plus content.
type Delivery struct {
	RequestID string
	Target    domain.Target
	Content   domain.Content
	Metadata  map[string]any
}

// Response stores provider call metadata for audit and persistence.
type Response struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Provider is the outbound delivery port for one channel. Send classifies
// every failure as transient or permanent via *domain.RemoteError; that
// classification is the contract the retry controller and circuit breaker
// depend on.
type Provider interface {
	Send(ctx context.Context, delivery Delivery) (*Response, error)
	// Name identifies the provider in throttle keys, breaker names, and logs.
	Name() string
}
