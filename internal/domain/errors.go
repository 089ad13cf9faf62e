package domain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

var (
	// ErrValidation marks structurally invalid input.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound marks a missing entity (user target, template, record).
	ErrNotFound = errors.New("not found")
)

// RemoteError classifies a failed call to an external collaborator (target
// resolver, content renderer, delivery provider, status callback) as transient
// or permanent. The Transient flag is the single retryable/terminal contract
// every upstream component relies on.
type RemoteError struct {
	Service    string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *RemoteError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	if svc := strings.TrimSpace(e.Service); svc != "" {
		parts = append(parts, svc)
	} else {
		parts = append(parts, "remote call")
	}

	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *RemoteError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether an error is worth retrying.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		return remoteErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
