package resilience

import (
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

const (
	defaultFailureThreshold uint32 = 5
	defaultOpenDuration            = 30 * time.Second
)

// CircuitOpenError signals that a call was rejected by an open (or probing)
// breaker without reaching the provider. It is retryable upstream but never
// counted as a provider failure by the breaker itself.
type CircuitOpenError struct {
	Name string
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open", e.Name)
}

// IsCircuitOpen reports whether err is a breaker rejection.
func IsCircuitOpen(err error) bool {
	var openErr *CircuitOpenError
	return errors.As(err, &openErr)
}

// BreakerConfig configures a single provider breaker.
type BreakerConfig struct {
	// Name identifies the protected provider in logs and health output.
	Name string
	// FailureThreshold is the number of consecutive failures that opens the
	// breaker.
	FailureThreshold uint32
	// OpenDuration is how long the breaker stays open before admitting a
	// single half-open probe.
	OpenDuration time.Duration
}

// Breaker gates calls to one external provider. It wraps sony/gobreaker with
// the pipeline's failure model: trip on consecutive failures, allow exactly
// one trial call in half-open, map rejections to CircuitOpenError.
type Breaker[T any] struct {
	name string
	cb   *gobreaker.CircuitBreaker[T]
}

func NewBreaker[T any](cfg BreakerConfig, logger *zap.Logger) *Breaker[T] {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = defaultOpenDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		// A single probe in half-open; concurrent callers during the probe are
		// rejected as if open.
		MaxRequests: 1,
		Timeout:     cfg.OpenDuration,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Breaker[T]{
		name: cfg.Name,
		cb:   gobreaker.NewCircuitBreaker[T](settings),
	}
}

// Execute runs fn through the breaker. Rejections are returned as
// *CircuitOpenError; fn errors pass through unchanged and count against the
// consecutive-failure threshold.
func (b *Breaker[T]) Execute(fn func() (T, error)) (T, error) {
	value, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		var zero T
		return zero, &CircuitOpenError{Name: b.name}
	}
	return value, err
}

func (b *Breaker[T]) Name() string { return b.name }

// State returns the current breaker state as "closed", "half-open" or "open".
func (b *Breaker[T]) State() string {
	return b.cb.State().String()
}
