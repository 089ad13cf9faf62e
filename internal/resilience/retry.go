package resilience

import (
	"context"
	"fmt"
	"time"
)

const (
	defaultMaxAttempts = 3
	defaultBaseDelay   = time.Second
	defaultMaxDelay    = 60 * time.Second
)

// Policy bounds a retried operation: at most MaxAttempts calls, exponential
// backoff base*2^(n-1) between them, capped at MaxDelay.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

func (p Policy) normalized() Policy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = defaultMaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = defaultBaseDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = defaultMaxDelay
	}
	return p
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }

// Retrier retries a fallible operation under a Policy. The retryable predicate
// splits failures: retryable ones consume attempts with backoff in between,
// terminal ones abort immediately without sleeping.
type Retrier struct {
	policy    Policy
	retryable func(error) bool
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRetrier(policy Policy, retryable func(error) bool) *Retrier {
	if retryable == nil {
		retryable = func(error) bool { return false }
	}

	return &Retrier{
		policy:    policy.normalized(),
		retryable: retryable,
		sleep:     sleepWithContext,
	}
}

// Do runs op until it succeeds, fails terminally, or the attempt budget runs
// out. It returns the number of attempts actually made alongside the result.
func Do[T any](ctx context.Context, r *Retrier, op func(ctx context.Context) (T, error)) (T, int, error) {
	var zero T
	if r == nil {
		return zero, 0, fmt.Errorf("retrier is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var lastErr error
	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		value, err := op(ctx)
		if err == nil {
			return value, attempt, nil
		}
		if !r.retryable(err) {
			return zero, attempt, err
		}

		lastErr = err
		if attempt == r.policy.MaxAttempts {
			return zero, attempt, &ExhaustedError{Attempts: attempt, Last: lastErr}
		}

		if err := r.sleep(ctx, r.backoff(attempt)); err != nil {
			return zero, attempt, err
		}
	}

	// Unreachable; the loop always returns.
	return zero, r.policy.MaxAttempts, &ExhaustedError{Attempts: r.policy.MaxAttempts, Last: lastErr}
}

func (r *Retrier) backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	delay := r.policy.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= r.policy.MaxDelay {
			return r.policy.MaxDelay
		}
	}

	if delay > r.policy.MaxDelay {
		return r.policy.MaxDelay
	}
	return delay
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
