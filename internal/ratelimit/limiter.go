// Package ratelimit bounds outbound provider throughput. Providers enforce
// their own rate limits; throttling before the send avoids burning retry
// budget on 429 responses.
package ratelimit

import "context"

// Limiter controls send throughput per provider.
type Limiter interface {
	// Allow reports whether one send is admitted in the current window.
	Allow(ctx context.Context, provider string) (bool, error)
	// Wait blocks until a send is admitted or the context is done.
	Wait(ctx context.Context, provider string) error
}
