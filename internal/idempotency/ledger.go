// Package idempotency defines the processed-request ledger that guarantees
// at-most-once processing per request id across concurrent workers and
// process replicas.
package idempotency

import "context"

// Status is the recorded lifecycle state of a request id.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

func (s Status) String() string { return string(s) }

// ClaimResult is the outcome of attempting to claim a request id.
type ClaimResult int

const (
	// Claimed means this caller now owns the request; at most one caller per
	// request id ever observes this.
	Claimed ClaimResult = iota
	AlreadyProcessing
	AlreadyCompleted
	AlreadyFailed
)

func (r ClaimResult) String() string {
	switch r {
	case Claimed:
		return "claimed"
	case AlreadyProcessing:
		return "already_processing"
	case AlreadyCompleted:
		return "already_completed"
	case AlreadyFailed:
		return "already_failed"
	}
	return "unknown"
}

// Ledger is the durable record of processed request ids. The backing store
// must provide an atomic conditional-write primitive; in-process locking is
// not a substitute once multiple replicas consume the same queue.
type Ledger interface {
	// Claim atomically records the request as processing if it has not been
	// seen within the retention window.
	Claim(ctx context.Context, requestID string) (ClaimResult, error)
	// Finalize overwrites the record with a terminal status and resets its
	// expiry window.
	Finalize(ctx context.Context, requestID string, status Status) error
	// Release deletes a processing claim so a redelivered copy can claim the
	// request again. It must never remove a terminal record; callers use it
	// when an infrastructure failure aborts processing after a claim but
	// before any outcome was recorded.
	Release(ctx context.Context, requestID string) error
}
