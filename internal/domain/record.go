package domain

import "time"

// DeliveryAttempt records a single provider call for a request.
type DeliveryAttempt struct {
	ID            string    `json:"id"`
	RequestID     string    `json:"request_id"`
	Channel       Channel   `json:"channel"`
	AttemptNumber int       `json:"attempt_number"`
	StatusCode    *int      `json:"status_code,omitempty"`
	ResponseBody  *string   `json:"response_body,omitempty"`
	Error         *string   `json:"error,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeadLetterRecord is the archived copy of a terminally failed message.
// The DLQ holds the authoritative envelope; this row exists so operators can
// inspect and requeue failures without draining the queue.
type DeadLetterRecord struct {
	ID           string    `json:"id"`
	RequestID    string    `json:"request_id"`
	Channel      Channel   `json:"channel"`
	Payload      []byte    `json:"payload"`
	Reason       string    `json:"reason"`
	AttemptCount int       `json:"attempt_count"`
	FailedAt     time.Time `json:"failed_at"`
}
