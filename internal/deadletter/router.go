// Package deadletter routes terminally failed messages to their channel DLQ
// and archives a copy for operator inspection.
package deadletter

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
	"github.com/kursadbilgin/notify-pipeline/internal/queue"
)

const (
	publishAttempts = 3
	publishDelay    = time.Second
)

// DeadLetterPublisher is the slice of the queue publisher the router needs.
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, queueName string, env queue.DeadLetterEnvelope) error
}

// Archive persists dead-letter records out of band of the queue.
type Archive interface {
	Create(ctx context.Context, record *domain.DeadLetterRecord) error
}

// Router delivers failed messages to the dead-letter queue. Routing never
// returns an error: once a message is terminally failed the pipeline must
// still acknowledge it, so the router absorbs its own failures and logs them
// loudly instead of propagating.
type Router struct {
	publisher DeadLetterPublisher
	archive   Archive
	logger    *zap.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewRouter(publisher DeadLetterPublisher, archive Archive, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Router{
		publisher: publisher,
		archive:   archive,
		logger:    logger,
		now:       time.Now,
		sleep:     sleepWithContext,
	}
}

// Route publishes the raw payload to the channel's DLQ wrapped in an
// envelope, then archives a copy. The requestID may be empty when the payload
// never decoded.
func (r *Router) Route(ctx context.Context, requestID string, channel domain.Channel, raw []byte, reason string, attemptCount int) {
	if r == nil || r.publisher == nil {
		return
	}
	if !channel.IsValid() {
		// Undecodable payloads have no channel; park them on the email DLQ
		// rather than dropping them.
		channel = domain.ChannelEmail
	}

	failedAt := r.now().UTC()
	env := queue.DeadLetterEnvelope{
		OriginalMessage: json.RawMessage(raw),
		Error:           reason,
		AttemptCount:    attemptCount,
		FailedAt:        failedAt,
	}

	queueName := queue.DLQName(channel)
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("queue", queueName),
		zap.String("reason", reason),
		zap.Int("attempt_count", attemptCount),
	}

	var lastErr error
	published := false
	for attempt := 1; attempt <= publishAttempts; attempt++ {
		if lastErr = r.publisher.PublishDeadLetter(ctx, queueName, env); lastErr == nil {
			published = true
			break
		}

		r.logger.Warn("dead-letter publish attempt failed",
			append([]zap.Field{zap.Int("attempt", attempt), zap.Error(lastErr)}, fields...)...)

		if attempt < publishAttempts {
			if err := r.sleep(ctx, publishDelay); err != nil {
				break
			}
		}
	}

	if !published {
		// The message is about to be acked and this was the last copy in
		// flight. The archive row below is the only remaining trace.
		r.logger.Error("dead-letter publish exhausted, message not parked on DLQ",
			append([]zap.Field{zap.Error(lastErr)}, fields...)...)
	} else {
		r.logger.Info("message dead-lettered", fields...)
	}

	r.archiveRecord(ctx, requestID, channel, raw, reason, attemptCount, failedAt)
}

func (r *Router) archiveRecord(ctx context.Context, requestID string, channel domain.Channel, raw []byte, reason string, attemptCount int, failedAt time.Time) {
	if r.archive == nil {
		return
	}

	record := &domain.DeadLetterRecord{
		ID:           uuid.NewString(),
		RequestID:    strings.TrimSpace(requestID),
		Channel:      channel,
		Payload:      raw,
		Reason:       reason,
		AttemptCount: attemptCount,
		FailedAt:     failedAt,
	}

	if err := r.archive.Create(ctx, record); err != nil {
		r.logger.Warn("dead-letter archive write failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
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
