package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kursadbilgin/notify-pipeline/internal/domain"
	"github.com/kursadbilgin/notify-pipeline/internal/idempotency"
	"github.com/kursadbilgin/notify-pipeline/internal/observability"
	"github.com/kursadbilgin/notify-pipeline/internal/provider"
	"github.com/kursadbilgin/notify-pipeline/internal/queue"
	"github.com/kursadbilgin/notify-pipeline/internal/ratelimit"
	"github.com/kursadbilgin/notify-pipeline/internal/renderer"
	"github.com/kursadbilgin/notify-pipeline/internal/repository"
	"github.com/kursadbilgin/notify-pipeline/internal/resilience"
	"github.com/kursadbilgin/notify-pipeline/internal/resolver"
	"github.com/kursadbilgin/notify-pipeline/internal/status"
)

const (
	minWorkerConcurrency = 1
	claimReleaseTimeout  = 5 * time.Second
)

// Failure reasons recorded on dead-letter envelopes and metrics.
const (
	reasonNoTarget         = "no_target"
	reasonResolveFailed    = "resolve_failed"
	reasonTemplateNotFound = "template_not_found"
	reasonRenderFailed     = "render_failed"
	reasonProviderRejected = "provider_rejected"
	reasonRetryExhausted   = "retry_exhausted"
	reasonNoProvider       = "no_provider"
	reasonMalformed        = "malformed_message"
)

// DeadLetterRouter parks terminally failed messages. Routing must not fail
// the pipeline, so it returns nothing.
type DeadLetterRouter interface {
	Route(ctx context.Context, requestID string, channel domain.Channel, raw []byte, reason string, attemptCount int)
}

// DispatcherConfig carries the collaborators for a Dispatcher. All of them
// are required unless noted.
type DispatcherConfig struct {
	Ledger      idempotency.Ledger
	Resolver    resolver.Resolver
	Renderer    renderer.Renderer
	Providers   map[domain.Channel]provider.Provider
	Breakers    map[domain.Channel]*resilience.Breaker[*provider.Response]
	Limiter     ratelimit.Limiter
	DeadLetters DeadLetterRouter
	Reporter    status.Reporter
	Attempts    repository.AttemptRepository // optional audit trail
	Consumer    queue.Consumer
	Logger      *zap.Logger
	Metrics     *observability.Metrics

	Concurrency    int
	LookupPolicy   resilience.Policy
	DeliveryPolicy resilience.Policy
}

// Dispatcher consumes the channel work queues and drives each message through
// claim, resolve, render, and delivery. Terminal outcomes are acknowledged;
// only infrastructure failures before the claim propagate as errors so the
// broker redelivers.
type Dispatcher struct {
	ledger      idempotency.Ledger
	resolver    resolver.Resolver
	renderer    renderer.Renderer
	providers   map[domain.Channel]provider.Provider
	breakers    map[domain.Channel]*resilience.Breaker[*provider.Response]
	limiter     ratelimit.Limiter
	deadLetters DeadLetterRouter
	reporter    status.Reporter
	attempts    repository.AttemptRepository
	consumer    queue.Consumer
	logger      *zap.Logger
	metrics     *observability.Metrics

	concurrency   int
	lookupRetry   *resilience.Retrier
	deliveryRetry *resilience.Retrier
	now           func() time.Time
}

func NewDispatcher(cfg DispatcherConfig) (*Dispatcher, error) {
	switch {
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("idempotency ledger is required")
	case cfg.Resolver == nil:
		return nil, fmt.Errorf("target resolver is required")
	case cfg.Renderer == nil:
		return nil, fmt.Errorf("content renderer is required")
	case len(cfg.Providers) == 0:
		return nil, fmt.Errorf("at least one provider is required")
	case cfg.Limiter == nil:
		return nil, fmt.Errorf("rate limiter is required")
	case cfg.DeadLetters == nil:
		return nil, fmt.Errorf("dead-letter router is required")
	case cfg.Reporter == nil:
		return nil, fmt.Errorf("status reporter is required")
	case cfg.Consumer == nil:
		return nil, fmt.Errorf("queue consumer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	concurrency := cfg.Concurrency
	if concurrency < minWorkerConcurrency {
		concurrency = minWorkerConcurrency
	}

	return &Dispatcher{
		ledger:      cfg.Ledger,
		resolver:    cfg.Resolver,
		renderer:    cfg.Renderer,
		providers:   cfg.Providers,
		breakers:    cfg.Breakers,
		limiter:     cfg.Limiter,
		deadLetters: cfg.DeadLetters,
		reporter:    cfg.Reporter,
		attempts:    cfg.Attempts,
		consumer:    cfg.Consumer,
		logger:      logger,
		metrics:     cfg.Metrics,
		concurrency: concurrency,
		lookupRetry: resilience.NewRetrier(cfg.LookupPolicy, domain.IsTransient),
		deliveryRetry: resilience.NewRetrier(cfg.DeliveryPolicy, func(err error) bool {
			return domain.IsTransient(err) || resilience.IsCircuitOpen(err)
		}),
		now: time.Now,
	}, nil
}

// Start consumes the channel work queues until context cancellation.
func (d *Dispatcher) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	queueNames := queue.WorkQueueNames()
	if len(queueNames) == 0 {
		return fmt.Errorf("no work queues configured")
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < d.concurrency; i++ {
		queueName := queueNames[i%len(queueNames)]
		workerID := i + 1

		g.Go(func() error {
			d.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := d.consumer.Consume(groupCtx, queueName, d.ProcessMessage)
			if err != nil {
				d.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			d.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// ProcessMessage handles one structurally valid queue message. A nil return
// acknowledges the message; an error return requests broker redelivery.
func (d *Dispatcher) ProcessMessage(ctx context.Context, msg queue.NotificationMessage) error {
	channelName := strings.ToLower(msg.Type.String())
	if d.metrics != nil {
		d.metrics.IncMessageConsumed(channelName)
		d.metrics.IncWorkerInFlight(channelName)
		defer d.metrics.DecWorkerInFlight(channelName)
	}

	ctx = observability.WithRequestID(ctx, msg.RequestID)
	logger := observability.WithContextLogger(d.logger, ctx)

	claim, err := d.ledger.Claim(ctx, msg.RequestID)
	if err != nil {
		return fmt.Errorf("idempotency claim failed: %w", err)
	}
	if claim != idempotency.Claimed {
		logger.Info("duplicate message skipped",
			zap.String("channel", channelName),
			zap.String("claim", claim.String()),
		)
		if d.metrics != nil {
			d.metrics.IncDuplicateSkipped(channelName)
		}
		return nil
	}

	prov, ok := d.providers[msg.Type]
	if !ok {
		// Validation upstream keeps this from happening unless the worker is
		// deployed without a provider for a queue it consumes.
		d.failTerminally(ctx, logger, msg, reasonNoProvider, 0, fmt.Errorf("no provider registered for channel %s", channelName))
		return nil
	}

	// The throttle sits after the claim: a duplicate must never consume
	// provider budget. A throttle error here is infrastructure; the claim is
	// released so the nacked message can be claimed again on redelivery.
	if err := d.limiter.Wait(ctx, prov.Name()); err != nil {
		d.releaseClaim(logger, msg.RequestID)
		return fmt.Errorf("throttle wait failed: %w", err)
	}

	target, resolveAttempts, err := resilience.Do(ctx, d.lookupRetry, func(ctx context.Context) (domain.Target, error) {
		return d.resolver.Resolve(ctx, msg.UserID, msg.Type)
	})
	if err != nil {
		if ctx.Err() != nil {
			d.releaseClaim(logger, msg.RequestID)
			return fmt.Errorf("target resolution interrupted: %w", err)
		}
		reason := reasonResolveFailed
		if errors.Is(err, domain.ErrNotFound) {
			reason = reasonNoTarget
		}
		d.failTerminally(ctx, logger, msg, reason, resolveAttempts, err)
		return nil
	}

	content, renderAttempts, err := resilience.Do(ctx, d.lookupRetry, func(ctx context.Context) (domain.Content, error) {
		return d.renderer.Render(ctx, msg.TemplateCode, msg.Variables)
	})
	if err != nil {
		if ctx.Err() != nil {
			d.releaseClaim(logger, msg.RequestID)
			return fmt.Errorf("content render interrupted: %w", err)
		}
		reason := reasonRenderFailed
		if errors.Is(err, domain.ErrNotFound) {
			reason = reasonTemplateNotFound
		}
		d.failTerminally(ctx, logger, msg, reason, renderAttempts, err)
		return nil
	}

	delivery := provider.Delivery{
		RequestID: msg.RequestID,
		Target:    target,
		Content:   content,
		Metadata:  msg.Metadata,
	}

	attemptCount := 0
	response, _, err := resilience.Do(ctx, d.deliveryRetry, func(ctx context.Context) (*provider.Response, error) {
		resp, sendErr := d.send(ctx, prov, msg.Type, delivery)
		if resilience.IsCircuitOpen(sendErr) {
			// A rejected call never reached the provider; it is not an
			// attempt for the audit trail.
			return nil, sendErr
		}

		attemptCount++
		d.recordAttempt(ctx, logger, msg, attemptCount, resp, sendErr)
		return resp, sendErr
	})
	if err != nil {
		if ctx.Err() != nil {
			d.releaseClaim(logger, msg.RequestID)
			return fmt.Errorf("delivery interrupted: %w", err)
		}
		reason := reasonProviderRejected
		var exhausted *resilience.ExhaustedError
		if errors.As(err, &exhausted) {
			reason = reasonRetryExhausted
		}
		d.failTerminally(ctx, logger, msg, reason, attemptCount, err)
		return nil
	}

	if err := d.ledger.Finalize(ctx, msg.RequestID, idempotency.StatusCompleted); err != nil {
		logger.Warn("failed to finalize ledger entry, claim TTL will expire it",
			zap.Error(err),
		)
	}
	if err := d.reporter.Report(ctx, msg.RequestID, domain.DeliveryStatusDelivered, ""); err != nil {
		logger.Warn("status report failed", zap.Error(err))
	}
	if d.metrics != nil {
		d.metrics.IncDelivered(channelName)
	}

	messageID := ""
	if response != nil {
		messageID = response.MessageID
	}
	logger.Info("notification delivered",
		zap.String("channel", channelName),
		zap.String("provider", prov.Name()),
		zap.Int("attempts", attemptCount),
		zap.String("providerMessageId", messageID),
	)
	return nil
}

// HandleMalformed parks undecodable payloads on the DLQ. It satisfies
// queue.MalformedHandler; the consumer acks afterwards.
func (d *Dispatcher) HandleMalformed(ctx context.Context, body []byte, cause error) {
	var probe struct {
		RequestID string         `json:"request_id"`
		Type      domain.Channel `json:"notification_type"`
	}
	// Best effort: a partially decodable payload still yields a request id
	// and channel for the envelope.
	_ = json.Unmarshal(body, &probe)

	d.logger.Warn("malformed message dead-lettered",
		zap.String("requestId", probe.RequestID),
		zap.Error(cause),
	)
	if d.metrics != nil {
		d.metrics.IncFailed(strings.ToLower(probe.Type.String()), reasonMalformed)
		d.metrics.IncDeadLettered(strings.ToLower(probe.Type.String()))
	}

	d.deadLetters.Route(ctx, probe.RequestID, probe.Type, body, reasonMalformed, 0)

	if strings.TrimSpace(probe.RequestID) != "" {
		if err := d.reporter.Report(ctx, probe.RequestID, domain.DeliveryStatusFailed, reasonMalformed); err != nil {
			d.logger.Warn("status report failed for malformed message", zap.Error(err))
		}
	}
}

// BreakerStates reports each provider breaker's state for readiness payloads.
func (d *Dispatcher) BreakerStates() map[string]string {
	states := make(map[string]string, len(d.breakers))
	for _, b := range d.breakers {
		if b == nil {
			continue
		}
		states[b.Name()] = b.State()
	}
	return states
}

func (d *Dispatcher) send(ctx context.Context, prov provider.Provider, channel domain.Channel, delivery provider.Delivery) (*provider.Response, error) {
	sendStart := d.now()
	defer func() {
		if d.metrics != nil {
			d.metrics.ObserveSendDuration(strings.ToLower(channel.String()), d.now().Sub(sendStart))
		}
	}()

	breaker := d.breakers[channel]
	if breaker == nil {
		return prov.Send(ctx, delivery)
	}

	resp, err := breaker.Execute(func() (*provider.Response, error) {
		return prov.Send(ctx, delivery)
	})
	if d.metrics != nil {
		d.metrics.SetBreakerOpen(prov.Name(), breaker.State() == "open")
	}
	return resp, err
}

// releaseClaim undoes a processing claim when an infrastructure failure
// aborts the message after the claim but before any outcome was recorded.
// Without the release, the nacked message's redelivered copy would be dropped
// as a duplicate and the notification silently lost. The release runs on a
// detached context so a shutdown cancellation cannot prevent it.
func (d *Dispatcher) releaseClaim(logger *zap.Logger, requestID string) {
	releaseCtx, cancel := context.WithTimeout(context.Background(), claimReleaseTimeout)
	defer cancel()

	if err := d.ledger.Release(releaseCtx, requestID); err != nil {
		// Degraded path: the duplicate skip holds until the claim TTL expires.
		logger.Error("failed to release processing claim, request is stalled until the claim expires",
			zap.Error(err),
		)
	}
}

func (d *Dispatcher) failTerminally(ctx context.Context, logger *zap.Logger, msg queue.NotificationMessage, reason string, attemptCount int, cause error) {
	channelName := strings.ToLower(msg.Type.String())

	logger.Warn("notification failed terminally",
		zap.String("channel", channelName),
		zap.String("reason", reason),
		zap.Int("attempts", attemptCount),
		zap.Error(cause),
	)

	if err := d.ledger.Finalize(ctx, msg.RequestID, idempotency.StatusFailed); err != nil {
		logger.Warn("failed to finalize ledger entry, claim TTL will expire it",
			zap.Error(err),
		)
	}

	raw, err := json.Marshal(msg)
	if err != nil {
		// The message decoded from JSON, so this cannot realistically fail.
		raw = []byte(fmt.Sprintf(`{"request_id":%q}`, msg.RequestID))
	}
	d.deadLetters.Route(ctx, msg.RequestID, msg.Type, raw, reason, attemptCount)

	if err := d.reporter.Report(ctx, msg.RequestID, domain.DeliveryStatusFailed, reason); err != nil {
		logger.Warn("status report failed", zap.Error(err))
	}
	if d.metrics != nil {
		d.metrics.IncFailed(channelName, reason)
		d.metrics.IncDeadLettered(channelName)
	}
}

func (d *Dispatcher) recordAttempt(ctx context.Context, logger *zap.Logger, msg queue.NotificationMessage, attemptNumber int, resp *provider.Response, sendErr error) {
	if d.attempts == nil {
		return
	}

	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if resp != nil {
		if resp.StatusCode > 0 {
			value := resp.StatusCode
			statusCode = &value
		}
		if body := strings.TrimSpace(resp.Body); body != "" {
			value := resp.Body
			responseBody = &value
		}
	}
	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var remoteErr *domain.RemoteError
		if errors.As(sendErr, &remoteErr) && remoteErr.StatusCode > 0 && statusCode == nil {
			value := remoteErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		RequestID:     msg.RequestID,
		Channel:       msg.Type,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     d.now(),
	}

	// The audit trail is best effort; a write failure must not affect the
	// delivery outcome.
	if err := d.attempts.Create(ctx, attempt); err != nil {
		logger.Warn("failed to record delivery attempt", zap.Error(err))
	}
}
