package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-pipeline/internal/idempotency"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultLedgerTTL = 24 * time.Hour
	ledgerKeyPrefix  = "idempotency:"
	// claimAttempts bounds the SETNX/GET race loop; a key expiring between the
	// failed SETNX and the GET is retried once.
	claimAttempts = 2
)

var _ idempotency.Ledger = (*RedisLedger)(nil)

// Deletes the claim only while it is still processing; a terminal record
// written by a concurrent finalize stays untouched.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLedger implements the idempotency ledger on Redis. The claim is a
// single SET NX with TTL, so across any number of workers and replicas at
// most one caller per request id observes Claimed.
type RedisLedger struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewRedisLedger(client *goredis.Client, ttl time.Duration) (*RedisLedger, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if ttl <= 0 {
		ttl = defaultLedgerTTL
	}

	return &RedisLedger{
		client: client,
		ttl:    ttl,
	}, nil
}

func (l *RedisLedger) Claim(ctx context.Context, requestID string) (idempotency.ClaimResult, error) {
	if l == nil || l.client == nil {
		return 0, fmt.Errorf("ledger is not initialized")
	}

	key, err := ledgerKey(requestID)
	if err != nil {
		return 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	for attempt := 0; attempt < claimAttempts; attempt++ {
		claimed, err := l.client.SetNX(ctx, key, string(idempotency.StatusProcessing), l.ttl).Result()
		if err != nil {
			return 0, fmt.Errorf("failed to claim request %q: %w", requestID, err)
		}
		if claimed {
			return idempotency.Claimed, nil
		}

		status, err := l.client.Get(ctx, key).Result()
		if errors.Is(err, goredis.Nil) {
			// Expired between the failed SETNX and the read; try again.
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to read ledger record %q: %w", requestID, err)
		}

		switch idempotency.Status(status) {
		case idempotency.StatusCompleted:
			return idempotency.AlreadyCompleted, nil
		case idempotency.StatusFailed:
			return idempotency.AlreadyFailed, nil
		default:
			return idempotency.AlreadyProcessing, nil
		}
	}

	return 0, fmt.Errorf("ledger claim for %q raced with expiry %d times", requestID, claimAttempts)
}

func (l *RedisLedger) Finalize(ctx context.Context, requestID string, status idempotency.Status) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("ledger is not initialized")
	}
	if status != idempotency.StatusCompleted && status != idempotency.StatusFailed {
		return fmt.Errorf("finalize requires a terminal status, got %q", status)
	}

	key, err := ledgerKey(requestID)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Overwrite unconditionally and reset the retention window.
	if err := l.client.Set(ctx, key, string(status), l.ttl).Err(); err != nil {
		return fmt.Errorf("failed to finalize request %q: %w", requestID, err)
	}
	return nil
}

func (l *RedisLedger) Release(ctx context.Context, requestID string) error {
	if l == nil || l.client == nil {
		return fmt.Errorf("ledger is not initialized")
	}

	key, err := ledgerKey(requestID)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := releaseScript.Run(ctx, l.client, []string{key}, string(idempotency.StatusProcessing)).Err(); err != nil {
		return fmt.Errorf("failed to release claim for %q: %w", requestID, err)
	}
	return nil
}

func ledgerKey(requestID string) (string, error) {
	trimmed := strings.TrimSpace(requestID)
	if trimmed == "" {
		return "", fmt.Errorf("request id is required")
	}
	return ledgerKeyPrefix + trimmed, nil
}
