package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notify-pipeline/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerSec  int64 = 100
	throttleWaitStep          = 10 * time.Millisecond
	throttleWaitCeiling       = 50 * time.Millisecond
	throttleWindowSecs        = 1
)

// Fixed one-second window: first INCR in a window sets the expiry, counts
// above the limit are rejected until the window rolls over.
var admitScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.Limiter = (*RedisThrottle)(nil)

// RedisThrottle is a distributed per-provider send throttle. The window
// counter lives in Redis so all process replicas share one budget.
type RedisThrottle struct {
	client      *goredis.Client
	sendsPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewRedisThrottle(client *goredis.Client, sendsPerSec int) (*RedisThrottle, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	limit := int64(sendsPerSec)
	if limit <= 0 {
		limit = defaultSendsPerSec
	}

	return &RedisThrottle{
		client:      client,
		sendsPerSec: limit,
		now:         time.Now,
		sleep:       sleepWithContext,
	}, nil
}

func (t *RedisThrottle) Allow(ctx context.Context, provider string) (bool, error) {
	if t == nil || t.client == nil {
		return false, fmt.Errorf("throttle is not initialized")
	}

	key, err := t.windowKey(provider)
	if err != nil {
		return false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	admitted, err := admitScript.Run(ctx, t.client, []string{key}, t.sendsPerSec, throttleWindowSecs).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate throttle window: %w", err)
	}

	return admitted == 1, nil
}

func (t *RedisThrottle) Wait(ctx context.Context, provider string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	wait := throttleWaitStep
	for {
		admitted, err := t.Allow(ctx, provider)
		if err != nil {
			return err
		}
		if admitted {
			return nil
		}

		if err := t.sleep(ctx, wait); err != nil {
			return err
		}

		wait += throttleWaitStep
		if wait > throttleWaitCeiling {
			wait = throttleWaitCeiling
		}
	}
}

func (t *RedisThrottle) windowKey(provider string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(provider))
	if normalized == "" {
		return "", fmt.Errorf("provider name is required")
	}
	return fmt.Sprintf("throttle:%s:%d", normalized, t.now().UTC().Unix()), nil
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
