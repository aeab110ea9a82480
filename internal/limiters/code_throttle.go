package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultCodeMaxFailures = 5
	defaultCodeWindow      = 5 * time.Minute
)

// ErrCodeThrottleUnavailable wraps Redis failures of the CodeThrottle.
var ErrCodeThrottleUnavailable = errors.New("code throttle unavailable")

// CodeThrottleConfig bounds wrong two-factor codes per account on the
// management operations (confirm, disable, regenerate). Login is covered by
// the lock policy instead.
type CodeThrottleConfig struct {
	MaxFailures int           `yaml:"max_failures"`
	Window      time.Duration `yaml:"window"`
}

// CodeThrottle is a fixed-window failure counter per account, kept in Redis
// with INCR and a TTL set on the first failure.
type CodeThrottle struct {
	redis       redis.UniversalClient
	prefix      string
	maxFailures int64
	window      time.Duration
	now         func() time.Time
}

// NewCodeThrottle returns a throttle under prefix. Zero-value fields in cfg
// fall back to 5 failures per 5 minutes.
func NewCodeThrottle(client redis.UniversalClient, prefix string, cfg CodeThrottleConfig, now func() time.Time) *CodeThrottle {
	max := cfg.MaxFailures
	if max <= 0 {
		max = defaultCodeMaxFailures
	}
	window := cfg.Window
	if window <= 0 {
		window = defaultCodeWindow
	}
	if now == nil {
		now = time.Now
	}
	return &CodeThrottle{redis: client, prefix: prefix, maxFailures: int64(max), window: window, now: now}
}

func (t *CodeThrottle) key(accountID string) string {
	return t.prefix + ":2fa-fail:" + accountID
}

// Check reports whether accountID may submit another code, and if not, when
// the window closes.
func (t *CodeThrottle) Check(ctx context.Context, accountID string) (bool, time.Time, error) {
	if t == nil {
		return true, time.Time{}, nil
	}
	count, err := t.redis.Get(ctx, t.key(accountID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return true, time.Time{}, nil
		}
		return false, time.Time{}, fmt.Errorf("%w: %v", ErrCodeThrottleUnavailable, err)
	}
	if count < t.maxFailures {
		return true, time.Time{}, nil
	}

	retryAt := t.now().Add(t.window)
	if ttl, err := t.redis.PTTL(ctx, t.key(accountID)).Result(); err == nil && ttl > 0 {
		retryAt = t.now().Add(ttl)
	}
	return false, retryAt, nil
}

// RecordFailure counts one wrong code for accountID. The first failure in a
// window starts its TTL.
func (t *CodeThrottle) RecordFailure(ctx context.Context, accountID string) error {
	if t == nil {
		return nil
	}
	count, err := t.redis.Incr(ctx, t.key(accountID)).Result()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCodeThrottleUnavailable, err)
	}
	if count == 1 {
		if err := t.redis.Expire(ctx, t.key(accountID), t.window).Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCodeThrottleUnavailable, err)
		}
	}
	return nil
}

// Reset clears the failure count after a correct code.
func (t *CodeThrottle) Reset(ctx context.Context, accountID string) error {
	if t == nil {
		return nil
	}
	if err := t.redis.Del(ctx, t.key(accountID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrCodeThrottleUnavailable, err)
	}
	return nil
}
