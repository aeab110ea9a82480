package stores

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/redis/go-redis/v9"
)

const maxTxRetries = 16

// ErrRedisUnavailable wraps transport and protocol failures.
var ErrRedisUnavailable = errors.New("redis unavailable")

// errContention is returned when optimistic retries are exhausted.
var errContention = errors.New("optimistic transaction retries exhausted")

// Redis implements domain.Store on a single Redis keyspace.
type Redis struct {
	redis            redis.UniversalClient
	prefix           string
	attemptRetention time.Duration
}

var _ domain.Store = (*Redis)(nil)

// NewRedis returns a store rooted at prefix. attemptRetention bounds how long
// failure timestamps stay in the rate-limit index and must be at least the
// longest rate-limit window.
func NewRedis(client redis.UniversalClient, prefix string, attemptRetention time.Duration) *Redis {
	if prefix == "" {
		prefix = "ba"
	}
	if attemptRetention <= 0 {
		attemptRetention = 24 * time.Hour
	}
	return &Redis{
		redis:            client,
		prefix:           prefix,
		attemptRetention: attemptRetention,
	}
}

func (s *Redis) accountKey(id string) string {
	return s.prefix + ":acct:" + id
}

func (s *Redis) emailIndexKey(email string) string {
	return s.prefix + ":acct:email:" + email
}

func (s *Redis) backupCodesKey(accountID string) string {
	return s.prefix + ":bc:" + accountID
}

func (s *Redis) tokenKey(kind domain.TokenKind, hash string) string {
	return s.prefix + ":tok:" + string(kind) + ":" + hash
}

func (s *Redis) tokenEmailKey(kind domain.TokenKind, email string) string {
	return s.prefix + ":tok:" + string(kind) + ":email:" + email
}

func (s *Redis) attemptLogKey() string {
	return s.prefix + ":att:log"
}

func (s *Redis) attemptEmailKey(email string) string {
	return s.prefix + ":att:email:" + email
}

func (s *Redis) failureIndexKey(action domain.ActionClass, ip string) string {
	return s.prefix + ":att:fail:" + string(action) + ":" + ip
}

func (s *Redis) consentKey(accountID string) string {
	return s.prefix + ":consent:" + accountID
}

func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrConflict) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

func toNanos(t *time.Time) int64 {
	if t == nil {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) *time.Time {
	if n == 0 {
		return nil
	}
	t := time.Unix(0, n).UTC()
	return &t
}
