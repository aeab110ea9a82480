package stores

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const recentAttemptsCap = 100

type attemptRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Action    string    `json:"action"`
	Success   bool      `json:"success"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// AppendAttempt writes the attempt to the append-only log and, for failures,
// to the per-(action, ip) sorted set that backs sliding-window counts.
// Scores are Unix microseconds so they stay exact as float64.
func (s *Redis) AppendAttempt(ctx context.Context, a domain.LoginAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	email := normalizeEmail(a.Email)
	data, err := json.Marshal(attemptRecord{
		ID:        a.ID,
		Email:     email,
		IP:        a.IP,
		UserAgent: a.UserAgent,
		Action:    string(a.Action),
		Success:   a.Success,
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, s.attemptLogKey(), data)
		if email != "" {
			emailKey := s.attemptEmailKey(email)
			pipe.RPush(ctx, emailKey, data)
			pipe.LTrim(ctx, emailKey, -recentAttemptsCap, -1)
		}
		if !a.Success {
			key := s.failureIndexKey(a.Action, a.IP)
			pipe.ZAdd(ctx, key, redis.Z{Score: float64(a.CreatedAt.UnixMicro()), Member: a.ID})
			cutoff := a.CreatedAt.Add(-s.attemptRetention).UnixMicro()
			pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
			pipe.Expire(ctx, key, s.attemptRetention)
		}
		return nil
	})
	return unavailable(err)
}

func (s *Redis) CountFailures(ctx context.Context, ip string, action domain.ActionClass, since time.Time) (int, error) {
	n, err := s.redis.ZCount(ctx, s.failureIndexKey(action, ip), strconv.FormatInt(since.UnixMicro(), 10), "+inf").Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *Redis) NthFailureAt(ctx context.Context, ip string, action domain.ActionClass, since time.Time, n int) (time.Time, error) {
	res, err := s.redis.ZRangeByScoreWithScores(ctx, s.failureIndexKey(action, ip), &redis.ZRangeBy{
		Min:    strconv.FormatInt(since.UnixMicro(), 10),
		Max:    "+inf",
		Offset: int64(n),
		Count:  1,
	}).Result()
	if err != nil {
		return time.Time{}, unavailable(err)
	}
	if len(res) == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	return time.UnixMicro(int64(res[0].Score)).UTC(), nil
}

// RecentAttempts returns up to limit of the newest attempts for email, oldest first.
func (s *Redis) RecentAttempts(ctx context.Context, email string, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 || limit > recentAttemptsCap {
		limit = recentAttemptsCap
	}
	raw, err := s.redis.LRange(ctx, s.attemptEmailKey(normalizeEmail(email)), int64(-limit), -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]domain.LoginAttempt, 0, len(raw))
	for _, item := range raw {
		var rec attemptRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, err
		}
		out = append(out, domain.LoginAttempt{
			ID:        rec.ID,
			Email:     rec.Email,
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			Action:    domain.ActionClass(rec.Action),
			Success:   rec.Success,
			Reason:    rec.Reason,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}
