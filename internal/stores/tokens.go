package stores

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/redis/go-redis/v9"
)

type tokenHash struct {
	Email     string `redis:"email"`
	ExpiresAt int64  `redis:"expires_at"`
	CreatedAt int64  `redis:"created_at"`
}

func (s *Redis) writeToken(ctx context.Context, pipe redis.Pipeliner, rec domain.TokenRecord) {
	email := normalizeEmail(rec.Email)
	key := s.tokenKey(rec.Kind, rec.Hash)
	indexKey := s.tokenEmailKey(rec.Kind, email)

	pipe.HSet(ctx, key,
		"email", email,
		"expires_at", rec.ExpiresAt.UnixNano(),
		"created_at", rec.CreatedAt.UnixNano(),
	)
	pipe.PExpireAt(ctx, key, rec.ExpiresAt)
	pipe.SAdd(ctx, indexKey, rec.Hash)
	pipe.PExpireAt(ctx, indexKey, rec.ExpiresAt)
}

func (s *Redis) SaveToken(ctx context.Context, rec domain.TokenRecord) error {
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		s.writeToken(ctx, pipe, rec)
		return nil
	})
	return unavailable(err)
}

// ReplaceTokensForEmail watches the per-email index so a concurrent issue for
// the same email forces a retry instead of leaving two live tokens.
func (s *Redis) ReplaceTokensForEmail(ctx context.Context, rec domain.TokenRecord) error {
	indexKey := s.tokenEmailKey(rec.Kind, normalizeEmail(rec.Email))

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			prior, err := tx.SMembers(ctx, indexKey).Result()
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, h := range prior {
					pipe.Del(ctx, s.tokenKey(rec.Kind, h))
				}
				pipe.Del(ctx, indexKey)
				s.writeToken(ctx, pipe, rec)
				return nil
			})
			return err
		}, indexKey)

		if err == redis.TxFailedErr {
			continue
		}
		return unavailable(err)
	}
	return unavailable(errContention)
}

func (s *Redis) FindToken(ctx context.Context, kind domain.TokenKind, hash string) (*domain.TokenRecord, error) {
	var h tokenHash
	if err := s.redis.HGetAll(ctx, s.tokenKey(kind, hash)).Scan(&h); err != nil {
		return nil, unavailable(err)
	}
	if h.Email == "" {
		return nil, domain.ErrNotFound
	}
	return &domain.TokenRecord{
		Kind:      kind,
		Hash:      hash,
		Email:     h.Email,
		ExpiresAt: time.Unix(0, h.ExpiresAt).UTC(),
		CreatedAt: time.Unix(0, h.CreatedAt).UTC(),
	}, nil
}

func (s *Redis) DeleteToken(ctx context.Context, kind domain.TokenKind, hash string) (bool, error) {
	key := s.tokenKey(kind, hash)

	email, err := s.redis.HGet(ctx, key, "email").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, unavailable(err)
	}

	var del *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, key)
		pipe.SRem(ctx, s.tokenEmailKey(kind, email), hash)
		return nil
	})
	if err != nil {
		return false, unavailable(err)
	}
	return del.Val() == 1, nil
}

func (s *Redis) DeleteTokensForEmail(ctx context.Context, kind domain.TokenKind, email string) (int, error) {
	indexKey := s.tokenEmailKey(kind, normalizeEmail(email))

	hashes, err := s.redis.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	if len(hashes) == 0 {
		return 0, nil
	}

	keys := make([]string, 0, len(hashes))
	for _, h := range hashes {
		keys = append(keys, s.tokenKey(kind, h))
	}

	var del *redis.IntCmd
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, keys...)
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, unavailable(err)
	}
	return int(del.Val()), nil
}
