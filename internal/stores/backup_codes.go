package stores

import (
	"context"

	"github.com/redis/go-redis/v9"
)

func (s *Redis) ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error {
	key := s.backupCodesKey(accountID)
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(hashes) > 0 {
			members := make([]interface{}, len(hashes))
			for i, h := range hashes {
				members[i] = h
			}
			pipe.SAdd(ctx, key, members...)
		}
		return nil
	})
	return unavailable(err)
}

// ConsumeBackupCode relies on SREM being atomic: of two concurrent removals
// of one member only one observes a count of 1.
func (s *Redis) ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error) {
	n, err := s.redis.SRem(ctx, s.backupCodesKey(accountID), hash).Result()
	if err != nil {
		return false, unavailable(err)
	}
	return n == 1, nil
}

func (s *Redis) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.backupCodesKey(accountID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}
