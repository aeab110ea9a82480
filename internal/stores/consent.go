package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

type consentRecord struct {
	ID        string    `json:"id"`
	AccountID string    `json:"account_id"`
	Type      string    `json:"type"`
	Granted   bool      `json:"granted"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *Redis) AppendConsent(ctx context.Context, entry domain.ConsentLog) error {
	data, err := json.Marshal(consentRecord{
		ID:        entry.ID,
		AccountID: entry.AccountID,
		Type:      string(entry.Type),
		Granted:   entry.Granted,
		IP:        entry.IP,
		UserAgent: entry.UserAgent,
		CreatedAt: entry.CreatedAt.UTC(),
	})
	if err != nil {
		return err
	}
	return unavailable(s.redis.RPush(ctx, s.consentKey(entry.AccountID), data).Err())
}

func (s *Redis) ConsentHistory(ctx context.Context, accountID string) ([]domain.ConsentLog, error) {
	raw, err := s.redis.LRange(ctx, s.consentKey(accountID), 0, -1).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	out := make([]domain.ConsentLog, 0, len(raw))
	for _, item := range raw {
		var rec consentRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, err
		}
		out = append(out, domain.ConsentLog{
			ID:        rec.ID,
			AccountID: rec.AccountID,
			Type:      domain.ConsentType(rec.Type),
			Granted:   rec.Granted,
			IP:        rec.IP,
			UserAgent: rec.UserAgent,
			CreatedAt: rec.CreatedAt,
		})
	}
	return out, nil
}
