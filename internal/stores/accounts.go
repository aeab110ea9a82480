package stores

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/redis/go-redis/v9"
)

type accountHash struct {
	ID                  string `redis:"id"`
	Email               string `redis:"email"`
	Name                string `redis:"name"`
	PasswordHash        string `redis:"password_hash"`
	Role                string `redis:"role"`
	EmailVerifiedAt     int64  `redis:"email_verified_at"`
	TwoFactorEnabled    bool   `redis:"two_factor_enabled"`
	TwoFactorSecret     string `redis:"two_factor_secret"`
	FailedLoginAttempts int    `redis:"failed_login_attempts"`
	LockedUntil         int64  `redis:"locked_until"`
	LastLoginAt         int64  `redis:"last_login_at"`
	GDPRConsent         bool   `redis:"gdpr_consent"`
	GDPRConsentAt       int64  `redis:"gdpr_consent_at"`
	MarketingConsent    bool   `redis:"marketing_consent"`
	DeletionRequested   bool   `redis:"deletion_requested"`
	DeletionRequestedAt int64  `redis:"deletion_requested_at"`
	FederatedProvider   string `redis:"federated_provider"`
	FederatedSubject    string `redis:"federated_subject"`
	CreatedAt           int64  `redis:"created_at"`
	UpdatedAt           int64  `redis:"updated_at"`
}

func accountToHash(a *domain.Account) accountHash {
	return accountHash{
		ID:                  a.ID,
		Email:               a.Email,
		Name:                a.Name,
		PasswordHash:        a.PasswordHash,
		Role:                string(a.Role),
		EmailVerifiedAt:     toNanos(a.EmailVerifiedAt),
		TwoFactorEnabled:    a.TwoFactorEnabled,
		TwoFactorSecret:     a.TwoFactorSecret,
		FailedLoginAttempts: a.FailedLoginAttempts,
		LockedUntil:         toNanos(a.LockedUntil),
		LastLoginAt:         toNanos(a.LastLoginAt),
		GDPRConsent:         a.GDPRConsent,
		GDPRConsentAt:       toNanos(a.GDPRConsentAt),
		MarketingConsent:    a.MarketingConsent,
		DeletionRequested:   a.DeletionRequested,
		DeletionRequestedAt: toNanos(a.DeletionRequestedAt),
		FederatedProvider:   a.FederatedProvider,
		FederatedSubject:    a.FederatedSubject,
		CreatedAt:           a.CreatedAt.UnixNano(),
		UpdatedAt:           a.UpdatedAt.UnixNano(),
	}
}

func (h accountHash) toDomain() *domain.Account {
	return &domain.Account{
		ID:                  h.ID,
		Email:               h.Email,
		Name:                h.Name,
		PasswordHash:        h.PasswordHash,
		Role:                domain.Role(h.Role),
		EmailVerifiedAt:     fromNanos(h.EmailVerifiedAt),
		TwoFactorEnabled:    h.TwoFactorEnabled,
		TwoFactorSecret:     h.TwoFactorSecret,
		FailedLoginAttempts: h.FailedLoginAttempts,
		LockedUntil:         fromNanos(h.LockedUntil),
		LastLoginAt:         fromNanos(h.LastLoginAt),
		GDPRConsent:         h.GDPRConsent,
		GDPRConsentAt:       fromNanos(h.GDPRConsentAt),
		MarketingConsent:    h.MarketingConsent,
		DeletionRequested:   h.DeletionRequested,
		DeletionRequestedAt: fromNanos(h.DeletionRequestedAt),
		FederatedProvider:   h.FederatedProvider,
		FederatedSubject:    h.FederatedSubject,
		CreatedAt:           time.Unix(0, h.CreatedAt).UTC(),
		UpdatedAt:           time.Unix(0, h.UpdatedAt).UTC(),
	}
}

func (h accountHash) fields() map[string]interface{} {
	return map[string]interface{}{
		"id":                    h.ID,
		"email":                 h.Email,
		"name":                  h.Name,
		"password_hash":         h.PasswordHash,
		"role":                  h.Role,
		"email_verified_at":     h.EmailVerifiedAt,
		"two_factor_enabled":    h.TwoFactorEnabled,
		"two_factor_secret":     h.TwoFactorSecret,
		"failed_login_attempts": h.FailedLoginAttempts,
		"locked_until":          h.LockedUntil,
		"last_login_at":         h.LastLoginAt,
		"gdpr_consent":          h.GDPRConsent,
		"gdpr_consent_at":       h.GDPRConsentAt,
		"marketing_consent":     h.MarketingConsent,
		"deletion_requested":    h.DeletionRequested,
		"deletion_requested_at": h.DeletionRequestedAt,
		"federated_provider":    h.FederatedProvider,
		"federated_subject":     h.FederatedSubject,
		"created_at":            h.CreatedAt,
		"updated_at":            h.UpdatedAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount claims the email index with SETNX before writing the hash,
// so two registrations of one email cannot both succeed.
func (s *Redis) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("account id required")
	}
	email := normalizeEmail(account.Email)

	claimed, err := s.redis.SetNX(ctx, s.emailIndexKey(email), account.ID, 0).Result()
	if err != nil {
		return unavailable(err)
	}
	if !claimed {
		return domain.ErrConflict
	}

	rec := *account
	rec.Email = email
	if err := s.redis.HSet(ctx, s.accountKey(rec.ID), accountToHash(&rec).fields()).Err(); err != nil {
		_ = s.redis.Del(ctx, s.emailIndexKey(email)).Err()
		return unavailable(err)
	}
	return nil
}

func (s *Redis) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	var h accountHash
	if err := s.redis.HGetAll(ctx, s.accountKey(id)).Scan(&h); err != nil {
		return nil, unavailable(err)
	}
	if h.ID == "" {
		return nil, domain.ErrNotFound
	}
	return h.toDomain(), nil
}

func (s *Redis) AccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	id, err := s.redis.Get(ctx, s.emailIndexKey(normalizeEmail(email))).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, unavailable(err)
	}
	return s.AccountByID(ctx, id)
}

// mutate applies fn to the account under WATCH and writes the result back,
// retrying when another writer touched the hash in between.
func (s *Redis) mutate(ctx context.Context, id string, fn func(h *accountHash) error) error {
	key := s.accountKey(id)

	for i := 0; i < maxTxRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			var h accountHash
			if err := tx.HGetAll(ctx, key).Scan(&h); err != nil {
				return err
			}
			if h.ID == "" {
				return domain.ErrNotFound
			}
			if err := fn(&h); err != nil {
				return err
			}
			_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.HSet(ctx, key, h.fields())
				return nil
			})
			return err
		}, key)

		if err == redis.TxFailedErr {
			continue
		}
		return unavailable(err)
	}
	return unavailable(errContention)
}

func (s *Redis) IncrementFailedLogins(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (domain.LockState, error) {
	var state domain.LockState
	err := s.mutate(ctx, id, func(h *accountHash) error {
		if h.LockedUntil != 0 && h.LockedUntil <= now.UnixNano() {
			h.FailedLoginAttempts = 0
			h.LockedUntil = 0
		}
		h.FailedLoginAttempts++
		if threshold > 0 && h.FailedLoginAttempts >= threshold && h.LockedUntil == 0 {
			h.LockedUntil = lockUntil.UnixNano()
		}
		h.UpdatedAt = now.UnixNano()

		state = domain.LockState{
			FailedAttempts: h.FailedLoginAttempts,
			LockedUntil:    fromNanos(h.LockedUntil),
		}
		return nil
	})
	return state, err
}

func (s *Redis) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		h.FailedLoginAttempts = 0
		h.LockedUntil = 0
		h.LastLoginAt = at.UnixNano()
		h.UpdatedAt = at.UnixNano()
		return nil
	})
}

func (s *Redis) UnlockAccount(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		h.FailedLoginAttempts = 0
		h.LockedUntil = 0
		h.UpdatedAt = time.Now().UnixNano()
		return nil
	})
}

func (s *Redis) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		if h.EmailVerifiedAt == 0 {
			h.EmailVerifiedAt = at.UnixNano()
		}
		h.UpdatedAt = at.UnixNano()
		return nil
	})
}

func (s *Redis) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		h.PasswordHash = hash
		h.UpdatedAt = time.Now().UnixNano()
		return nil
	})
}

func (s *Redis) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		h.TwoFactorSecret = secret
		h.TwoFactorEnabled = false
		h.UpdatedAt = time.Now().UnixNano()
		return nil
	})
}

func (s *Redis) EnableTwoFactor(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		h.TwoFactorEnabled = true
		h.UpdatedAt = time.Now().UnixNano()
		return nil
	})
}

func (s *Redis) DisableTwoFactor(ctx context.Context, id string) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		h.TwoFactorEnabled = false
		h.TwoFactorSecret = ""
		h.UpdatedAt = time.Now().UnixNano()
		return nil
	})
}

// UpdateConsent mirrors GDPR and MARKETING consent onto the account. Other
// consent types live only in the ledger.
func (s *Redis) UpdateConsent(ctx context.Context, id string, consent domain.ConsentType, granted bool, at time.Time) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		switch consent {
		case domain.ConsentGDPR:
			h.GDPRConsent = granted
			h.GDPRConsentAt = at.UnixNano()
		case domain.ConsentMarketing:
			h.MarketingConsent = granted
		}
		h.UpdatedAt = at.UnixNano()
		return nil
	})
}

func (s *Redis) RequestDeletion(ctx context.Context, id string, at time.Time) error {
	return s.mutate(ctx, id, func(h *accountHash) error {
		if !h.DeletionRequested {
			h.DeletionRequested = true
			h.DeletionRequestedAt = at.UnixNano()
		}
		h.UpdatedAt = at.UnixNano()
		return nil
	})
}
