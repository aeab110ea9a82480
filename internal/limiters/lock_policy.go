package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

// ErrLockUnavailable indicates the account store rejected a lock update.
var ErrLockUnavailable = errors.New("lock policy backend unavailable")

// LockConfig holds the account lockout thresholds.
type LockConfig struct {
	Threshold int           `yaml:"threshold"`
	Duration  time.Duration `yaml:"duration"`
}

// DefaultLockConfig returns 5 failures and a 30 minute lock.
func DefaultLockConfig() LockConfig {
	return LockConfig{Threshold: 5, Duration: 30 * time.Minute}
}

// LockPolicy protects a single account from repeated credential failures
// regardless of how many sources they come from. It is independent of
// RateLimiter, which is scoped to the source IP.
type LockPolicy struct {
	accounts domain.AccountStore
	config   LockConfig
	now      func() time.Time
}

// NewLockPolicy builds a LockPolicy over accounts.
func NewLockPolicy(accounts domain.AccountStore, cfg LockConfig, now func() time.Time) *LockPolicy {
	if now == nil {
		now = time.Now
	}
	return &LockPolicy{accounts: accounts, config: cfg, now: now}
}

// IsLocked is true iff the account carries a lock deadline after now.
func (p *LockPolicy) IsLocked(account *domain.Account, now time.Time) bool {
	return account != nil && account.LockedUntil != nil && now.Before(*account.LockedUntil)
}

// RecordFailure bumps the account's failure counter and locks it when the
// threshold is reached. The returned state is the stored one after the update.
func (p *LockPolicy) RecordFailure(ctx context.Context, account *domain.Account) (domain.LockState, error) {
	if account == nil {
		return domain.LockState{}, nil
	}
	now := p.now()
	state, err := p.accounts.IncrementFailedLogins(ctx, account.ID, now, p.config.Threshold, now.Add(p.config.Duration))
	if err != nil {
		return domain.LockState{}, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return state, nil
}

// RecordSuccess clears the counter and any lock and stamps the login time.
func (p *LockPolicy) RecordSuccess(ctx context.Context, account *domain.Account) error {
	if account == nil {
		return nil
	}
	if err := p.accounts.RecordLoginSuccess(ctx, account.ID, p.now()); err != nil {
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return nil
}

// Unlock is the administrative reset.
func (p *LockPolicy) Unlock(ctx context.Context, accountID string) error {
	if err := p.accounts.UnlockAccount(ctx, accountID); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	return nil
}
