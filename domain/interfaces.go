package domain

import (
	"context"
	"time"
)

// AccountStore defines account data access operations.
type AccountStore interface {
	CreateAccount(ctx context.Context, account *Account) error
	AccountByID(ctx context.Context, id string) (*Account, error)
	AccountByEmail(ctx context.Context, email string) (*Account, error)

	// IncrementFailedLogins atomically bumps the failure counter. A lock that
	// has already expired at now is cleared and the counter restarts from zero
	// before the increment. When the new count reaches threshold and no lock
	// is active, LockedUntil is set to lockUntil.
	IncrementFailedLogins(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (LockState, error)
	// RecordLoginSuccess zeroes the counter, clears the lock, and stamps LastLoginAt.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	UnlockAccount(ctx context.Context, id string) error

	MarkEmailVerified(ctx context.Context, id string, at time.Time) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	// SetTwoFactorSecret stores a pending secret and leaves TwoFactorEnabled false.
	SetTwoFactorSecret(ctx context.Context, id, secret string) error
	EnableTwoFactor(ctx context.Context, id string) error
	// DisableTwoFactor clears the flag and the secret.
	DisableTwoFactor(ctx context.Context, id string) error
	UpdateConsent(ctx context.Context, id string, consent ConsentType, granted bool, at time.Time) error
	RequestDeletion(ctx context.Context, id string, at time.Time) error
}

// BackupCodeStore holds the hashed single-use backup codes of an account.
type BackupCodeStore interface {
	ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error
	// ConsumeBackupCode removes hash from the account's set. Concurrent callers
	// with the same hash observe at most one true.
	ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error)
	CountBackupCodes(ctx context.Context, accountID string) (int, error)
}

// TokenStore persists verification and reset tokens by hash.
type TokenStore interface {
	SaveToken(ctx context.Context, rec TokenRecord) error
	// ReplaceTokensForEmail deletes every token of rec.Kind owned by rec.Email
	// and stores rec, as one atomic step.
	ReplaceTokensForEmail(ctx context.Context, rec TokenRecord) error
	FindToken(ctx context.Context, kind TokenKind, hash string) (*TokenRecord, error)
	// DeleteToken reports whether this call removed the token.
	DeleteToken(ctx context.Context, kind TokenKind, hash string) (bool, error)
	DeleteTokensForEmail(ctx context.Context, kind TokenKind, email string) (int, error)
}

// AttemptLog is the append-only attempt history used for rate limiting.
type AttemptLog interface {
	AppendAttempt(ctx context.Context, attempt LoginAttempt) error
	// CountFailures counts failed attempts for ip and action at or after since.
	CountFailures(ctx context.Context, ip string, action ActionClass, since time.Time) (int, error)
	// NthFailureAt returns the timestamp of the n-th (zero-based, oldest first)
	// failure at or after since.
	NthFailureAt(ctx context.Context, ip string, action ActionClass, since time.Time, n int) (time.Time, error)
	RecentAttempts(ctx context.Context, email string, limit int) ([]LoginAttempt, error)
}

// ConsentStore is the append-only consent ledger.
type ConsentStore interface {
	AppendConsent(ctx context.Context, entry ConsentLog) error
	ConsentHistory(ctx context.Context, accountID string) ([]ConsentLog, error)
}

// Store is the full persistence capability consumed by the engine.
type Store interface {
	AccountStore
	BackupCodeStore
	TokenStore
	AttemptLog
	ConsentStore
}
