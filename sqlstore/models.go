package sqlstore

import (
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

type accountRow struct {
	ID                  string `gorm:"primaryKey;size:36"`
	Email               string `gorm:"uniqueIndex;size:320;not null"`
	Name                string `gorm:"size:100"`
	PasswordHash        string `gorm:"size:255"`
	Role                string `gorm:"size:16;not null"`
	EmailVerifiedAt     *time.Time
	TwoFactorEnabled    bool   `gorm:"not null;default:false"`
	TwoFactorSecret     string `gorm:"size:128"`
	FailedLoginAttempts int    `gorm:"not null;default:0"`
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	GDPRConsent         bool       `gorm:"column:gdpr_consent;not null;default:false"`
	GDPRConsentAt       *time.Time `gorm:"column:gdpr_consent_at"`
	MarketingConsent    bool       `gorm:"not null;default:false"`
	DeletionRequested   bool       `gorm:"not null;default:false;index"`
	DeletionRequestedAt *time.Time
	FederatedProvider   string `gorm:"index:idx_account_federated,priority:1;size:64"`
	FederatedSubject    string `gorm:"index:idx_account_federated,priority:2;size:255"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (accountRow) TableName() string { return "accounts" }

type backupCodeRow struct {
	AccountID string `gorm:"primaryKey;size:36"`
	Hash      string `gorm:"primaryKey;size:64"`
}

func (backupCodeRow) TableName() string { return "backup_codes" }

type tokenRow struct {
	Kind      string    `gorm:"primaryKey;size:32"`
	Hash      string    `gorm:"primaryKey;size:64"`
	Email     string    `gorm:"index;size:320;not null"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (tokenRow) TableName() string { return "auth_tokens" }

// attemptRow and consentRow are append-only; Seq gives a stable insertion
// order when timestamps collide.
type attemptRow struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	Email     string    `gorm:"index;size:320"`
	IP        string    `gorm:"index:idx_attempt_window,priority:2;size:45"`
	UserAgent string    `gorm:"size:512"`
	Action    string    `gorm:"index:idx_attempt_window,priority:1;size:32;not null"`
	Success   bool      `gorm:"index:idx_attempt_window,priority:3;not null"`
	Reason    string    `gorm:"size:64"`
	CreatedAt time.Time `gorm:"index:idx_attempt_window,priority:4;not null"`
}

func (attemptRow) TableName() string { return "login_attempts" }

type consentRow struct {
	Seq       uint64    `gorm:"primaryKey;autoIncrement"`
	ID        string    `gorm:"uniqueIndex;size:36;not null"`
	AccountID string    `gorm:"index;size:36;not null"`
	Type      string    `gorm:"size:16;not null"`
	Granted   bool      `gorm:"not null"`
	IP        string    `gorm:"size:45"`
	UserAgent string    `gorm:"size:512"`
	CreatedAt time.Time `gorm:"not null"`
}

func (consentRow) TableName() string { return "consent_logs" }

func models() []any {
	return []any{&accountRow{}, &backupCodeRow{}, &tokenRow{}, &attemptRow{}, &consentRow{}}
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func accountToRow(a *domain.Account) *accountRow {
	return &accountRow{
		ID:                  a.ID,
		Email:               normalizeEmail(a.Email),
		Name:                a.Name,
		PasswordHash:        a.PasswordHash,
		Role:                string(a.Role),
		EmailVerifiedAt:     utc(a.EmailVerifiedAt),
		TwoFactorEnabled:    a.TwoFactorEnabled,
		TwoFactorSecret:     a.TwoFactorSecret,
		FailedLoginAttempts: a.FailedLoginAttempts,
		LockedUntil:         utc(a.LockedUntil),
		LastLoginAt:         utc(a.LastLoginAt),
		GDPRConsent:         a.GDPRConsent,
		GDPRConsentAt:       utc(a.GDPRConsentAt),
		MarketingConsent:    a.MarketingConsent,
		DeletionRequested:   a.DeletionRequested,
		DeletionRequestedAt: utc(a.DeletionRequestedAt),
		FederatedProvider:   a.FederatedProvider,
		FederatedSubject:    a.FederatedSubject,
		CreatedAt:           a.CreatedAt.UTC(),
		UpdatedAt:           a.UpdatedAt.UTC(),
	}
}

func (r *accountRow) toDomain() *domain.Account {
	return &domain.Account{
		ID:                  r.ID,
		Email:               r.Email,
		Name:                r.Name,
		PasswordHash:        r.PasswordHash,
		Role:                domain.Role(r.Role),
		EmailVerifiedAt:     utc(r.EmailVerifiedAt),
		TwoFactorEnabled:    r.TwoFactorEnabled,
		TwoFactorSecret:     r.TwoFactorSecret,
		FailedLoginAttempts: r.FailedLoginAttempts,
		LockedUntil:         utc(r.LockedUntil),
		LastLoginAt:         utc(r.LastLoginAt),
		GDPRConsent:         r.GDPRConsent,
		GDPRConsentAt:       utc(r.GDPRConsentAt),
		MarketingConsent:    r.MarketingConsent,
		DeletionRequested:   r.DeletionRequested,
		DeletionRequestedAt: utc(r.DeletionRequestedAt),
		FederatedProvider:   r.FederatedProvider,
		FederatedSubject:    r.FederatedSubject,
		CreatedAt:           r.CreatedAt.UTC(),
		UpdatedAt:           r.UpdatedAt.UTC(),
	}
}
