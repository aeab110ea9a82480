package domain

import "time"

// Role is the closed set of account roles.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAdmin     Role = "ADMIN"
	RoleModerator Role = "MODERATOR"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAdmin, RoleModerator:
		return true
	}
	return false
}

// ConsentType identifies what a ConsentLog entry grants or withdraws.
type ConsentType string

const (
	ConsentGDPR      ConsentType = "GDPR"
	ConsentMarketing ConsentType = "MARKETING"
	ConsentCookies   ConsentType = "COOKIES"
	ConsentAnalytics ConsentType = "ANALYTICS"
)

// Valid reports whether c is one of the known consent types.
func (c ConsentType) Valid() bool {
	switch c {
	case ConsentGDPR, ConsentMarketing, ConsentCookies, ConsentAnalytics:
		return true
	}
	return false
}

// ActionClass keys rate-limit windows in the attempt log.
type ActionClass string

const (
	ActionLogin         ActionClass = "LOGIN"
	ActionPasswordReset ActionClass = "PASSWORD_RESET"
	ActionRegistration  ActionClass = "REGISTRATION"
)

// TokenKind distinguishes the two single-use token families.
type TokenKind string

const (
	TokenEmailVerification TokenKind = "email-verification"
	TokenPasswordReset     TokenKind = "password-reset"
)

// Account is the persisted identity. PasswordHash is empty for accounts that
// only sign in through a federated provider. FederatedProvider and
// FederatedSubject record the provider identity an account was provisioned
// from; they are empty for accounts created by registration.
type Account struct {
	ID                  string
	Email               string
	Name                string
	PasswordHash        string
	Role                Role
	EmailVerifiedAt     *time.Time
	TwoFactorEnabled    bool
	TwoFactorSecret     string
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LastLoginAt         *time.Time
	GDPRConsent         bool
	GDPRConsentAt       *time.Time
	MarketingConsent    bool
	DeletionRequested   bool
	DeletionRequestedAt *time.Time
	FederatedProvider   string
	FederatedSubject    string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// EmailVerified reports whether the account has completed email verification.
func (a *Account) EmailVerified() bool {
	return a != nil && a.EmailVerifiedAt != nil
}

// LinkedTo reports whether the account was provisioned from the given
// provider identity.
func (a *Account) LinkedTo(provider, subject string) bool {
	return a != nil && a.FederatedProvider != "" &&
		a.FederatedProvider == provider && a.FederatedSubject == subject
}

// HasPassword reports whether the account carries a local credential.
func (a *Account) HasPassword() bool {
	return a != nil && a.PasswordHash != ""
}

// LockState is the failure counter and lock deadline after an atomic update.
type LockState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// TokenRecord is the stored half of an issued token. Hash is the hex SHA-256
// of the opaque token; the token itself is never persisted.
type TokenRecord struct {
	Kind      TokenKind
	Hash      string
	Email     string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is no longer usable at now.
func (t *TokenRecord) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// LoginAttempt is an immutable audit record. Action scopes the record to a
// rate-limit window; Reason carries the rejection reason when Success is false.
type LoginAttempt struct {
	ID        string
	Email     string
	IP        string
	UserAgent string
	Action    ActionClass
	Success   bool
	Reason    string
	CreatedAt time.Time
}

// ConsentLog is an immutable consent ledger entry.
type ConsentLog struct {
	ID        string
	AccountID string
	Type      ConsentType
	Granted   bool
	IP        string
	UserAgent string
	CreatedAt time.Time
}
