package blogauth

import (
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal/flows"
)

// Login rejection reasons, in evaluation order. The first failing check wins.
const (
	ReasonRateLimited              = flows.ReasonRateLimited
	ReasonInvalidCredentials       = flows.ReasonInvalidCredentials
	ReasonAccountLocked            = flows.ReasonAccountLocked
	ReasonAccountDeletionRequested = flows.ReasonAccountDeletionRequested
	ReasonEmailNotVerified         = flows.ReasonEmailNotVerified
	ReasonGDPRConsentRequired      = flows.ReasonGDPRConsentRequired
	ReasonTwoFactorRequired        = flows.ReasonTwoFactorRequired
	ReasonInvalidTwoFactor         = flows.ReasonInvalidTwoFactor
)

// LoginRequest is a credential login. TwoFactorCode accepts either a
// six-digit authenticator code or a backup code and is ignored for accounts
// without two-factor.
type LoginRequest struct {
	Email         string
	Password      string
	TwoFactorCode string
}

// FederatedIdentity is an identity already authenticated by an external
// provider (OAuth, OIDC).
type FederatedIdentity struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// IdentityAssertion is what a session layer needs to mint a session.
type IdentityAssertion struct {
	AccountID        string      `json:"account_id"`
	Email            string      `json:"email"`
	Name             string      `json:"name,omitempty"`
	Role             domain.Role `json:"role"`
	TwoFactorEnabled bool        `json:"two_factor_enabled"`
	GDPRConsent      bool        `json:"gdpr_consent"`
	EmailVerified    bool        `json:"email_verified"`
}

// LoginOutcome is either LoginSuccess or LoginRejected.
type LoginOutcome interface {
	loginOutcome()
}

// LoginSuccess carries the assertion for the session layer.
type LoginSuccess struct {
	Assertion      IdentityAssertion
	UsedBackupCode bool
	// Provisioned is set when a federated login created the account.
	Provisioned bool
}

// LoginRejected carries a reason from the Reason* set. RetryAt is set for
// RATE_LIMITED and ACCOUNT_LOCKED.
type LoginRejected struct {
	Reason  string
	RetryAt time.Time
}

func (LoginSuccess) loginOutcome()  {}
func (LoginRejected) loginOutcome() {}

// RegisterRequest is a self-service sign-up.
type RegisterRequest struct {
	Email            string
	Password         string
	Name             string
	GDPRConsent      bool
	MarketingConsent bool
}

// AccountView is an account without credential material.
type AccountView struct {
	ID                  string      `json:"id"`
	Email               string      `json:"email"`
	Name                string      `json:"name"`
	Role                domain.Role `json:"role"`
	EmailVerified       bool        `json:"email_verified"`
	EmailVerifiedAt     *time.Time  `json:"email_verified_at,omitempty"`
	HasPassword         bool        `json:"has_password"`
	TwoFactorEnabled    bool        `json:"two_factor_enabled"`
	BackupCodesLeft     int         `json:"backup_codes_left"`
	FailedLoginAttempts int         `json:"failed_login_attempts"`
	LockedUntil         *time.Time  `json:"locked_until,omitempty"`
	LastLoginAt         *time.Time  `json:"last_login_at,omitempty"`
	GDPRConsent         bool        `json:"gdpr_consent"`
	GDPRConsentAt       *time.Time  `json:"gdpr_consent_at,omitempty"`
	MarketingConsent    bool        `json:"marketing_consent"`
	DeletionRequested   bool        `json:"deletion_requested"`
	DeletionRequestedAt *time.Time  `json:"deletion_requested_at,omitempty"`
	CreatedAt           time.Time   `json:"created_at"`
	UpdatedAt           time.Time   `json:"updated_at"`
}

// ConsentEntry is one consent ledger row as exported to the account owner.
type ConsentEntry struct {
	Type      domain.ConsentType `json:"type"`
	Granted   bool               `json:"granted"`
	IP        string             `json:"ip,omitempty"`
	UserAgent string             `json:"user_agent,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// DataExport is the GDPR access-request payload.
type DataExport struct {
	Account    AccountView    `json:"account"`
	Consents   []ConsentEntry `json:"consents"`
	ExportedAt time.Time      `json:"exported_at"`
}

// TwoFactorSetup is returned once, at setup start. The secret and backup codes
// are not retrievable afterwards.
type TwoFactorSetup struct {
	Secret          string
	ProvisioningURI string
	BackupCodes     []string
}

func assertionFor(a *domain.Account) IdentityAssertion {
	return IdentityAssertion{
		AccountID:        a.ID,
		Email:            a.Email,
		Name:             a.Name,
		Role:             a.Role,
		TwoFactorEnabled: a.TwoFactorEnabled,
		GDPRConsent:      a.GDPRConsent,
		EmailVerified:    a.EmailVerified(),
	}
}

func viewOf(a *domain.Account, backupCodes int) AccountView {
	return AccountView{
		ID:                  a.ID,
		Email:               a.Email,
		Name:                a.Name,
		Role:                a.Role,
		EmailVerified:       a.EmailVerified(),
		EmailVerifiedAt:     a.EmailVerifiedAt,
		HasPassword:         a.HasPassword(),
		TwoFactorEnabled:    a.TwoFactorEnabled,
		BackupCodesLeft:     backupCodes,
		FailedLoginAttempts: a.FailedLoginAttempts,
		LockedUntil:         a.LockedUntil,
		LastLoginAt:         a.LastLoginAt,
		GDPRConsent:         a.GDPRConsent,
		GDPRConsentAt:       a.GDPRConsentAt,
		MarketingConsent:    a.MarketingConsent,
		DeletionRequested:   a.DeletionRequested,
		DeletionRequestedAt: a.DeletionRequestedAt,
		CreatedAt:           a.CreatedAt,
		UpdatedAt:           a.UpdatedAt,
	}
}
