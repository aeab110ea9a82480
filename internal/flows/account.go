package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/blogauth/domain"
)

const (
	minNameLength = 2
	maxNameLength = 50
)

// RegisterInput is a self-service sign-up request.
type RegisterInput struct {
	Email            string
	Password         string
	Name             string
	GDPRConsent      bool
	MarketingConsent bool
}

// RegisterResult carries the new account and the plaintext verification
// token handed to the mailer.
type RegisterResult struct {
	Account           *domain.Account
	VerificationToken string
}

// RegistrationMetrics carries metric IDs for registration.
type RegistrationMetrics struct {
	Success     int
	RateLimited int
	Rejected    int
}

// RegistrationEvents carries audit event names for registration.
type RegistrationEvents struct {
	Success  string
	Rejected string
}

// RegistrationErrors carries host-level sentinel errors for registration.
type RegistrationErrors struct {
	EngineNotReady    error
	InvalidRequest    error
	ConsentRequired   error
	AccountExists     error
	DeletionRequested error
	StoreUnavailable  error
}

// RegistrationDeps captures registration dependencies.
type RegistrationDeps struct {
	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	Now                  func() time.Time
	NewID                func() string

	CheckRate      func(ctx context.Context, ip string) (allowed bool, retryAt time.Time, err error)
	RateLimitError func(retryAt time.Time) error

	// ValidateStrength returns every policy violation, or nil.
	ValidateStrength func(plaintext string) []string
	WeakPassword     func(violations []string) error
	HashPassword     func(plaintext string) (string, error)

	FindAccount   func(ctx context.Context, email string) (*domain.Account, error)
	CreateAccount func(ctx context.Context, account *domain.Account) error
	RecordConsent func(ctx context.Context, accountID string, kind domain.ConsentType, granted bool) error

	IssueVerification   func(ctx context.Context, email string) (string, error)
	DeliverVerification func(ctx context.Context, account *domain.Account, token string) error

	AppendAttempt func(ctx context.Context, attempt domain.LoginAttempt) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, email, reason string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics RegistrationMetrics
	Events  RegistrationEvents
	Errors  RegistrationErrors
}

func normalizeRegistrationDeps(deps *RegistrationDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = func() string { return "" }
	}
	if deps.MetricInc == nil {
		deps.MetricInc = func(int) {}
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = func(context.Context, string, bool, string, string, string, error, func() map[string]string) {}
	}
	if deps.Warn == nil {
		deps.Warn = func(string, ...any) {}
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.UserAgentFromContext == nil {
		deps.UserAgentFromContext = func(context.Context) string { return "" }
	}
	if deps.RateLimitError == nil {
		deps.RateLimitError = func(time.Time) error { return errors.New("rate limited") }
	}
	if deps.WeakPassword == nil {
		deps.WeakPassword = func(v []string) error { return errors.New(strings.Join(v, "; ")) }
	}
}

func storeErr(sentinel, err error) error {
	if sentinel == nil || errors.Is(err, sentinel) {
		return err
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}

// RunRegister creates an unverified account with role USER. Order: input
// validation, REGISTRATION rate check, GDPR consent, password strength,
// email uniqueness, create, consent ledger, verification token. Rejections
// after the rate check are recorded as failed REGISTRATION attempts so they
// spend the window.
func RunRegister(ctx context.Context, in RegisterInput, deps RegistrationDeps) (*RegisterResult, error) {
	normalizeRegistrationDeps(&deps)
	if deps.CheckRate == nil || deps.ValidateStrength == nil || deps.HashPassword == nil ||
		deps.FindAccount == nil || deps.CreateAccount == nil || deps.IssueVerification == nil ||
		deps.AppendAttempt == nil {
		return nil, deps.Errors.EngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	if !plausibleEmail(email) || in.Password == "" {
		return nil, deps.Errors.InvalidRequest
	}
	if n := utf8.RuneCountInString(name); n < minNameLength || n > maxNameLength {
		return nil, deps.Errors.InvalidRequest
	}

	ip := deps.ClientIPFromContext(ctx)
	userAgent := deps.UserAgentFromContext(ctx)
	record := func(success bool, reason string) {
		err := deps.AppendAttempt(ctx, domain.LoginAttempt{
			ID:        deps.NewID(),
			Email:     email,
			IP:        ip,
			UserAgent: userAgent,
			Action:    domain.ActionRegistration,
			Success:   success,
			Reason:    reason,
			CreatedAt: deps.Now().UTC(),
		})
		if err != nil {
			deps.Warn("blogauth: registration attempt record failed", "error", err)
		}
	}
	reject := func(reason string, err error) (*RegisterResult, error) {
		record(false, reason)
		deps.MetricInc(deps.Metrics.Rejected)
		deps.EmitAudit(ctx, deps.Events.Rejected, false, "", email, reason, err, nil)
		return nil, err
	}

	allowed, retryAt, err := deps.CheckRate(ctx, ip)
	if err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	if !allowed {
		deps.MetricInc(deps.Metrics.RateLimited)
		deps.EmitAudit(ctx, deps.Events.Rejected, false, "", email, ReasonRateLimited, nil, nil)
		return nil, deps.RateLimitError(retryAt)
	}

	if !in.GDPRConsent {
		return reject("GDPR_CONSENT_REQUIRED", deps.Errors.ConsentRequired)
	}
	if violations := deps.ValidateStrength(in.Password); len(violations) > 0 {
		return reject("WEAK_PASSWORD", deps.WeakPassword(violations))
	}

	existing, err := deps.FindAccount(ctx, email)
	switch {
	case err == nil && existing.DeletionRequested:
		return reject(ReasonAccountDeletionRequested, deps.Errors.DeletionRequested)
	case err == nil:
		return reject("EMAIL_EXISTS", deps.Errors.AccountExists)
	case !errors.Is(err, domain.ErrNotFound):
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	now := deps.Now().UTC()
	account := &domain.Account{
		ID:               deps.NewID(),
		Email:            email,
		Name:             name,
		PasswordHash:     hash,
		Role:             domain.RoleUser,
		GDPRConsent:      true,
		GDPRConsentAt:    &now,
		MarketingConsent: in.MarketingConsent,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := deps.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return reject("EMAIL_EXISTS", deps.Errors.AccountExists)
		}
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}

	if deps.RecordConsent != nil {
		if err := deps.RecordConsent(ctx, account.ID, domain.ConsentGDPR, true); err != nil {
			deps.Warn("blogauth: gdpr consent log failed", "account_id", account.ID, "error", err)
		}
		if in.MarketingConsent {
			if err := deps.RecordConsent(ctx, account.ID, domain.ConsentMarketing, true); err != nil {
				deps.Warn("blogauth: marketing consent log failed", "account_id", account.ID, "error", err)
			}
		}
	}

	token, err := deps.IssueVerification(ctx, email)
	if err != nil {
		// The account exists; the user can request a fresh token.
		deps.Warn("blogauth: verification token issue failed", "account_id", account.ID, "error", err)
	} else if deps.DeliverVerification != nil {
		if err := deps.DeliverVerification(ctx, account, token); err != nil {
			deps.Warn("blogauth: verification delivery failed", "account_id", account.ID, "error", err)
		}
	}

	record(true, "")
	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.ID, email, "", nil, nil)
	return &RegisterResult{Account: account, VerificationToken: token}, nil
}

// plausibleEmail is a shape check only: one @ with text on both sides and a
// dot in the domain.
func plausibleEmail(email string) bool {
	if len(email) > 254 || strings.ContainsAny(email, " \t\r\n") {
		return false
	}
	at := strings.IndexByte(email, '@')
	if at <= 0 || at != strings.LastIndexByte(email, '@') {
		return false
	}
	domainPart := email[at+1:]
	dot := strings.LastIndexByte(domainPart, '.')
	return dot > 0 && dot < len(domainPart)-1
}
