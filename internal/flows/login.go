package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

// Rejection reasons, in evaluation order. The first failing check wins.
const (
	ReasonRateLimited              = "RATE_LIMITED"
	ReasonInvalidCredentials       = "INVALID_CREDENTIALS"
	ReasonAccountLocked            = "ACCOUNT_LOCKED"
	ReasonAccountDeletionRequested = "ACCOUNT_DELETION_REQUESTED"
	ReasonEmailNotVerified         = "EMAIL_NOT_VERIFIED"
	ReasonGDPRConsentRequired      = "GDPR_CONSENT_REQUIRED"
	ReasonTwoFactorRequired        = "TWO_FACTOR_REQUIRED"
	ReasonInvalidTwoFactor         = "INVALID_TWO_FACTOR"

	// reasonSystemError is written to the attempt log only; callers see an error.
	reasonSystemError = "SYSTEM_ERROR"
)

// LoginInput is the credential half of a login request.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
}

// FederatedInput is an identity already authenticated by an external provider.
type FederatedInput struct {
	Provider      string
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
}

// LoginResult is the flow-local outcome. Reason is empty on success.
type LoginResult struct {
	Account        *domain.Account
	Reason         string
	RetryAt        time.Time
	UsedBackupCode bool
	Provisioned    bool
}

// Success reports whether the flow accepted the login.
func (r LoginResult) Success() bool {
	return r.Reason == "" && r.Account != nil
}

// LoginMetrics carries metric IDs needed by the login flows.
type LoginMetrics struct {
	Success              int
	RateLimited          int
	InvalidCredentials   int
	AccountLocked        int
	DeletionRequested    int
	EmailNotVerified     int
	ConsentRequired      int
	TwoFactorRequired    int
	InvalidTwoFactor     int
	LockTriggered        int
	BackupCodeUsed       int
	PasswordRehashed     int
	FederatedSuccess     int
	FederatedProvisioned int
}

// LoginEvents carries audit event names used by the login flows.
type LoginEvents struct {
	Success              string
	Rejected             string
	LockTriggered        string
	BackupCodeUsed       string
	FederatedSuccess     string
	FederatedProvisioned string
	SystemError          string
}

// LoginErrors carries host-level sentinel errors used by the login flows.
type LoginErrors struct {
	EngineNotReady   error
	InvalidRequest   error
	StoreUnavailable error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	AutoProvisionFederated bool

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	Now                  func() time.Time
	NewID                func() string

	// CheckRate answers the LOGIN sliding window for ip.
	CheckRate func(ctx context.Context, ip string) (allowed bool, retryAt time.Time, err error)

	FindAccount   func(ctx context.Context, email string) (*domain.Account, error)
	CreateAccount func(ctx context.Context, account *domain.Account) error

	IsLocked      func(account *domain.Account, now time.Time) bool
	RecordFailure func(ctx context.Context, account *domain.Account) (domain.LockState, error)
	RecordSuccess func(ctx context.Context, account *domain.Account) error

	VerifyPassword       func(plaintext, digest string) (bool, error)
	DummyVerify          func(plaintext string)
	PasswordNeedsUpgrade func(digest string) (bool, error)
	HashPassword         func(plaintext string) (string, error)
	UpdatePasswordHash   func(ctx context.Context, accountID, hash string) error

	LooksLikeTOTP     func(code string) bool
	VerifyTOTP        func(code, secret string) bool
	ConsumeBackupCode func(ctx context.Context, accountID, code string) (bool, error)

	AppendAttempt func(ctx context.Context, attempt domain.LoginAttempt) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, email, reason string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
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
	if deps.DummyVerify == nil {
		deps.DummyVerify = func(string) {}
	}
	if deps.LooksLikeTOTP == nil {
		deps.LooksLikeTOTP = func(string) bool { return false }
	}
}

func loginDepsReady(deps LoginDeps) bool {
	return deps.CheckRate != nil &&
		deps.FindAccount != nil &&
		deps.IsLocked != nil &&
		deps.RecordFailure != nil &&
		deps.RecordSuccess != nil &&
		deps.AppendAttempt != nil
}

// loginRun carries per-request values shared by the reject and accept paths.
type loginRun struct {
	deps      *LoginDeps
	email     string
	ip        string
	userAgent string
	metric    func(reason string) int
}

func (r *loginRun) attempt(success bool, reason string) domain.LoginAttempt {
	return domain.LoginAttempt{
		ID:        r.deps.NewID(),
		Email:     r.email,
		IP:        r.ip,
		UserAgent: r.userAgent,
		Action:    domain.ActionLogin,
		Success:   success,
		Reason:    reason,
		CreatedAt: r.deps.Now().UTC(),
	}
}

// reject records the attempt, then reports the reason. A failed attempt
// write is logged and never masks the rejection.
func (r *loginRun) reject(ctx context.Context, account *domain.Account, reason string, retryAt time.Time) (LoginResult, error) {
	if err := r.deps.AppendAttempt(ctx, r.attempt(false, reason)); err != nil {
		r.deps.Warn("blogauth: login attempt record failed", "reason", reason, "error", err)
	}

	accountID := ""
	if account != nil {
		accountID = account.ID
	}
	r.deps.MetricInc(r.metric(reason))
	r.deps.EmitAudit(ctx, r.deps.Events.Rejected, false, accountID, r.email, reason, nil, nil)
	return LoginResult{Account: account, Reason: reason, RetryAt: retryAt}, nil
}

// fail handles a system error: best-effort attempt record, then deny.
func (r *loginRun) fail(ctx context.Context, accountID string, cause error) (LoginResult, error) {
	if err := r.deps.AppendAttempt(ctx, r.attempt(false, reasonSystemError)); err != nil {
		r.deps.Warn("blogauth: login attempt record failed", "reason", reasonSystemError, "error", err)
	}
	r.deps.EmitAudit(ctx, r.deps.Events.SystemError, false, accountID, r.email, reasonSystemError, cause, nil)
	return LoginResult{}, cause
}

func (r *loginRun) storeErr(err error) error {
	if r.deps.Errors.StoreUnavailable == nil || errors.Is(err, r.deps.Errors.StoreUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", r.deps.Errors.StoreUnavailable, err)
}

// accept writes the success attempt synchronously. If that write fails the
// login is denied.
func (r *loginRun) accept(ctx context.Context, account *domain.Account, event string, metric int) (LoginResult, error) {
	if err := r.deps.RecordSuccess(ctx, account); err != nil {
		return r.fail(ctx, account.ID, r.storeErr(err))
	}
	if err := r.deps.AppendAttempt(ctx, r.attempt(true, "")); err != nil {
		r.deps.EmitAudit(ctx, r.deps.Events.SystemError, false, account.ID, r.email, reasonSystemError, err, nil)
		return LoginResult{}, r.storeErr(err)
	}
	r.deps.MetricInc(metric)
	r.deps.EmitAudit(ctx, event, true, account.ID, r.email, "", nil, nil)
	return LoginResult{Account: account}, nil
}

func (r *loginRun) recordFailure(ctx context.Context, account *domain.Account) {
	state, err := r.deps.RecordFailure(ctx, account)
	if err != nil {
		r.deps.Warn("blogauth: failed-login counter update failed", "account_id", account.ID, "error", err)
		return
	}
	// The account passed LOCK_CHECK, so a lock in the new state was set by
	// this failure.
	if state.LockedUntil != nil {
		r.deps.MetricInc(r.deps.Metrics.LockTriggered)
		r.deps.EmitAudit(ctx, r.deps.Events.LockTriggered, false, account.ID, r.email, ReasonAccountLocked, nil, func() map[string]string {
			return map[string]string{"locked_until": state.LockedUntil.UTC().Format(time.RFC3339)}
		})
	}
}

func (deps *LoginDeps) reasonMetric(reason string) int {
	switch reason {
	case ReasonRateLimited:
		return deps.Metrics.RateLimited
	case ReasonInvalidCredentials:
		return deps.Metrics.InvalidCredentials
	case ReasonAccountLocked:
		return deps.Metrics.AccountLocked
	case ReasonAccountDeletionRequested:
		return deps.Metrics.DeletionRequested
	case ReasonEmailNotVerified:
		return deps.Metrics.EmailNotVerified
	case ReasonGDPRConsentRequired:
		return deps.Metrics.ConsentRequired
	case ReasonTwoFactorRequired:
		return deps.Metrics.TwoFactorRequired
	case ReasonInvalidTwoFactor:
		return deps.Metrics.InvalidTwoFactor
	}
	return -1
}

// RunLogin drives the credential login state machine:
// RATE_CHECK, ACCOUNT_LOOKUP, LOCK_CHECK, DELETION_CHECK, PASSWORD_CHECK,
// VERIFICATION_CHECK, CONSENT_CHECK, TWOFACTOR_CHECK. Every outcome writes
// exactly one LOGIN attempt. Rejections are returned as a LoginResult with a
// nil error; errors mean the request could not be evaluated and access is
// denied.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) (LoginResult, error) {
	normalizeLoginDeps(&deps)
	if !loginDepsReady(deps) || deps.VerifyPassword == nil {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || in.Password == "" {
		return LoginResult{}, deps.Errors.InvalidRequest
	}

	run := &loginRun{
		deps:      &deps,
		email:     email,
		ip:        deps.ClientIPFromContext(ctx),
		userAgent: deps.UserAgentFromContext(ctx),
		metric:    deps.reasonMetric,
	}

	allowed, retryAt, err := deps.CheckRate(ctx, run.ip)
	if err != nil {
		return run.fail(ctx, "", run.storeErr(err))
	}
	if !allowed {
		return run.reject(ctx, nil, ReasonRateLimited, retryAt)
	}

	account, err := deps.FindAccount(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return run.fail(ctx, "", run.storeErr(err))
		}
		deps.DummyVerify(in.Password)
		return run.reject(ctx, nil, ReasonInvalidCredentials, time.Time{})
	}
	if !account.HasPassword() {
		deps.DummyVerify(in.Password)
		return run.reject(ctx, account, ReasonInvalidCredentials, time.Time{})
	}

	now := deps.Now()
	if deps.IsLocked(account, now) {
		return run.reject(ctx, account, ReasonAccountLocked, *account.LockedUntil)
	}
	if account.DeletionRequested {
		return run.reject(ctx, account, ReasonAccountDeletionRequested, time.Time{})
	}

	ok, err := deps.VerifyPassword(in.Password, account.PasswordHash)
	if err != nil || !ok {
		run.recordFailure(ctx, account)
		return run.reject(ctx, account, ReasonInvalidCredentials, time.Time{})
	}

	if !account.EmailVerified() {
		return run.reject(ctx, account, ReasonEmailNotVerified, time.Time{})
	}
	if !account.GDPRConsent {
		return run.reject(ctx, account, ReasonGDPRConsentRequired, time.Time{})
	}

	usedBackup := false
	if account.TwoFactorEnabled {
		code := strings.TrimSpace(in.TwoFactorCode)
		if code == "" {
			return run.reject(ctx, account, ReasonTwoFactorRequired, time.Time{})
		}
		valid, backup, err := verifySecondFactor(ctx, &deps, account, code)
		if err != nil {
			return run.fail(ctx, account.ID, run.storeErr(err))
		}
		if !valid {
			run.recordFailure(ctx, account)
			return run.reject(ctx, account, ReasonInvalidTwoFactor, time.Time{})
		}
		usedBackup = backup
	}

	result, err := run.accept(ctx, account, deps.Events.Success, deps.Metrics.Success)
	if err != nil {
		return result, err
	}
	result.UsedBackupCode = usedBackup
	if usedBackup {
		deps.MetricInc(deps.Metrics.BackupCodeUsed)
		deps.EmitAudit(ctx, deps.Events.BackupCodeUsed, true, account.ID, email, "", nil, nil)
	}

	upgradePassword(ctx, &deps, account, in.Password)
	return result, nil
}

// verifySecondFactor treats a six-digit value as a TOTP code and anything
// else as a backup code.
func verifySecondFactor(ctx context.Context, deps *LoginDeps, account *domain.Account, code string) (valid, backup bool, err error) {
	if deps.LooksLikeTOTP(code) {
		if deps.VerifyTOTP == nil || account.TwoFactorSecret == "" {
			return false, false, nil
		}
		return deps.VerifyTOTP(code, account.TwoFactorSecret), false, nil
	}
	if deps.ConsumeBackupCode == nil {
		return false, false, nil
	}
	ok, err := deps.ConsumeBackupCode(ctx, account.ID, code)
	if err != nil {
		return false, false, err
	}
	return ok, ok, nil
}

func upgradePassword(ctx context.Context, deps *LoginDeps, account *domain.Account, plaintext string) {
	if deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needs, err := deps.PasswordNeedsUpgrade(account.PasswordHash)
	if err != nil || !needs {
		return
	}
	upgraded, err := deps.HashPassword(plaintext)
	if err != nil {
		deps.Warn("blogauth: password hash upgrade generation failed", "account_id", account.ID)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, account.ID, upgraded); err != nil {
		deps.Warn("blogauth: password hash upgrade update failed", "account_id", account.ID)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordRehashed)
}

// RunFederatedLogin is the reduced path for provider-authenticated identities.
// It skips the password and second-factor checks but enforces every other
// stage in the same order. Unknown emails are provisioned when enabled:
// social-only, role USER, no consent, verified iff the provider says so, and
// linked to the asserting (provider, subject). An existing account is only
// admitted when it carries that same link; any other match on email alone is
// INVALID_CREDENTIALS and leaves the account's failure counter untouched.
func RunFederatedLogin(ctx context.Context, in FederatedInput, deps LoginDeps) (LoginResult, error) {
	normalizeLoginDeps(&deps)
	if !loginDepsReady(deps) {
		return LoginResult{}, deps.Errors.EngineNotReady
	}

	email := strings.ToLower(strings.TrimSpace(in.Email))
	if email == "" || strings.TrimSpace(in.Provider) == "" || strings.TrimSpace(in.Subject) == "" {
		return LoginResult{}, deps.Errors.InvalidRequest
	}

	run := &loginRun{
		deps:      &deps,
		email:     email,
		ip:        deps.ClientIPFromContext(ctx),
		userAgent: deps.UserAgentFromContext(ctx),
		metric:    deps.reasonMetric,
	}

	allowed, retryAt, err := deps.CheckRate(ctx, run.ip)
	if err != nil {
		return run.fail(ctx, "", run.storeErr(err))
	}
	if !allowed {
		return run.reject(ctx, nil, ReasonRateLimited, retryAt)
	}

	provider, subject := strings.TrimSpace(in.Provider), strings.TrimSpace(in.Subject)
	provisioned := false
	account, err := deps.FindAccount(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return run.fail(ctx, "", run.storeErr(err))
		}
		if !deps.AutoProvisionFederated || deps.CreateAccount == nil {
			return run.reject(ctx, nil, ReasonInvalidCredentials, time.Time{})
		}
		account, provisioned, err = provisionFederated(ctx, &deps, in, email)
		if err != nil {
			return run.fail(ctx, "", run.storeErr(err))
		}
	}
	if !account.LinkedTo(provider, subject) {
		return run.reject(ctx, nil, ReasonInvalidCredentials, time.Time{})
	}
	if provisioned {
		deps.MetricInc(deps.Metrics.FederatedProvisioned)
		deps.EmitAudit(ctx, deps.Events.FederatedProvisioned, true, account.ID, email, "", nil, func() map[string]string {
			return map[string]string{"provider": in.Provider}
		})
	}

	now := deps.Now()
	if deps.IsLocked(account, now) {
		return run.reject(ctx, account, ReasonAccountLocked, *account.LockedUntil)
	}
	if account.DeletionRequested {
		return run.reject(ctx, account, ReasonAccountDeletionRequested, time.Time{})
	}
	if !account.EmailVerified() {
		return run.reject(ctx, account, ReasonEmailNotVerified, time.Time{})
	}
	if !account.GDPRConsent {
		result, err := run.reject(ctx, account, ReasonGDPRConsentRequired, time.Time{})
		result.Provisioned = provisioned
		return result, err
	}

	result, err := run.accept(ctx, account, deps.Events.FederatedSuccess, deps.Metrics.FederatedSuccess)
	result.Provisioned = provisioned
	return result, err
}

// provisionFederated creates a social-only account linked to in. The bool
// is false when another writer claimed the email first; the caller still
// checks the link on whatever account it gets back.
func provisionFederated(ctx context.Context, deps *LoginDeps, in FederatedInput, email string) (*domain.Account, bool, error) {
	now := deps.Now().UTC()
	account := &domain.Account{
		ID:                deps.NewID(),
		Email:             email,
		Name:              strings.TrimSpace(in.Name),
		Role:              domain.RoleUser,
		FederatedProvider: strings.TrimSpace(in.Provider),
		FederatedSubject:  strings.TrimSpace(in.Subject),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if in.EmailVerified {
		account.EmailVerifiedAt = &now
	}

	err := deps.CreateAccount(ctx, account)
	if errors.Is(err, domain.ErrConflict) {
		existing, err := deps.FindAccount(ctx, email)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	return account, true, nil
}
