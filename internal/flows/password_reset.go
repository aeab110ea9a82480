package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

// PasswordResetMetrics carries metric IDs for the reset flows.
type PasswordResetMetrics struct {
	Request     int
	Success     int
	Failure     int
	RateLimited int
}

// PasswordResetEvents carries audit event names for the reset flows.
type PasswordResetEvents struct {
	Request string
	Success string
	Failure string
}

// PasswordResetErrors carries host-level sentinel errors for the reset flows.
type PasswordResetErrors struct {
	EngineNotReady   error
	InvalidRequest   error
	TokenInvalid     error
	StoreUnavailable error
}

// PasswordResetDeps captures password reset dependencies.
type PasswordResetDeps struct {
	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string
	Now                  func() time.Time
	NewID                func() string

	CheckRate      func(ctx context.Context, ip string) (allowed bool, retryAt time.Time, err error)
	RateLimitError func(retryAt time.Time) error

	IssueToken   func(ctx context.Context, email string) (string, error)
	VerifyToken  func(ctx context.Context, token string) (email string, ok bool, err error)
	ConsumeToken func(ctx context.Context, token string) (bool, error)
	DeliverToken func(ctx context.Context, account *domain.Account, token string) error

	ValidateStrength func(plaintext string) []string
	WeakPassword     func(violations []string) error
	HashPassword     func(plaintext string) (string, error)

	FindAccount        func(ctx context.Context, email string) (*domain.Account, error)
	UpdatePasswordHash func(ctx context.Context, accountID, hash string) error

	AppendAttempt func(ctx context.Context, attempt domain.LoginAttempt) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, email, reason string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
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

func (deps *PasswordResetDeps) record(ctx context.Context, email string, success bool, reason string) {
	err := deps.AppendAttempt(ctx, domain.LoginAttempt{
		ID:        deps.NewID(),
		Email:     email,
		IP:        deps.ClientIPFromContext(ctx),
		UserAgent: deps.UserAgentFromContext(ctx),
		Action:    domain.ActionPasswordReset,
		Success:   success,
		Reason:    reason,
		CreatedAt: deps.Now().UTC(),
	})
	if err != nil {
		deps.Warn("blogauth: password reset attempt record failed", "error", err)
	}
}

func (deps *PasswordResetDeps) checkRate(ctx context.Context) error {
	allowed, retryAt, err := deps.CheckRate(ctx, deps.ClientIPFromContext(ctx))
	if err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if !allowed {
		deps.MetricInc(deps.Metrics.RateLimited)
		return deps.RateLimitError(retryAt)
	}
	return nil
}

// RunRequestPasswordReset issues a reset token (superseding any earlier one)
// and hands it to the mailer. Unknown and deletion-requested emails return
// nil like a real request, but are recorded as failed PASSWORD_RESET attempts.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)
	if deps.CheckRate == nil || deps.IssueToken == nil || deps.FindAccount == nil || deps.AppendAttempt == nil {
		return deps.Errors.EngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !plausibleEmail(email) {
		return deps.Errors.InvalidRequest
	}
	if err := deps.checkRate(ctx); err != nil {
		return err
	}

	account, err := deps.FindAccount(ctx, email)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if account == nil || account.DeletionRequested {
		deps.record(ctx, email, false, "UNKNOWN_ACCOUNT")
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", email, "UNKNOWN_ACCOUNT", nil, nil)
		return nil
	}

	token, err := deps.IssueToken(ctx, email)
	if err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if deps.DeliverToken != nil {
		if err := deps.DeliverToken(ctx, account, token); err != nil {
			deps.Warn("blogauth: password reset delivery failed", "account_id", account.ID, "error", err)
		}
	}

	deps.record(ctx, email, true, "")
	deps.MetricInc(deps.Metrics.Request)
	deps.EmitAudit(ctx, deps.Events.Request, true, account.ID, email, "", nil, nil)
	return nil
}

// RunResetPassword sets a new credential from a reset token. The token is
// verified without being burned, the new hash is committed, and only then is
// the token consumed, so a failure in between leaves the token usable.
//
// Two calls presenting the same token concurrently can both pass
// verification and both commit a hash; the later commit wins and only one
// consume succeeds. The caller that loses the consume still returns success,
// and the race is reported through Warn with the account ID.
func RunResetPassword(ctx context.Context, token, newPassword string, deps PasswordResetDeps) (*domain.Account, error) {
	normalizePasswordResetDeps(&deps)
	if deps.CheckRate == nil || deps.VerifyToken == nil || deps.ConsumeToken == nil ||
		deps.ValidateStrength == nil || deps.HashPassword == nil ||
		deps.FindAccount == nil || deps.UpdatePasswordHash == nil || deps.AppendAttempt == nil {
		return nil, deps.Errors.EngineNotReady
	}

	token = strings.TrimSpace(token)
	if token == "" || newPassword == "" {
		return nil, deps.Errors.InvalidRequest
	}
	if err := deps.checkRate(ctx); err != nil {
		return nil, err
	}

	invalid := func(email string) (*domain.Account, error) {
		deps.record(ctx, email, false, "INVALID_TOKEN")
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", email, "INVALID_TOKEN", deps.Errors.TokenInvalid, nil)
		return nil, deps.Errors.TokenInvalid
	}

	email, ok, err := deps.VerifyToken(ctx, token)
	if err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	if !ok {
		return invalid("")
	}

	if violations := deps.ValidateStrength(newPassword); len(violations) > 0 {
		return nil, deps.WeakPassword(violations)
	}

	account, err := deps.FindAccount(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return invalid(email)
		}
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	if account.DeletionRequested {
		return invalid(email)
	}

	hash, err := deps.HashPassword(newPassword)
	if err != nil {
		return nil, err
	}
	if err := deps.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	account.PasswordHash = hash

	consumed, err := deps.ConsumeToken(ctx, token)
	switch {
	case err != nil:
		deps.Warn("blogauth: reset token consume failed after commit", "account_id", account.ID, "error", err)
	case !consumed:
		deps.Warn("blogauth: reset token consumed by a concurrent reset", "account_id", account.ID)
	}

	deps.record(ctx, email, true, "")
	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.ID, email, "", nil, nil)
	return account, nil
}
