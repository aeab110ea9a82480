package flows

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/blogauth/domain"
)

// EmailVerificationMetrics carries metric IDs for email verification.
type EmailVerificationMetrics struct {
	Request int
	Success int
	Failure int
}

// EmailVerificationEvents carries audit event names for email verification.
type EmailVerificationEvents struct {
	Request string
	Success string
	Failure string
}

// EmailVerificationErrors carries host-level sentinel errors.
type EmailVerificationErrors struct {
	EngineNotReady   error
	InvalidRequest   error
	TokenInvalid     error
	StoreUnavailable error
}

// EmailVerificationDeps captures email verification dependencies.
type EmailVerificationDeps struct {
	Now func() time.Time

	IssueToken   func(ctx context.Context, email string) (string, error)
	VerifyToken  func(ctx context.Context, token string) (email string, ok bool, err error)
	DeliverToken func(ctx context.Context, account *domain.Account, token string) error

	FindAccount       func(ctx context.Context, email string) (*domain.Account, error)
	MarkEmailVerified func(ctx context.Context, accountID string, at time.Time) error

	MetricInc func(int)
	EmitAudit func(ctx context.Context, event string, success bool, accountID, email, reason string, err error, meta func() map[string]string)
	Warn      func(string, ...any)

	Metrics EmailVerificationMetrics
	Events  EmailVerificationEvents
	Errors  EmailVerificationErrors
}

func normalizeEmailVerificationDeps(deps *EmailVerificationDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
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
}

// RunVerifyEmail burns the token and stamps the owning account verified.
// Unknown, expired, already-used and orphaned tokens all report TokenInvalid.
func RunVerifyEmail(ctx context.Context, token string, deps EmailVerificationDeps) (*domain.Account, error) {
	normalizeEmailVerificationDeps(&deps)
	if deps.VerifyToken == nil || deps.FindAccount == nil || deps.MarkEmailVerified == nil {
		return nil, deps.Errors.EngineNotReady
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return nil, deps.Errors.InvalidRequest
	}

	fail := func(email string, err error) (*domain.Account, error) {
		deps.MetricInc(deps.Metrics.Failure)
		deps.EmitAudit(ctx, deps.Events.Failure, false, "", email, "INVALID_TOKEN", err, nil)
		return nil, err
	}

	email, ok, err := deps.VerifyToken(ctx, token)
	if err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	if !ok {
		return fail("", deps.Errors.TokenInvalid)
	}

	account, err := deps.FindAccount(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fail(email, deps.Errors.TokenInvalid)
		}
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}

	now := deps.Now().UTC()
	if err := deps.MarkEmailVerified(ctx, account.ID, now); err != nil {
		return nil, storeErr(deps.Errors.StoreUnavailable, err)
	}
	if account.EmailVerifiedAt == nil {
		account.EmailVerifiedAt = &now
	}

	deps.MetricInc(deps.Metrics.Success)
	deps.EmitAudit(ctx, deps.Events.Success, true, account.ID, email, "", nil, nil)
	return account, nil
}

// RunRequestEmailVerification issues and delivers a fresh token when the
// email belongs to a live, unverified account. It returns nil in every other
// case so callers cannot probe which emails exist.
func RunRequestEmailVerification(ctx context.Context, email string, deps EmailVerificationDeps) error {
	normalizeEmailVerificationDeps(&deps)
	if deps.IssueToken == nil || deps.FindAccount == nil {
		return deps.Errors.EngineNotReady
	}

	email = strings.ToLower(strings.TrimSpace(email))
	if !plausibleEmail(email) {
		return deps.Errors.InvalidRequest
	}

	account, err := deps.FindAccount(ctx, email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if account.DeletionRequested || account.EmailVerified() {
		return nil
	}

	token, err := deps.IssueToken(ctx, email)
	if err != nil {
		return storeErr(deps.Errors.StoreUnavailable, err)
	}
	if deps.DeliverToken != nil {
		if err := deps.DeliverToken(ctx, account, token); err != nil {
			deps.Warn("blogauth: verification delivery failed", "account_id", account.ID, "error", err)
		}
	}

	deps.MetricInc(deps.Metrics.Request)
	deps.EmitAudit(ctx, deps.Events.Request, true, account.ID, email, "", nil, nil)
	return nil
}
