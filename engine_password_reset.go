package blogauth

import (
	"context"

	"github.com/MrEthical07/blogauth/domain"
	internalflows "github.com/MrEthical07/blogauth/internal/flows"
)

// RequestPasswordReset mails a reset token that supersedes any earlier one.
// Unknown and deletion-requested emails get the same nil result but spend
// the caller's PASSWORD_RESET budget.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.RequestPasswordReset(ctx, email)
}

// ResetPassword sets a new password from a reset token. The token stays
// usable until the new hash is committed. Concurrent resets with one token
// may each commit before either consumes it; the last commit wins and the
// losing consume is logged at warn level.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	_, err := e.flows.ResetPassword(ctx, token, newPassword)
	return err
}

func (e *Engine) passwordResetFlowDeps() internalflows.PasswordResetDeps {
	return internalflows.PasswordResetDeps{
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		Now:                  e.now,
		NewID:                e.newID,
		CheckRate:            e.rateCheck(domain.ActionPasswordReset),
		RateLimitError:       rateLimitError,
		IssueToken: func(ctx context.Context, email string) (string, error) {
			return e.tokens.Issue(ctx, domain.TokenPasswordReset, email)
		},
		VerifyToken: func(ctx context.Context, token string) (string, bool, error) {
			return e.tokens.Verify(ctx, domain.TokenPasswordReset, token)
		},
		ConsumeToken: func(ctx context.Context, token string) (bool, error) {
			return e.tokens.Consume(ctx, domain.TokenPasswordReset, token)
		},
		DeliverToken: func(ctx context.Context, account *domain.Account, token string) error {
			return e.deliver(ctx, resetMessage(account, token))
		},
		ValidateStrength:   e.validateStrength,
		WeakPassword:       weakPasswordError,
		HashPassword:       e.hasher.Hash,
		FindAccount:        e.store.AccountByEmail,
		UpdatePasswordHash: e.store.UpdatePasswordHash,
		AppendAttempt:      e.store.AppendAttempt,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitAudit,
		Warn:               e.warn,
		Metrics: internalflows.PasswordResetMetrics{
			Request:     int(MetricPasswordResetRequest),
			Success:     int(MetricPasswordResetSuccess),
			Failure:     int(MetricPasswordResetFailure),
			RateLimited: int(MetricPasswordResetRateLimited),
		},
		Events: internalflows.PasswordResetEvents{
			Request: auditEventPasswordResetRequest,
			Success: auditEventPasswordResetConfirm,
			Failure: auditEventPasswordResetFailure,
		},
		Errors: internalflows.PasswordResetErrors{
			EngineNotReady:   ErrEngineNotReady,
			InvalidRequest:   ErrInvalidRequest,
			TokenInvalid:     ErrTokenInvalid,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
}
