package blogauth

import (
	"context"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	internalflows "github.com/MrEthical07/blogauth/internal/flows"
)

// VerifyEmail burns a verification token and marks its account verified.
// Every unusable token, whatever the cause, is ErrTokenInvalid.
func (e *Engine) VerifyEmail(ctx context.Context, token string) (AccountView, error) {
	if !e.ready() {
		return AccountView{}, ErrEngineNotReady
	}
	account, err := e.flows.VerifyEmail(ctx, token)
	if err != nil {
		return AccountView{}, err
	}
	return viewOf(account, 0), nil
}

// RequestEmailVerification mails a fresh token to a live, unverified
// account. It returns nil for unknown and already verified emails alike.
func (e *Engine) RequestEmailVerification(ctx context.Context, email string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.RequestEmailVerification(ctx, email)
}

func (e *Engine) emailVerificationFlowDeps() internalflows.EmailVerificationDeps {
	return internalflows.EmailVerificationDeps{
		Now: e.now,
		IssueToken: func(ctx context.Context, email string) (string, error) {
			return e.tokens.Issue(ctx, domain.TokenEmailVerification, email)
		},
		VerifyToken: func(ctx context.Context, token string) (string, bool, error) {
			return e.tokens.Verify(ctx, domain.TokenEmailVerification, token)
		},
		DeliverToken: func(ctx context.Context, account *domain.Account, token string) error {
			return e.deliver(ctx, verificationMessage(account, token))
		},
		FindAccount: e.store.AccountByEmail,
		MarkEmailVerified: func(ctx context.Context, accountID string, at time.Time) error {
			return e.store.MarkEmailVerified(ctx, accountID, at)
		},
		MetricInc: e.flowMetricInc,
		EmitAudit: e.emitAudit,
		Warn:      e.warn,
		Metrics: internalflows.EmailVerificationMetrics{
			Request: int(MetricEmailVerificationRequest),
			Success: int(MetricEmailVerificationSuccess),
			Failure: int(MetricEmailVerificationFailure),
		},
		Events: internalflows.EmailVerificationEvents{
			Request: auditEventEmailVerificationRequest,
			Success: auditEventEmailVerificationConfirm,
			Failure: auditEventEmailVerificationFailure,
		},
		Errors: internalflows.EmailVerificationErrors{
			EngineNotReady:   ErrEngineNotReady,
			InvalidRequest:   ErrInvalidRequest,
			TokenInvalid:     ErrTokenInvalid,
			StoreUnavailable: ErrStoreUnavailable,
		},
	}
}
