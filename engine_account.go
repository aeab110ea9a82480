package blogauth

import (
	"context"
	"errors"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal/consent"
	internalflows "github.com/MrEthical07/blogauth/internal/flows"
)

// Register creates an unverified USER account and mails a verification
// token. Rejections after the rate check spend the caller's REGISTRATION
// budget.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (AccountView, error) {
	if !e.ready() {
		return AccountView{}, ErrEngineNotReady
	}
	res, err := e.flows.Register(ctx, internalflows.RegisterInput{
		Email:            req.Email,
		Password:         req.Password,
		Name:             req.Name,
		GDPRConsent:      req.GDPRConsent,
		MarketingConsent: req.MarketingConsent,
	})
	if err != nil {
		return AccountView{}, err
	}
	return viewOf(res.Account, 0), nil
}

func (e *Engine) registrationFlowDeps() internalflows.RegistrationDeps {
	return internalflows.RegistrationDeps{
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		Now:                  e.now,
		NewID:                e.newID,
		CheckRate:            e.rateCheck(domain.ActionRegistration),
		RateLimitError:       rateLimitError,
		ValidateStrength:     e.validateStrength,
		WeakPassword:         weakPasswordError,
		HashPassword:         e.hasher.Hash,
		FindAccount:          e.store.AccountByEmail,
		CreateAccount:        e.store.CreateAccount,
		RecordConsent: func(ctx context.Context, accountID string, kind domain.ConsentType, granted bool) error {
			_, err := e.consent.Record(ctx, accountID, kind, granted, consentSource(ctx))
			return err
		},
		IssueVerification: func(ctx context.Context, email string) (string, error) {
			return e.tokens.Issue(ctx, domain.TokenEmailVerification, email)
		},
		DeliverVerification: func(ctx context.Context, account *domain.Account, token string) error {
			return e.deliver(ctx, verificationMessage(account, token))
		},
		AppendAttempt: e.store.AppendAttempt,
		MetricInc:     e.flowMetricInc,
		EmitAudit:     e.emitAudit,
		Warn:          e.warn,
		Metrics: internalflows.RegistrationMetrics{
			Success:     int(MetricRegistrationSuccess),
			RateLimited: int(MetricRegistrationRateLimited),
			Rejected:    int(MetricRegistrationRejected),
		},
		Events: internalflows.RegistrationEvents{
			Success:  auditEventRegistrationSuccess,
			Rejected: auditEventRegistrationRejected,
		},
		Errors: internalflows.RegistrationErrors{
			EngineNotReady:    ErrEngineNotReady,
			InvalidRequest:    ErrInvalidRequest,
			ConsentRequired:   ErrConsentRequired,
			AccountExists:     ErrAccountExists,
			DeletionRequested: ErrAccountDeletionRequested,
			StoreUnavailable:  ErrStoreUnavailable,
		},
	}
}

func consentSource(ctx context.Context) consent.Source {
	return consent.Source{IP: clientIPFromContext(ctx), UserAgent: userAgentFromContext(ctx)}
}

// mapAccountError turns store sentinels into engine sentinels.
func mapAccountError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, domain.ErrNotFound):
		return ErrAccountNotFound
	default:
		return storeUnavailable(err)
	}
}
