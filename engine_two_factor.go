package blogauth

import (
	"context"
	"strings"

	internalflows "github.com/MrEthical07/blogauth/internal/flows"
)

// BeginTwoFactorSetup generates a pending secret and a batch of backup
// codes. Two-factor stays off until ConfirmTwoFactorSetup succeeds; calling
// this again before then replaces both.
func (e *Engine) BeginTwoFactorSetup(ctx context.Context, accountID string) (TwoFactorSetup, error) {
	if !e.ready() {
		return TwoFactorSetup{}, ErrEngineNotReady
	}
	setup, err := e.flows.BeginTwoFactorSetup(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return TwoFactorSetup{}, err
	}
	return TwoFactorSetup{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		BackupCodes:     setup.BackupCodes,
	}, nil
}

// ConfirmTwoFactorSetup enables two-factor once code matches the pending secret.
func (e *Engine) ConfirmTwoFactorSetup(ctx context.Context, accountID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.ConfirmTwoFactorSetup(ctx, strings.TrimSpace(accountID), code)
}

// DisableTwoFactor turns two-factor off after an authenticator or backup
// code, and discards the secret and the remaining backup codes.
func (e *Engine) DisableTwoFactor(ctx context.Context, accountID, code string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	return e.flows.DisableTwoFactor(ctx, strings.TrimSpace(accountID), code)
}

// RegenerateBackupCodes replaces the backup code batch. It requires a
// current authenticator code.
func (e *Engine) RegenerateBackupCodes(ctx context.Context, accountID, code string) ([]string, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	return e.flows.RegenerateBackupCodes(ctx, strings.TrimSpace(accountID), code)
}

func (e *Engine) twoFactorFlowDeps() internalflows.TwoFactorDeps {
	deps := internalflows.TwoFactorDeps{
		FindAccountByID: e.store.AccountByID,
		GenerateSecret: func(label string) (internalflows.TwoFactorSetup, error) {
			s, err := e.twoFactor.GenerateSecret(label)
			if err != nil {
				return internalflows.TwoFactorSetup{}, err
			}
			return internalflows.TwoFactorSetup{
				Secret:          s.Secret,
				ProvisioningURI: s.ProvisioningURI,
				BackupCodes:     s.BackupCodes,
			}, nil
		},
		NewBackupCodes:     e.twoFactor.NewBackupCodes,
		HashBackupCodes:    e.twoFactor.HashBackupCodes,
		LooksLikeTOTP:      e.twoFactor.LooksLikeCode,
		VerifyTOTP:         e.twoFactor.VerifyCode,
		ConsumeBackup:      e.twoFactor.ConsumeBackupCode,
		SetSecret:          e.store.SetTwoFactorSecret,
		EnableTwoFactor:    e.store.EnableTwoFactor,
		DisableTwoFactor:   e.store.DisableTwoFactor,
		ReplaceBackupCodes: e.store.ReplaceBackupCodes,
		MetricInc:          e.flowMetricInc,
		EmitAudit:          e.emitAudit,
		Warn:               e.warn,
		Metrics: internalflows.TwoFactorMetrics{
			SetupStarted:      int(MetricTwoFactorSetupStarted),
			Enabled:           int(MetricTwoFactorEnabled),
			Disabled:          int(MetricTwoFactorDisabled),
			CodeRejected:      int(MetricTwoFactorCodeRejected),
			BackupRegenerated: int(MetricBackupCodesRegenerated),
		},
		Events: internalflows.TwoFactorEvents{
			SetupStarted:      auditEventTwoFactorSetupRequested,
			Enabled:           auditEventTwoFactorEnabled,
			Disabled:          auditEventTwoFactorDisabled,
			CodeRejected:      auditEventTwoFactorCodeRejected,
			BackupRegenerated: auditEventBackupCodesRegenerated,
		},
		Errors: internalflows.TwoFactorErrors{
			EngineNotReady:   ErrEngineNotReady,
			AccountNotFound:  ErrAccountNotFound,
			AlreadyEnabled:   ErrTwoFactorAlreadyEnabled,
			NotPending:       ErrTwoFactorNotPending,
			NotEnabled:       ErrTwoFactorNotEnabled,
			CodeInvalid:      ErrTwoFactorCodeInvalid,
			StoreUnavailable: ErrStoreUnavailable,
			RateLimited:      rateLimitError,
		},
	}
	if e.codeThrottle != nil {
		deps.CodeAllowed = e.codeThrottle.Check
		deps.RecordCodeFailure = e.codeThrottle.RecordFailure
		deps.ResetCodeFailures = e.codeThrottle.Reset
	}
	return deps
}
