package blogauth

import (
	"context"
	"strings"
)

// Account returns the account without credential material.
func (e *Engine) Account(ctx context.Context, accountID string) (AccountView, error) {
	if !e.ready() {
		return AccountView{}, ErrEngineNotReady
	}
	account, err := e.store.AccountByID(ctx, strings.TrimSpace(accountID))
	if err != nil {
		return AccountView{}, mapAccountError(err)
	}
	codes := 0
	if account.TwoFactorEnabled {
		if codes, err = e.store.CountBackupCodes(ctx, account.ID); err != nil {
			return AccountView{}, storeUnavailable(err)
		}
	}
	return viewOf(account, codes), nil
}

// UnlockAccount clears the failure counter and any lock. It does not touch
// the per-IP rate-limit windows.
func (e *Engine) UnlockAccount(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	if err := e.lockPolicy.Unlock(ctx, strings.TrimSpace(accountID)); err != nil {
		return mapAccountError(err)
	}
	e.metricInc(MetricAccountUnlocked)
	e.emitAudit(ctx, auditEventAccountUnlocked, true, accountID, "", "", nil, nil)
	return nil
}

// RequestDeletion flags the account for GDPR erasure. From then on it
// cannot log in, reset its password, or be re-registered. The flag is
// one-way; erasure itself happens outside the engine.
func (e *Engine) RequestDeletion(ctx context.Context, accountID string) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	accountID = strings.TrimSpace(accountID)
	if err := e.store.RequestDeletion(ctx, accountID, e.now().UTC()); err != nil {
		return mapAccountError(err)
	}
	e.metricInc(MetricDeletionRequested)
	e.emitAudit(ctx, auditEventAccountDeletionRequested, true, accountID, "", "", nil, nil)
	return nil
}

// ExportAccountData assembles the GDPR access-request payload: the account
// view and the full consent history.
func (e *Engine) ExportAccountData(ctx context.Context, accountID string) (DataExport, error) {
	view, err := e.Account(ctx, accountID)
	if err != nil {
		return DataExport{}, err
	}
	consents, err := e.consentEntries(ctx, view.ID)
	if err != nil {
		return DataExport{}, err
	}

	out := DataExport{
		Account:    view,
		Consents:   consents,
		ExportedAt: e.now().UTC(),
	}
	e.emitAudit(ctx, auditEventAccountDataExported, true, view.ID, view.Email, "", nil, nil)
	return out, nil
}
