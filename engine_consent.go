package blogauth

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/MrEthical07/blogauth/internal/consent"
)

// RecordConsent appends a consent decision to the ledger. GDPR and MARKETING
// decisions are mirrored onto the account flags; login checks the GDPR flag.
func (e *Engine) RecordConsent(ctx context.Context, accountID string, kind domain.ConsentType, granted bool) error {
	if !e.ready() {
		return ErrEngineNotReady
	}
	accountID = strings.TrimSpace(accountID)
	if !kind.Valid() {
		return ErrInvalidConsentType
	}
	if _, err := e.store.AccountByID(ctx, accountID); err != nil {
		return mapAccountError(err)
	}

	entry, err := e.consent.Record(ctx, accountID, kind, granted, consentSource(ctx))
	if err != nil {
		if errors.Is(err, consent.ErrUnknownType) {
			return ErrInvalidConsentType
		}
		return mapAccountError(err)
	}

	e.metricInc(MetricConsentRecorded)
	e.emitAudit(ctx, auditEventConsentRecorded, true, accountID, "", "", nil, func() map[string]string {
		granted := "false"
		if entry.Granted {
			granted = "true"
		}
		return map[string]string{"type": string(entry.Type), "granted": granted}
	})
	return nil
}

// ConsentHistory returns every consent decision of the account, oldest first.
func (e *Engine) ConsentHistory(ctx context.Context, accountID string) ([]ConsentEntry, error) {
	if !e.ready() {
		return nil, ErrEngineNotReady
	}
	accountID = strings.TrimSpace(accountID)
	if _, err := e.store.AccountByID(ctx, accountID); err != nil {
		return nil, mapAccountError(err)
	}
	return e.consentEntries(ctx, accountID)
}

func (e *Engine) consentEntries(ctx context.Context, accountID string) ([]ConsentEntry, error) {
	history, err := e.consent.History(ctx, accountID)
	if err != nil {
		return nil, storeUnavailable(err)
	}
	out := make([]ConsentEntry, 0, len(history))
	for _, h := range history {
		out = append(out, ConsentEntry{
			Type:      h.Type,
			Granted:   h.Granted,
			IP:        h.IP,
			UserAgent: h.UserAgent,
			CreatedAt: h.CreatedAt,
		})
	}
	return out, nil
}
