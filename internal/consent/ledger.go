// Package consent keeps the append-only GDPR and marketing consent ledger.
//
// Each decision is appended as a new domain.ConsentLog entry; entries are
// never rewritten. GDPR and MARKETING decisions are also mirrored onto the
// account flags that the login flow reads.
package consent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/google/uuid"
)

var (
	// ErrUnknownType is returned for a consent type outside the closed set.
	ErrUnknownType = errors.New("unknown consent type")
	// ErrLedgerUnavailable wraps store failures.
	ErrLedgerUnavailable = errors.New("consent ledger unavailable")
)

// Source identifies where a decision came from.
type Source struct {
	IP        string
	UserAgent string
}

// Ledger appends consent decisions and answers questions about them.
type Ledger struct {
	logs     domain.ConsentStore
	accounts domain.AccountStore
	now      func() time.Time
}

// NewLedger builds a Ledger. accounts may be nil, in which case nothing is
// mirrored onto account flags.
func NewLedger(logs domain.ConsentStore, accounts domain.AccountStore, now func() time.Time) *Ledger {
	if now == nil {
		now = time.Now
	}
	return &Ledger{logs: logs, accounts: accounts, now: now}
}

// Record appends one decision for an existing account. An unknown account
// yields domain.ErrNotFound and writes nothing. Once the account is found the
// ledger entry is written before the flag update, so a failed update still
// leaves an auditable trail.
func (l *Ledger) Record(ctx context.Context, accountID string, kind domain.ConsentType, granted bool, src Source) (domain.ConsentLog, error) {
	if !kind.Valid() {
		return domain.ConsentLog{}, fmt.Errorf("%w: %q", ErrUnknownType, kind)
	}
	if l.accounts != nil {
		if _, err := l.accounts.AccountByID(ctx, accountID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return domain.ConsentLog{}, err
			}
			return domain.ConsentLog{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}

	entry := domain.ConsentLog{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Type:      kind,
		Granted:   granted,
		IP:        src.IP,
		UserAgent: src.UserAgent,
		CreatedAt: l.now().UTC(),
	}
	if err := l.logs.AppendConsent(ctx, entry); err != nil {
		return domain.ConsentLog{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if l.accounts != nil && (kind == domain.ConsentGDPR || kind == domain.ConsentMarketing) {
		if err := l.accounts.UpdateConsent(ctx, accountID, kind, granted, entry.CreatedAt); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return entry, err
			}
			return entry, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
	}
	return entry, nil
}

// History returns every entry for the account, oldest first.
func (l *Ledger) History(ctx context.Context, accountID string) ([]domain.ConsentLog, error) {
	entries, err := l.logs.ConsentHistory(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}
	return entries, nil
}

// Current folds the history into the latest decision per type. Types with no
// entry are absent from the map.
func (l *Ledger) Current(ctx context.Context, accountID string) (map[domain.ConsentType]bool, error) {
	entries, err := l.History(ctx, accountID)
	if err != nil {
		return nil, err
	}
	out := make(map[domain.ConsentType]bool, 4)
	for _, e := range entries {
		out[e.Type] = e.Granted
	}
	return out, nil
}
