package sqlstore

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) error {
	if account == nil || account.ID == "" {
		return errors.New("sqlstore: account id is required")
	}
	row := accountToRow(account)
	if err := s.db.WithContext(ctx).Create(row).Error; err != nil {
		// Connections opened outside Open may not translate driver errors.
		var existing int64
		if countErr := s.db.WithContext(ctx).Model(&accountRow{}).
			Where("email = ? OR id = ?", row.Email, row.ID).
			Count(&existing).Error; countErr == nil && existing > 0 {
			return domain.ErrConflict
		}
		return unavailable(err)
	}
	account.Email = row.Email
	return nil
}

func (s *Store) AccountByID(ctx context.Context, id string) (*domain.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, unavailable(err)
	}
	return row.toDomain(), nil
}

func (s *Store) AccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	var row accountRow
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&row).Error; err != nil {
		return nil, unavailable(err)
	}
	return row.toDomain(), nil
}

// IncrementFailedLogins runs three conditional updates in one transaction.
// Each statement is a single-row write, so the counter never loses an
// increment; on postgres the first write also holds the row lock until commit.
func (s *Store) IncrementFailedLogins(ctx context.Context, id string, now time.Time, threshold int, lockUntil time.Time) (domain.LockState, error) {
	now = now.UTC()
	lockUntil = lockUntil.UTC()

	var state domain.LockState
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row accountRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}

		if err := tx.Model(&accountRow{}).
			Where("id = ? AND locked_until IS NOT NULL AND locked_until <= ?", id, now).
			Updates(map[string]any{"failed_login_attempts": 0, "locked_until": nil}).Error; err != nil {
			return err
		}

		if err := tx.Model(&accountRow{}).Where("id = ?", id).
			Updates(map[string]any{
				"failed_login_attempts": gorm.Expr("failed_login_attempts + 1"),
				"updated_at":            now,
			}).Error; err != nil {
			return err
		}

		if threshold > 0 {
			if err := tx.Model(&accountRow{}).
				Where("id = ? AND failed_login_attempts >= ? AND locked_until IS NULL", id, threshold).
				Update("locked_until", lockUntil).Error; err != nil {
				return err
			}
		}

		if err := tx.Select("failed_login_attempts", "locked_until").Where("id = ?", id).First(&row).Error; err != nil {
			return err
		}
		state = domain.LockState{FailedAttempts: row.FailedLoginAttempts, LockedUntil: utc(row.LockedUntil)}
		return nil
	})
	if err != nil {
		return domain.LockState{}, unavailable(err)
	}
	return state, nil
}

func (s *Store) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	return s.updateAccount(ctx, id, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
		"last_login_at":         at.UTC(),
		"updated_at":            at.UTC(),
	})
}

func (s *Store) UnlockAccount(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id, map[string]any{
		"failed_login_attempts": 0,
		"locked_until":          nil,
	})
}

// MarkEmailVerified keeps the first verification timestamp.
func (s *Store) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return s.updateAccount(ctx, id, map[string]any{
		"email_verified_at": gorm.Expr("COALESCE(email_verified_at, ?)", at.UTC()),
	})
}

func (s *Store) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	return s.updateAccount(ctx, id, map[string]any{"password_hash": hash})
}

func (s *Store) SetTwoFactorSecret(ctx context.Context, id, secret string) error {
	return s.updateAccount(ctx, id, map[string]any{
		"two_factor_secret":  secret,
		"two_factor_enabled": false,
	})
}

func (s *Store) EnableTwoFactor(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id, map[string]any{"two_factor_enabled": true})
}

func (s *Store) DisableTwoFactor(ctx context.Context, id string) error {
	return s.updateAccount(ctx, id, map[string]any{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	})
}

// UpdateConsent mirrors GDPR and MARKETING onto the account row. Other
// consent types live only in the ledger.
func (s *Store) UpdateConsent(ctx context.Context, id string, consent domain.ConsentType, granted bool, at time.Time) error {
	var fields map[string]any
	switch consent {
	case domain.ConsentGDPR:
		fields = map[string]any{"gdpr_consent": granted, "gdpr_consent_at": at.UTC()}
	case domain.ConsentMarketing:
		fields = map[string]any{"marketing_consent": granted}
	default:
		if _, err := s.AccountByID(ctx, id); err != nil {
			return err
		}
		return nil
	}
	fields["updated_at"] = at.UTC()
	return s.updateAccount(ctx, id, fields)
}

// RequestDeletion is one-way; repeated calls keep the first timestamp.
func (s *Store) RequestDeletion(ctx context.Context, id string, at time.Time) error {
	return s.updateAccount(ctx, id, map[string]any{
		"deletion_requested":    true,
		"deletion_requested_at": gorm.Expr("COALESCE(deletion_requested_at, ?)", at.UTC()),
	})
}

func (s *Store) updateAccount(ctx context.Context, id string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&accountRow{}).Where("id = ?", id).Updates(fields)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
