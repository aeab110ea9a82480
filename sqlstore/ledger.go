package sqlstore

import (
	"context"
	"slices"
	"time"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (s *Store) ReplaceBackupCodes(ctx context.Context, accountID string, hashes []string) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ?", accountID).Delete(&backupCodeRow{}).Error; err != nil {
			return err
		}
		if len(hashes) == 0 {
			return nil
		}
		rows := make([]backupCodeRow, 0, len(hashes))
		seen := make(map[string]struct{}, len(hashes))
		for _, h := range hashes {
			if _, dup := seen[h]; dup {
				continue
			}
			seen[h] = struct{}{}
			rows = append(rows, backupCodeRow{AccountID: accountID, Hash: h})
		}
		return tx.Create(&rows).Error
	})
	return unavailable(err)
}

// ConsumeBackupCode deletes the row; only the caller whose DELETE removed it
// sees true.
func (s *Store) ConsumeBackupCode(ctx context.Context, accountID, hash string) (bool, error) {
	res := s.db.WithContext(ctx).Where("account_id = ? AND hash = ?", accountID, hash).Delete(&backupCodeRow{})
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) CountBackupCodes(ctx context.Context, accountID string) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&backupCodeRow{}).Where("account_id = ?", accountID).Count(&n).Error; err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *Store) AppendAttempt(ctx context.Context, a domain.LoginAttempt) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return unavailable(s.db.WithContext(ctx).Create(&attemptRow{
		ID:        a.ID,
		Email:     normalizeEmail(a.Email),
		IP:        a.IP,
		UserAgent: a.UserAgent,
		Action:    string(a.Action),
		Success:   a.Success,
		Reason:    a.Reason,
		CreatedAt: a.CreatedAt.UTC(),
	}).Error)
}

func (s *Store) failures(ctx context.Context, ip string, action domain.ActionClass, since time.Time) *gorm.DB {
	return s.db.WithContext(ctx).Model(&attemptRow{}).
		Where("action = ? AND ip = ? AND success = ? AND created_at >= ?", string(action), ip, false, since.UTC())
}

func (s *Store) CountFailures(ctx context.Context, ip string, action domain.ActionClass, since time.Time) (int, error) {
	var n int64
	if err := s.failures(ctx, ip, action, since).Count(&n).Error; err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

func (s *Store) NthFailureAt(ctx context.Context, ip string, action domain.ActionClass, since time.Time, n int) (time.Time, error) {
	var rows []attemptRow
	if err := s.failures(ctx, ip, action, since).
		Order("created_at ASC").Order("seq ASC").
		Offset(n).Limit(1).Find(&rows).Error; err != nil {
		return time.Time{}, unavailable(err)
	}
	if len(rows) == 0 {
		return time.Time{}, domain.ErrNotFound
	}
	return rows[0].CreatedAt.UTC(), nil
}

// RecentAttempts returns up to limit of the newest attempts for email, oldest first.
func (s *Store) RecentAttempts(ctx context.Context, email string, limit int) ([]domain.LoginAttempt, error) {
	if limit <= 0 || limit > recentAttemptsCap {
		limit = recentAttemptsCap
	}
	var rows []attemptRow
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).
		Order("seq DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, unavailable(err)
	}
	slices.Reverse(rows)

	out := make([]domain.LoginAttempt, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.LoginAttempt{
			ID:        r.ID,
			Email:     r.Email,
			IP:        r.IP,
			UserAgent: r.UserAgent,
			Action:    domain.ActionClass(r.Action),
			Success:   r.Success,
			Reason:    r.Reason,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return out, nil
}

func (s *Store) AppendConsent(ctx context.Context, entry domain.ConsentLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	return unavailable(s.db.WithContext(ctx).Create(&consentRow{
		ID:        entry.ID,
		AccountID: entry.AccountID,
		Type:      string(entry.Type),
		Granted:   entry.Granted,
		IP:        entry.IP,
		UserAgent: entry.UserAgent,
		CreatedAt: entry.CreatedAt.UTC(),
	}).Error)
}

func (s *Store) ConsentHistory(ctx context.Context, accountID string) ([]domain.ConsentLog, error) {
	var rows []consentRow
	if err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("seq ASC").Find(&rows).Error; err != nil {
		return nil, unavailable(err)
	}
	out := make([]domain.ConsentLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, domain.ConsentLog{
			ID:        r.ID,
			AccountID: r.AccountID,
			Type:      domain.ConsentType(r.Type),
			Granted:   r.Granted,
			IP:        r.IP,
			UserAgent: r.UserAgent,
			CreatedAt: r.CreatedAt.UTC(),
		})
	}
	return out, nil
}
