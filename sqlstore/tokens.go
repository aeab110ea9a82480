package sqlstore

import (
	"context"
	"errors"

	"github.com/MrEthical07/blogauth/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func tokenToRow(rec domain.TokenRecord) *tokenRow {
	return &tokenRow{
		Kind:      string(rec.Kind),
		Hash:      rec.Hash,
		Email:     normalizeEmail(rec.Email),
		ExpiresAt: rec.ExpiresAt.UTC(),
		CreatedAt: rec.CreatedAt.UTC(),
	}
}

func (s *Store) SaveToken(ctx context.Context, rec domain.TokenRecord) error {
	if rec.Hash == "" {
		return errors.New("sqlstore: token hash is required")
	}
	return unavailable(s.db.WithContext(ctx).Create(tokenToRow(rec)).Error)
}

// ReplaceTokensForEmail locks the owning account row, when there is one, so
// concurrent replacements for the same address serialize.
func (s *Store) ReplaceTokensForEmail(ctx context.Context, rec domain.TokenRecord) error {
	if rec.Hash == "" {
		return errors.New("sqlstore: token hash is required")
	}
	row := tokenToRow(rec)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var owner []accountRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").Where("email = ?", row.Email).Limit(1).Find(&owner).Error; err != nil {
			return err
		}
		if err := tx.Where("kind = ? AND email = ?", row.Kind, row.Email).Delete(&tokenRow{}).Error; err != nil {
			return err
		}
		return tx.Create(row).Error
	})
	return unavailable(err)
}

func (s *Store) FindToken(ctx context.Context, kind domain.TokenKind, hash string) (*domain.TokenRecord, error) {
	var row tokenRow
	if err := s.db.WithContext(ctx).Where("kind = ? AND hash = ?", string(kind), hash).First(&row).Error; err != nil {
		return nil, unavailable(err)
	}
	return &domain.TokenRecord{
		Kind:      domain.TokenKind(row.Kind),
		Hash:      row.Hash,
		Email:     row.Email,
		ExpiresAt: row.ExpiresAt.UTC(),
		CreatedAt: row.CreatedAt.UTC(),
	}, nil
}

func (s *Store) DeleteToken(ctx context.Context, kind domain.TokenKind, hash string) (bool, error) {
	res := s.db.WithContext(ctx).Where("kind = ? AND hash = ?", string(kind), hash).Delete(&tokenRow{})
	if res.Error != nil {
		return false, unavailable(res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *Store) DeleteTokensForEmail(ctx context.Context, kind domain.TokenKind, email string) (int, error) {
	res := s.db.WithContext(ctx).Where("kind = ? AND email = ?", string(kind), normalizeEmail(email)).Delete(&tokenRow{})
	if res.Error != nil {
		return 0, unavailable(res.Error)
	}
	return int(res.RowsAffected), nil
}
