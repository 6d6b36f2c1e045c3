package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

// RevokeToken puts jti on the denylist. Revoking twice is not an error.
func (r *GormRepo) RevokeToken(ctx context.Context, jti string, userID uint, expiresAt time.Time) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "jti"}},
			DoNothing: true,
		}).Create(&models.RevokedToken{JTI: jti, UserID: userID, ExpiresAt: expiresAt}).Error
	}))
}

func (r *GormRepo) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.RevokedToken{}).Where("jti = ?", jti).Count(&count).Error
	})
	return count > 0, translate(err)
}

// PurgeExpiredTokens drops denylist rows that can no longer match a valid token.
func (r *GormRepo) PurgeExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Where("expires_at < ?", now).Delete(&models.RevokedToken{})
		n = res.RowsAffected
		return res.Error
	})
	return n, translate(err)
}
