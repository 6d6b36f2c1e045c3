package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/Skotchmaster/hospital_desk/internal/models"
)

func (r *GormRepo) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Where("username = ?", username).First(&user).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *GormRepo) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.First(&user, id).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (r *GormRepo) CreateUser(ctx context.Context, u *models.User) error {
	return translate(r.Pool.Do(ctx, func(tx *gorm.DB) error {
		return tx.Create(u).Error
	}))
}

// CreateUserIfNotExists reports whether a row was inserted.
func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) (bool, error) {
	var created bool
	err := r.Pool.Do(ctx, func(tx *gorm.DB) error {
		res := tx.Where("username = ?", u.Username).FirstOrCreate(u)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	return created, translate(err)
}
