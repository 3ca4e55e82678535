package repository

import (
	"errors"

	authdomain "fcm-push-backend/internal/auth/domain"

	"gorm.io/gorm"
)

// UserRepository defines the user lookups the push API needs.
type UserRepository interface {
	FindByID(id string) (*authdomain.User, error)
	Exists(id string) (bool, error)
}

// userRepository implements UserRepository interface
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new instance of userRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db: db,
	}
}

func (r *userRepository) FindByID(id string) (*authdomain.User, error) {
	var user authdomain.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) Exists(id string) (bool, error) {
	var count int64
	err := r.db.Model(&authdomain.User{}).Where("id = ?", id).Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
