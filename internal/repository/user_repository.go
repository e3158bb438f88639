package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"syllabussync/internal/model"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("create user failed: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by email failed: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*model.User, error) {
	var user model.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("query user by id failed: %w", err)
	}
	return &user, nil
}

// EnsureByEmail returns the user with the given email, creating it with
// an empty password hash when missing.
func (r *UserRepository) EnsureByEmail(ctx context.Context, email string) (*model.User, error) {
	user := model.User{Email: email}
	if err := r.db.WithContext(ctx).Where(model.User{Email: email}).FirstOrCreate(&user).Error; err != nil {
		return nil, fmt.Errorf("ensure user failed: %w", err)
	}
	return &user, nil
}
