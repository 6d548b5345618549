package repository

import (
	"context"

	app "photoalbum/src/app"

	"gorm.io/gorm"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) Create(ctx context.Context, user *app.User) error {
	return translate(r.db.WithContext(ctx).Create(user).Error, "user")
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*app.User, error) {
	var user app.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (*app.User, error) {
	var user app.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, translate(err, "user")
	}
	return &user, nil
}
