// Package repository provides data access layer for the account service.
package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/userprod/account-service/internal/models"
	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a write violates a unique constraint.
	ErrDuplicate = errors.New("duplicate record")
)

// identityColumns are the only columns loaded for authenticated requests.
var identityColumns = []string{"id", "username", "email", "role", "profile_picture", "created_at", "updated_at"}

// ListFilter selects a page of users.
type ListFilter struct {
	Search string
	Offset int
	Limit  int
}

// UserRepository defines the interface for user data operations.
type UserRepository interface {
	FindByID(ctx context.Context, id int64) (*models.User, error)
	FindIdentityByID(ctx context.Context, id int64) (*models.Identity, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error)
	FindByResetToken(ctx context.Context, hash string, now time.Time) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	// Update writes every column of user except the refresh token, which
	// only SetRefreshToken changes.
	Update(ctx context.Context, user *models.User) error
	SetRefreshToken(ctx context.Context, id int64, token *string) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, filter ListFilter) ([]models.User, int64, error)
	EachBatch(ctx context.Context, size int, fn func(batch []models.User) error) error
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new UserRepository instance.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).First(&user, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by id %d: %w", id, translate(err))
	}
	return &user, nil
}

func (r *userRepository) FindIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	var identity models.Identity
	err := r.db.WithContext(ctx).Select(identityColumns).Where("id = ?", id).Take(&identity).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find identity by id %d: %w", id, translate(err))
	}
	return &identity, nil
}

func (r *userRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email %s: %w", email, translate(err))
	}
	return &user, nil
}

func (r *userRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).Where("email = ? OR username = ?", email, username).First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email %s or username %s: %w", email, username, translate(err))
	}
	return &user, nil
}

func (r *userRepository) FindByResetToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Where("reset_token_hash = ? AND reset_token_expiry > ?", hash, now).
		First(&user).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find user by reset token: %w", translate(err))
	}
	return &user, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("failed to create user: %w", translate(err))
	}
	return nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	err := r.db.WithContext(ctx).Model(user).
		Select("*").Omit("refresh_token", "created_at").
		Updates(user).Error
	if err != nil {
		return fmt.Errorf("failed to update user id %d: %w", user.ID, translate(err))
	}
	return nil
}

func (r *userRepository) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("refresh_token", token).Error
	if err != nil {
		return fmt.Errorf("failed to set refresh token for user %d: %w", id, translate(err))
	}
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.User{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete user %d: %w", id, translate(result.Error))
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete user %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *userRepository) List(ctx context.Context, filter ListFilter) ([]models.User, int64, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if search := strings.TrimSpace(filter.Search); search != "" {
		query = query.Where("LOWER(email) LIKE ? ESCAPE '!'", "%"+escapeLike(strings.ToLower(search))+"%")
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count users: %w", err)
	}

	var users []models.User
	err := query.Order("created_at DESC").Order("id DESC").
		Offset(filter.Offset).Limit(filter.Limit).
		Find(&users).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list users: %w", err)
	}

	return users, total, nil
}

func (r *userRepository) EachBatch(ctx context.Context, size int, fn func(batch []models.User) error) error {
	var batch []models.User
	result := r.db.WithContext(ctx).FindInBatches(&batch, size, func(tx *gorm.DB, _ int) error {
		return fn(batch)
	})
	if result.Error != nil {
		return fmt.Errorf("failed to iterate users: %w", result.Error)
	}
	return nil
}

func escapeLike(s string) string {
	return strings.NewReplacer("!", "!!", "%", "!%", "_", "!_").Replace(s)
}

// translate maps gorm sentinel errors onto repository errors.
func translate(err error) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return err
	}
}
