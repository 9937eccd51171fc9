package repository

import (
	"context"
	"fmt"

	"github.com/userprod/account-service/internal/models"
	"gorm.io/gorm"
)

// ImageRepository defines the interface for image metadata operations.
type ImageRepository interface {
	Create(ctx context.Context, image *models.Image) error
	FindByID(ctx context.Context, id int64) (*models.Image, error)
	ListByOwner(ctx context.Context, ownerID int64) ([]models.Image, error)
	Delete(ctx context.Context, id int64) error
	DeleteByOwner(ctx context.Context, ownerID int64) (int64, error)
}

type imageRepository struct {
	db *gorm.DB
}

// NewImageRepository creates a new ImageRepository instance.
func NewImageRepository(db *gorm.DB) ImageRepository {
	return &imageRepository{db: db}
}

func (r *imageRepository) Create(ctx context.Context, image *models.Image) error {
	if err := r.db.WithContext(ctx).Create(image).Error; err != nil {
		return fmt.Errorf("failed to create image: %w", translate(err))
	}
	return nil
}

func (r *imageRepository) FindByID(ctx context.Context, id int64) (*models.Image, error) {
	var image models.Image
	if err := r.db.WithContext(ctx).First(&image, id).Error; err != nil {
		return nil, fmt.Errorf("failed to find image %d: %w", id, translate(err))
	}
	return &image, nil
}

func (r *imageRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Image, error) {
	var images []models.Image
	err := r.db.WithContext(ctx).Where("uploaded_by = ?", ownerID).Order("created_at DESC").Order("id DESC").Find(&images).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list images for user %d: %w", ownerID, err)
	}
	return images, nil
}

func (r *imageRepository) Delete(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Delete(&models.Image{}, id)
	if result.Error != nil {
		return fmt.Errorf("failed to delete image %d: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to delete image %d: %w", id, ErrNotFound)
	}
	return nil
}

func (r *imageRepository) DeleteByOwner(ctx context.Context, ownerID int64) (int64, error) {
	result := r.db.WithContext(ctx).Where("uploaded_by = ?", ownerID).Delete(&models.Image{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete images for user %d: %w", ownerID, result.Error)
	}
	return result.RowsAffected, nil
}
