package service

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/repository"
	"github.com/userprod/account-service/internal/storage"
)

const imagePrefix = "images"

const msgImageNotFound = "image not found"

// ImageService manages generic image uploads.
type ImageService interface {
	Upload(ctx context.Context, ownerID int64, upload Upload, baseURL string) (*models.Image, error)
	ListMine(ctx context.Context, ownerID int64, baseURL string) ([]models.Image, error)
	// DeleteMine removes every image owned by ownerID and reports how many
	// records were deleted.
	DeleteMine(ctx context.Context, ownerID int64) (int64, error)
	DeleteOne(ctx context.Context, ownerID, imageID int64) error
	// Open returns the image record and its content. The caller closes the
	// reader.
	Open(ctx context.Context, imageID int64) (*models.Image, io.ReadCloser, error)
}

type imageService struct {
	images   repository.ImageRepository
	store    storage.Store
	maxBytes int64
	log      zerolog.Logger
	now      func() time.Time
}

// NewImageService creates a new ImageService instance.
func NewImageService(images repository.ImageRepository, store storage.Store, maxBytes int64, log zerolog.Logger) ImageService {
	return &imageService{
		images:   images,
		store:    store,
		maxBytes: maxBytes,
		log:      log.With().Str("component", "image").Logger(),
		now:      time.Now,
	}
}

func (s *imageService) Upload(ctx context.Context, ownerID int64, upload Upload, baseURL string) (*models.Image, error) {
	mimeType, body, err := checkedImage(upload, s.maxBytes)
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(imagePrefix, upload.FileName, s.now())
	if err := s.store.Save(ctx, key, body, upload.Size, mimeType); err != nil {
		return nil, apperror.Internal("failed to store image", err)
	}

	image := &models.Image{
		FileName:   displayName(upload.FileName, key),
		StorageKey: key,
		MimeType:   mimeType,
		Size:       upload.Size,
		UploadedBy: ownerID,
	}
	if err := s.images.Create(ctx, image); err != nil {
		if delErr := s.store.Delete(ctx, key); delErr != nil {
			s.log.Warn().Err(delErr).Str("op", "upload").Str("key", key).Msg("failed to remove orphaned file")
		}
		return nil, apperror.Internal("failed to save image record", err)
	}

	image.FileURL = s.store.URL(baseURL, key)
	s.log.Info().Str("op", "upload").Int64("image_id", image.ID).Int64("owner_id", ownerID).Msg("image uploaded")
	return image, nil
}

func (s *imageService) ListMine(ctx context.Context, ownerID int64, baseURL string) ([]models.Image, error) {
	images, err := s.images.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.Internal("failed to list images", err)
	}
	if images == nil {
		images = []models.Image{}
	}
	for i := range images {
		images[i].FileURL = s.store.URL(baseURL, images[i].StorageKey)
	}
	return images, nil
}

func (s *imageService) DeleteMine(ctx context.Context, ownerID int64) (int64, error) {
	images, err := s.images.ListByOwner(ctx, ownerID)
	if err != nil {
		return 0, apperror.Internal("failed to list images", err)
	}
	if len(images) == 0 {
		return 0, nil
	}

	for _, img := range images {
		if err := s.store.Delete(ctx, img.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
			s.log.Warn().Err(err).Str("op", "delete_mine").Str("key", img.StorageKey).Msg("failed to delete image file")
		}
	}

	deleted, err := s.images.DeleteByOwner(ctx, ownerID)
	if err != nil {
		return 0, apperror.Internal("failed to delete images", err)
	}
	return deleted, nil
}

func (s *imageService) DeleteOne(ctx context.Context, ownerID, imageID int64) error {
	image, err := s.find(ctx, imageID)
	if err != nil {
		return err
	}
	// Other users' images are reported as absent
	if image.UploadedBy != ownerID {
		return apperror.NotFound(msgImageNotFound)
	}

	if err := s.images.Delete(ctx, image.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound(msgImageNotFound)
		}
		return apperror.Internal("failed to delete image", err)
	}
	if err := s.store.Delete(ctx, image.StorageKey); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn().Err(err).Str("op", "delete_one").Str("key", image.StorageKey).Msg("failed to delete image file")
	}
	return nil
}

func (s *imageService) Open(ctx context.Context, imageID int64) (*models.Image, io.ReadCloser, error) {
	image, err := s.find(ctx, imageID)
	if err != nil {
		return nil, nil, err
	}

	body, err := s.store.Open(ctx, image.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, apperror.NotFound("image file not found")
		}
		return nil, nil, apperror.Internal("failed to open image", err)
	}
	return image, body, nil
}

func (s *imageService) find(ctx context.Context, imageID int64) (*models.Image, error) {
	if imageID <= 0 {
		return nil, apperror.NotFound(msgImageNotFound)
	}
	image, err := s.images.FindByID(ctx, imageID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound(msgImageNotFound)
		}
		return nil, apperror.Internal("failed to load image", err)
	}
	return image, nil
}

// displayName returns the base name of a client file name, falling back to
// the storage key's base name.
func displayName(fileName, key string) string {
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return path.Base(key)
	}
	return name
}
