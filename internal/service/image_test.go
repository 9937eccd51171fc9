package service

import (
	"context"
	"errors"
	"io"
	"regexp"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/storage"
)

func setupImageService(t *testing.T) (*imageService, *imageTable, *storage.LocalStore) {
	t.Helper()
	table := &imageTable{}
	store := newTestStore(t)
	svc := NewImageService(table.repo(), store, 5*1000*1000, zerolog.Nop()).(*imageService)
	return svc, table, store
}

// =============================================================================
// Upload Tests
// =============================================================================

func TestImageUpload(t *testing.T) {
	svc, table, store := setupImageService(t)

	image, err := svc.Upload(context.Background(), 7, pngUpload(`C:\fakepath\Holiday.PNG`), testBaseURL)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	if image.UploadedBy != 7 {
		t.Errorf("UploadedBy = %d, want 7", image.UploadedBy)
	}
	if image.FileName != "Holiday.PNG" {
		t.Errorf("FileName = %q, want Holiday.PNG", image.FileName)
	}
	if image.MimeType != "image/png" {
		t.Errorf("MimeType = %q, want image/png", image.MimeType)
	}
	if !regexp.MustCompile(`^images/\d{4}/\d{2}/[0-9a-f-]{36}\.png$`).MatchString(image.StorageKey) {
		t.Errorf("StorageKey = %q", image.StorageKey)
	}
	if image.FileURL != testBaseURL+"/uploads/"+image.StorageKey {
		t.Errorf("FileURL = %q", image.FileURL)
	}
	if len(table.rows) != 1 {
		t.Errorf("records = %d, want 1", len(table.rows))
	}
	if n := countFiles(t, store.Root()); n != 1 {
		t.Errorf("files = %d, want 1", n)
	}
}

func TestImageUpload_RejectsNonImage(t *testing.T) {
	svc, table, _ := setupImageService(t)

	body := "%PDF-1.4 not an image"
	_, err := svc.Upload(context.Background(), 1, Upload{FileName: "doc.png", Size: int64(len(body)), Body: strings.NewReader(body)}, testBaseURL)
	assertKind(t, err, apperror.KindBadRequest)
	if len(table.rows) != 0 {
		t.Error("no record should be created")
	}
}

func TestImageUpload_MissingFile(t *testing.T) {
	svc, _, _ := setupImageService(t)

	_, err := svc.Upload(context.Background(), 1, Upload{}, testBaseURL)
	assertKind(t, err, apperror.KindBadRequest)
}

func TestImageUpload_RecordFailureRemovesFile(t *testing.T) {
	svc, _, store := setupImageService(t)
	svc.images = &mockImageRepository{
		createFunc: func(context.Context, *models.Image) error { return errors.New("db down") },
	}

	_, err := svc.Upload(context.Background(), 1, pngUpload("a.png"), testBaseURL)
	assertKind(t, err, apperror.KindInternal)
	if n := countFiles(t, store.Root()); n != 0 {
		t.Errorf("orphaned files = %d, want 0", n)
	}
}

// =============================================================================
// List / Delete Tests
// =============================================================================

func TestImageListMine(t *testing.T) {
	svc, _, _ := setupImageService(t)
	ctx := context.Background()

	for _, owner := range []int64{1, 1, 2} {
		if _, err := svc.Upload(ctx, owner, pngUpload("a.png"), testBaseURL); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
	}

	mine, err := svc.ListMine(ctx, 1, testBaseURL)
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("len(mine) = %d, want 2", len(mine))
	}
	for _, img := range mine {
		if !strings.HasPrefix(img.FileURL, testBaseURL+"/uploads/images/") {
			t.Errorf("FileURL = %q", img.FileURL)
		}
	}

	none, err := svc.ListMine(ctx, 99, testBaseURL)
	if err != nil {
		t.Fatalf("ListMine() error = %v", err)
	}
	if none == nil || len(none) != 0 {
		t.Errorf("ListMine() for no images = %#v, want empty slice", none)
	}
}

func TestImageDeleteMine(t *testing.T) {
	svc, table, store := setupImageService(t)
	ctx := context.Background()

	deleted, err := svc.DeleteMine(ctx, 1)
	if err != nil || deleted != 0 {
		t.Fatalf("DeleteMine() with no images = %d, %v", deleted, err)
	}

	for _, owner := range []int64{1, 1, 2} {
		if _, err := svc.Upload(ctx, owner, pngUpload("a.png"), testBaseURL); err != nil {
			t.Fatalf("Upload() error = %v", err)
		}
	}

	deleted, err = svc.DeleteMine(ctx, 1)
	if err != nil {
		t.Fatalf("DeleteMine() error = %v", err)
	}
	if deleted != 2 {
		t.Errorf("deleted = %d, want 2", deleted)
	}
	if len(table.rows) != 1 {
		t.Errorf("remaining records = %d, want 1", len(table.rows))
	}
	if n := countFiles(t, store.Root()); n != 1 {
		t.Errorf("remaining files = %d, want 1", n)
	}
}

func TestImageDeleteOne_OwnerOnly(t *testing.T) {
	svc, table, _ := setupImageService(t)
	ctx := context.Background()

	image, err := svc.Upload(ctx, 1, pngUpload("a.png"), testBaseURL)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	err = svc.DeleteOne(ctx, 2, image.ID)
	assertKind(t, err, apperror.KindNotFound)
	if len(table.rows) != 1 {
		t.Fatal("another user's delete must not remove the image")
	}

	if err := svc.DeleteOne(ctx, 1, image.ID); err != nil {
		t.Fatalf("DeleteOne() error = %v", err)
	}
	if len(table.rows) != 0 {
		t.Error("image record should be removed")
	}
}

// =============================================================================
// Open Tests
// =============================================================================

func TestImageOpen(t *testing.T) {
	svc, _, store := setupImageService(t)
	ctx := context.Background()

	image, err := svc.Upload(ctx, 1, pngUpload("a.png"), testBaseURL)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	got, body, err := svc.Open(ctx, image.ID)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	data, _ := io.ReadAll(body)
	_ = body.Close()
	if !strings.HasPrefix(string(data), pngHeader) {
		t.Error("Open() should return the stored bytes")
	}
	if got.FileName != "a.png" {
		t.Errorf("FileName = %q", got.FileName)
	}

	_, _, err = svc.Open(ctx, 0)
	assertKind(t, err, apperror.KindNotFound)
	_, _, err = svc.Open(ctx, 404)
	assertKind(t, err, apperror.KindNotFound)

	if err := store.Delete(ctx, image.StorageKey); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	_, _, err = svc.Open(ctx, image.ID)
	assertKind(t, err, apperror.KindNotFound)
}
