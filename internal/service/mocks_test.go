package service

import (
	"context"
	"errors"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/mailer"
	"github.com/userprod/account-service/internal/metrics"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/repository"
	"github.com/userprod/account-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

// pngHeader is enough for content sniffing to report image/png.
const pngHeader = "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"

// =============================================================================
// Mock UserRepository
// =============================================================================

type mockUserRepository struct {
	findByIDFunc              func(ctx context.Context, id int64) (*models.User, error)
	findIdentityByIDFunc      func(ctx context.Context, id int64) (*models.Identity, error)
	findByEmailFunc           func(ctx context.Context, email string) (*models.User, error)
	findByEmailOrUsernameFunc func(ctx context.Context, email, username string) (*models.User, error)
	findByResetTokenFunc      func(ctx context.Context, hash string, now time.Time) (*models.User, error)
	createFunc                func(ctx context.Context, user *models.User) error
	updateFunc                func(ctx context.Context, user *models.User) error
	setRefreshTokenFunc       func(ctx context.Context, id int64, token *string) error
	deleteFunc                func(ctx context.Context, id int64) error
	listFunc                  func(ctx context.Context, filter repository.ListFilter) ([]models.User, int64, error)
	eachBatchFunc             func(ctx context.Context, size int, fn func(batch []models.User) error) error
}

var errNotImplemented = errors.New("not implemented")

func (m *mockUserRepository) FindByID(ctx context.Context, id int64) (*models.User, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockUserRepository) FindIdentityByID(ctx context.Context, id int64) (*models.Identity, error) {
	if m.findIdentityByIDFunc != nil {
		return m.findIdentityByIDFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockUserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	if m.findByEmailFunc != nil {
		return m.findByEmailFunc(ctx, email)
	}
	return nil, errNotImplemented
}

func (m *mockUserRepository) FindByEmailOrUsername(ctx context.Context, email, username string) (*models.User, error) {
	if m.findByEmailOrUsernameFunc != nil {
		return m.findByEmailOrUsernameFunc(ctx, email, username)
	}
	return nil, errNotImplemented
}

func (m *mockUserRepository) FindByResetToken(ctx context.Context, hash string, now time.Time) (*models.User, error) {
	if m.findByResetTokenFunc != nil {
		return m.findByResetTokenFunc(ctx, hash, now)
	}
	return nil, errNotImplemented
}

func (m *mockUserRepository) Create(ctx context.Context, user *models.User) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, user)
	}
	return errNotImplemented
}

func (m *mockUserRepository) Update(ctx context.Context, user *models.User) error {
	if m.updateFunc != nil {
		return m.updateFunc(ctx, user)
	}
	return errNotImplemented
}

func (m *mockUserRepository) SetRefreshToken(ctx context.Context, id int64, token *string) error {
	if m.setRefreshTokenFunc != nil {
		return m.setRefreshTokenFunc(ctx, id, token)
	}
	return errNotImplemented
}

func (m *mockUserRepository) Delete(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return errNotImplemented
}

func (m *mockUserRepository) List(ctx context.Context, filter repository.ListFilter) ([]models.User, int64, error) {
	if m.listFunc != nil {
		return m.listFunc(ctx, filter)
	}
	return nil, 0, errNotImplemented
}

func (m *mockUserRepository) EachBatch(ctx context.Context, size int, fn func(batch []models.User) error) error {
	if m.eachBatchFunc != nil {
		return m.eachBatchFunc(ctx, size, fn)
	}
	return errNotImplemented
}

// userTable backs a mockUserRepository with a map so multi-step flows can
// be exercised end to end.
type userTable struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.User
}

func newUserTable() *userTable {
	return &userTable{nextID: 1, rows: map[int64]models.User{}}
}

func (t *userTable) get(id int64) (models.User, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	u, ok := t.rows[id]
	return u, ok
}

func (t *userTable) insert(u models.User) models.User {
	t.mu.Lock()
	defer t.mu.Unlock()
	u.ID = t.nextID
	t.nextID++
	t.rows[u.ID] = u
	return u
}

func (t *userTable) repo() *mockUserRepository {
	find := func(match func(models.User) bool) (*models.User, error) {
		t.mu.Lock()
		defer t.mu.Unlock()
		ids := make([]int64, 0, len(t.rows))
		for id := range t.rows {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if u := t.rows[id]; match(u) {
				return &u, nil
			}
		}
		return nil, repository.ErrNotFound
	}
	conflicts := func(u *models.User) bool {
		for id, other := range t.rows {
			if id != u.ID && (other.Email == u.Email || other.Username == u.Username) {
				return true
			}
		}
		return false
	}

	return &mockUserRepository{
		findByIDFunc: func(_ context.Context, id int64) (*models.User, error) {
			return find(func(u models.User) bool { return u.ID == id })
		},
		findByEmailFunc: func(_ context.Context, email string) (*models.User, error) {
			return find(func(u models.User) bool { return u.Email == email })
		},
		findByEmailOrUsernameFunc: func(_ context.Context, email, username string) (*models.User, error) {
			return find(func(u models.User) bool { return u.Email == email || u.Username == username })
		},
		findByResetTokenFunc: func(_ context.Context, hash string, now time.Time) (*models.User, error) {
			return find(func(u models.User) bool {
				return u.ResetTokenHash != nil && *u.ResetTokenHash == hash &&
					u.ResetTokenExpiry != nil && u.ResetTokenExpiry.After(now)
			})
		},
		createFunc: func(_ context.Context, user *models.User) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			if conflicts(user) {
				return repository.ErrDuplicate
			}
			user.ID = t.nextID
			t.nextID++
			user.CreatedAt = time.Now()
			user.UpdatedAt = user.CreatedAt
			t.rows[user.ID] = *user
			return nil
		},
		updateFunc: func(_ context.Context, user *models.User) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			existing, ok := t.rows[user.ID]
			if !ok {
				return repository.ErrNotFound
			}
			if conflicts(user) {
				return repository.ErrDuplicate
			}
			user.UpdatedAt = time.Now()
			row := *user
			row.RefreshToken = existing.RefreshToken
			t.rows[user.ID] = row
			return nil
		},
		setRefreshTokenFunc: func(_ context.Context, id int64, token *string) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			u, ok := t.rows[id]
			if !ok {
				return nil
			}
			u.RefreshToken = token
			t.rows[id] = u
			return nil
		},
		deleteFunc: func(_ context.Context, id int64) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.rows[id]; !ok {
				return repository.ErrNotFound
			}
			delete(t.rows, id)
			return nil
		},
		eachBatchFunc: func(_ context.Context, size int, fn func(batch []models.User) error) error {
			t.mu.Lock()
			ids := make([]int64, 0, len(t.rows))
			for id := range t.rows {
				ids = append(ids, id)
			}
			sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
			all := make([]models.User, 0, len(ids))
			for _, id := range ids {
				all = append(all, t.rows[id])
			}
			t.mu.Unlock()

			for start := 0; start < len(all); start += size {
				end := min(start+size, len(all))
				if err := fn(all[start:end]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// =============================================================================
// Mock ImageRepository
// =============================================================================

type mockImageRepository struct {
	createFunc        func(ctx context.Context, image *models.Image) error
	findByIDFunc      func(ctx context.Context, id int64) (*models.Image, error)
	listByOwnerFunc   func(ctx context.Context, ownerID int64) ([]models.Image, error)
	deleteFunc        func(ctx context.Context, id int64) error
	deleteByOwnerFunc func(ctx context.Context, ownerID int64) (int64, error)
}

func (m *mockImageRepository) Create(ctx context.Context, image *models.Image) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, image)
	}
	return errNotImplemented
}

func (m *mockImageRepository) FindByID(ctx context.Context, id int64) (*models.Image, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, errNotImplemented
}

func (m *mockImageRepository) ListByOwner(ctx context.Context, ownerID int64) ([]models.Image, error) {
	if m.listByOwnerFunc != nil {
		return m.listByOwnerFunc(ctx, ownerID)
	}
	return nil, nil
}

func (m *mockImageRepository) Delete(ctx context.Context, id int64) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return errNotImplemented
}

func (m *mockImageRepository) DeleteByOwner(ctx context.Context, ownerID int64) (int64, error) {
	if m.deleteByOwnerFunc != nil {
		return m.deleteByOwnerFunc(ctx, ownerID)
	}
	return 0, nil
}

// imageTable backs a mockImageRepository with a slice.
type imageTable struct {
	mu     sync.Mutex
	nextID int64
	rows   []models.Image
}

func (t *imageTable) repo() *mockImageRepository {
	return &mockImageRepository{
		createFunc: func(_ context.Context, image *models.Image) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			t.nextID++
			image.ID = t.nextID
			t.rows = append(t.rows, *image)
			return nil
		},
		findByIDFunc: func(_ context.Context, id int64) (*models.Image, error) {
			t.mu.Lock()
			defer t.mu.Unlock()
			for _, img := range t.rows {
				if img.ID == id {
					return &img, nil
				}
			}
			return nil, repository.ErrNotFound
		},
		listByOwnerFunc: func(_ context.Context, ownerID int64) ([]models.Image, error) {
			t.mu.Lock()
			defer t.mu.Unlock()
			var out []models.Image
			for _, img := range t.rows {
				if img.UploadedBy == ownerID {
					out = append(out, img)
				}
			}
			return out, nil
		},
		deleteFunc: func(_ context.Context, id int64) error {
			t.mu.Lock()
			defer t.mu.Unlock()
			for i, img := range t.rows {
				if img.ID == id {
					t.rows = append(t.rows[:i], t.rows[i+1:]...)
					return nil
				}
			}
			return repository.ErrNotFound
		},
		deleteByOwnerFunc: func(_ context.Context, ownerID int64) (int64, error) {
			t.mu.Lock()
			defer t.mu.Unlock()
			kept := t.rows[:0]
			var n int64
			for _, img := range t.rows {
				if img.UploadedBy == ownerID {
					n++
					continue
				}
				kept = append(kept, img)
			}
			t.rows = kept
			return n, nil
		},
	}
}

// =============================================================================
// Mock Dispatcher
// =============================================================================

type mockDispatcher struct {
	mu   sync.Mutex
	sent []mailer.Message
	err  error
}

func (m *mockDispatcher) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return m.err
}

// =============================================================================
// Test Helpers
// =============================================================================

const testBaseURL = "http://localhost:8000"

func hashPassword(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("Failed to hash password: %v", err)
	}
	return string(hash)
}

func newTestStore(t *testing.T) *storage.LocalStore {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalStore() error = %v", err)
	}
	return store
}

// countFiles returns the number of regular files below dir.
func countFiles(t *testing.T, dir string) int {
	t.Helper()
	n := 0
	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
			n++
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WalkDir() error = %v", err)
	}
	return n
}

type accountFixture struct {
	service    *accountService
	users      *userTable
	images     *imageTable
	store      *storage.LocalStore
	dispatcher *mockDispatcher
	issuer     *tokenIssuer
}

func setupAccountService(t *testing.T) *accountFixture {
	t.Helper()

	users := newUserTable()
	images := &imageTable{}
	store := newTestStore(t)
	dispatcher := &mockDispatcher{}
	issuer := newTestIssuer(t)

	svc := newAccountService(
		users.repo(),
		images.repo(),
		issuer,
		store,
		dispatcher,
		metrics.Nop{},
		AccountConfig{
			AppBaseURL:     "http://localhost:5173",
			MailFrom:       "noreply@example.com",
			MaxUploadBytes: 5 * 1000 * 1000,
			ResetTokenTTL:  testResetTTL,
		},
		zerolog.Nop(),
		bcrypt.MinCost,
	)

	return &accountFixture{
		service:    svc,
		users:      users,
		images:     images,
		store:      store,
		dispatcher: dispatcher,
		issuer:     issuer,
	}
}

// seedUser inserts a user with the given password and returns it.
func (f *accountFixture) seedUser(t *testing.T, email, username, password string, role models.Role) models.User {
	t.Helper()
	return f.users.insert(models.User{
		Email:        email,
		Username:     username,
		FirstName:    "Test",
		LastName:     "User",
		PasswordHash: hashPassword(t, password),
		Role:         role,
		CreatedAt:    time.Now(),
	})
}
