package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/middleware"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/service"
)

// =============================================================================
// Mock Implementations
// =============================================================================

var errNotImplemented = errors.New("not implemented")

type mockAccountService struct {
	registerFunc             func(ctx context.Context, req service.RegisterRequest) (*models.User, error)
	loginFunc                func(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	logoutFunc               func(ctx context.Context, userID int64) error
	refreshFunc              func(ctx context.Context, token string) (*service.TokenPair, error)
	requestResetFunc         func(ctx context.Context, email string) error
	completeResetFunc        func(ctx context.Context, token, newPassword string) error
	changePasswordFunc       func(ctx context.Context, userID int64, oldPassword, newPassword string) error
	userDetailsFunc          func(ctx context.Context, email, baseURL string) (*models.User, error)
	listUsersFunc            func(ctx context.Context, query service.ListUsersQuery, baseURL string) (*service.UserPage, error)
	updateUserFunc           func(ctx context.Context, req service.UpdateUserRequest) (*models.User, error)
	deleteUserFunc           func(ctx context.Context, email string) error
	setProfilePictureFunc    func(ctx context.Context, ref service.AccountRef, upload service.Upload, baseURL string) (*models.User, error)
	removeProfilePictureFunc func(ctx context.Context, ref service.AccountRef) (*models.User, error)
}

func (m *mockAccountService) Register(ctx context.Context, req service.RegisterRequest) (*models.User, error) {
	if m.registerFunc != nil {
		return m.registerFunc(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error) {
	if m.loginFunc != nil {
		return m.loginFunc(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) Logout(ctx context.Context, userID int64) error {
	if m.logoutFunc != nil {
		return m.logoutFunc(ctx, userID)
	}
	return errNotImplemented
}

func (m *mockAccountService) Refresh(ctx context.Context, token string) (*service.TokenPair, error) {
	if m.refreshFunc != nil {
		return m.refreshFunc(ctx, token)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) RequestPasswordReset(ctx context.Context, email string) error {
	if m.requestResetFunc != nil {
		return m.requestResetFunc(ctx, email)
	}
	return errNotImplemented
}

func (m *mockAccountService) CompletePasswordReset(ctx context.Context, token, newPassword string) error {
	if m.completeResetFunc != nil {
		return m.completeResetFunc(ctx, token, newPassword)
	}
	return errNotImplemented
}

func (m *mockAccountService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	if m.changePasswordFunc != nil {
		return m.changePasswordFunc(ctx, userID, oldPassword, newPassword)
	}
	return errNotImplemented
}

func (m *mockAccountService) UserDetails(ctx context.Context, email, baseURL string) (*models.User, error) {
	if m.userDetailsFunc != nil {
		return m.userDetailsFunc(ctx, email, baseURL)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) ListUsers(ctx context.Context, query service.ListUsersQuery, baseURL string) (*service.UserPage, error) {
	if m.listUsersFunc != nil {
		return m.listUsersFunc(ctx, query, baseURL)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) UpdateUser(ctx context.Context, req service.UpdateUserRequest) (*models.User, error) {
	if m.updateUserFunc != nil {
		return m.updateUserFunc(ctx, req)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) DeleteUser(ctx context.Context, email string) error {
	if m.deleteUserFunc != nil {
		return m.deleteUserFunc(ctx, email)
	}
	return errNotImplemented
}

func (m *mockAccountService) SetProfilePicture(ctx context.Context, ref service.AccountRef, upload service.Upload, baseURL string) (*models.User, error) {
	if m.setProfilePictureFunc != nil {
		return m.setProfilePictureFunc(ctx, ref, upload, baseURL)
	}
	return nil, errNotImplemented
}

func (m *mockAccountService) RemoveProfilePicture(ctx context.Context, ref service.AccountRef) (*models.User, error) {
	if m.removeProfilePictureFunc != nil {
		return m.removeProfilePictureFunc(ctx, ref)
	}
	return nil, errNotImplemented
}

type mockImageService struct {
	uploadFunc     func(ctx context.Context, ownerID int64, upload service.Upload, baseURL string) (*models.Image, error)
	listMineFunc   func(ctx context.Context, ownerID int64, baseURL string) ([]models.Image, error)
	deleteMineFunc func(ctx context.Context, ownerID int64) (int64, error)
	deleteOneFunc  func(ctx context.Context, ownerID, imageID int64) error
	openFunc       func(ctx context.Context, imageID int64) (*models.Image, io.ReadCloser, error)
}

func (m *mockImageService) Upload(ctx context.Context, ownerID int64, upload service.Upload, baseURL string) (*models.Image, error) {
	if m.uploadFunc != nil {
		return m.uploadFunc(ctx, ownerID, upload, baseURL)
	}
	return nil, errNotImplemented
}

func (m *mockImageService) ListMine(ctx context.Context, ownerID int64, baseURL string) ([]models.Image, error) {
	if m.listMineFunc != nil {
		return m.listMineFunc(ctx, ownerID, baseURL)
	}
	return nil, errNotImplemented
}

func (m *mockImageService) DeleteMine(ctx context.Context, ownerID int64) (int64, error) {
	if m.deleteMineFunc != nil {
		return m.deleteMineFunc(ctx, ownerID)
	}
	return 0, errNotImplemented
}

func (m *mockImageService) DeleteOne(ctx context.Context, ownerID, imageID int64) error {
	if m.deleteOneFunc != nil {
		return m.deleteOneFunc(ctx, ownerID, imageID)
	}
	return errNotImplemented
}

func (m *mockImageService) Open(ctx context.Context, imageID int64) (*models.Image, io.ReadCloser, error) {
	if m.openFunc != nil {
		return m.openFunc(ctx, imageID)
	}
	return nil, nil, errNotImplemented
}

type mockTransferService struct {
	exportFunc func(ctx context.Context, w io.Writer) error
	importFunc func(ctx context.Context, upload service.Upload) (*service.ImportReport, error)
}

func (m *mockTransferService) Export(ctx context.Context, w io.Writer) error {
	if m.exportFunc != nil {
		return m.exportFunc(ctx, w)
	}
	return errNotImplemented
}

func (m *mockTransferService) Import(ctx context.Context, upload service.Upload) (*service.ImportReport, error) {
	if m.importFunc != nil {
		return m.importFunc(ctx, upload)
	}
	return nil, errNotImplemented
}

// =============================================================================
// Helpers
// =============================================================================

const testPublicURL = "https://api.userprod.in"

var testIdentity = &models.Identity{ID: 42, Username: "ann", Email: "ann@example.com", Role: models.RoleMember}

// newRouter wires the error boundary and, when identity is non-nil, a stub
// session that attaches it.
func newRouter(identity *models.Identity) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.ErrorHandler(zerolog.Nop()))
	if identity != nil {
		r.Use(func(c *gin.Context) {
			middleware.SetIdentity(c, identity)
		})
	}
	return r
}

func jsonRequest(method, target string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func multipartRequest(t *testing.T, target, field, fileName string, content []byte, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if field != "" {
		fw, err := mw.CreateFormFile(field, fileName)
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := fw.Write(content); err != nil {
			t.Fatalf("write file: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// envelope decodes either response shape.
type envelope struct {
	StatusCode int             `json:"statusCode"`
	Success    bool            `json:"success"`
	Message    string          `json:"message"`
	Errors     []any           `json:"errors"`
	Data       json.RawMessage `json:"data"`
}

func serve(t *testing.T, r http.Handler, req *http.Request) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if ct := w.Header().Get("Content-Type"); len(ct) >= 16 && ct[:16] == "application/json" {
		if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode %q: %v", w.Body.String(), err)
		}
	}
	return w, env
}
