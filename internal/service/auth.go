package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/mailer"
	"github.com/userprod/account-service/internal/metrics"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/repository"
	"github.com/userprod/account-service/internal/storage"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultPage     = 1
	defaultPageSize = 20
	maxPageSize     = 100

	profilePicturePrefix = "profile-pictures"
	resetPathPrefix      = "/api/v1/auth/forgot-password/"
)

// Client-facing messages.
const (
	msgInvalidCredentials = "invalid credentials"
	msgUserNotFound       = "user not found"
	msgUserExists         = "user with email or username already exists"
	msgInvalidRefresh     = "invalid refresh token"
	msgInvalidResetLink   = "invalid or expired link"
)

// RegisterRequest is the body of POST /auth/register.
type RegisterRequest struct {
	FirstName string `json:"firstName" binding:"required"`
	LastName  string `json:"lastName" binding:"required"`
	Username  string `json:"username" binding:"required"`
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8,max=72"`
}

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UpdateUserRequest is the body of PATCH /auth/update-user. Empty fields
// are left unchanged.
type UpdateUserRequest struct {
	Email     string `json:"email" binding:"required"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Role      string `json:"role"`
}

// ListUsersQuery holds the query parameters of GET /auth/users.
type ListUsersQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"pageSize"`
	Search   string `form:"search"`
}

// PageMetadata describes one page of a listing.
type PageMetadata struct {
	TotalCount int64 `json:"totalCount"`
	Page       int   `json:"page"`
	PageSize   int   `json:"pageSize"`
	TotalPages int   `json:"totalPages"`
}

// UserPage is a page of users.
type UserPage struct {
	Metadata PageMetadata  `json:"metadata"`
	Users    []models.User `json:"users"`
}

// TokenPair is a freshly issued access and refresh token.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User *models.User `json:"user"`
	TokenPair
}

// AccountRef names the account an operation targets. A non-empty Email
// takes precedence over UserID.
type AccountRef struct {
	UserID int64
	Email  string
}

// AccountConfig carries the settings the account flows need.
type AccountConfig struct {
	AppBaseURL     string
	MailFrom       string
	MaxUploadBytes int64
	ResetTokenTTL  time.Duration
}

// AccountService implements account management flows.
type AccountService interface {
	Register(ctx context.Context, req RegisterRequest) (*models.User, error)
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Logout(ctx context.Context, userID int64) error
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	RequestPasswordReset(ctx context.Context, email string) error
	CompletePasswordReset(ctx context.Context, resetToken, newPassword string) error
	ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	UserDetails(ctx context.Context, email, baseURL string) (*models.User, error)
	ListUsers(ctx context.Context, query ListUsersQuery, baseURL string) (*UserPage, error)
	UpdateUser(ctx context.Context, req UpdateUserRequest) (*models.User, error)
	DeleteUser(ctx context.Context, email string) error
	SetProfilePicture(ctx context.Context, ref AccountRef, upload Upload, baseURL string) (*models.User, error)
	RemoveProfilePicture(ctx context.Context, ref AccountRef) (*models.User, error)
}

type accountService struct {
	users      repository.UserRepository
	images     repository.ImageRepository
	tokens     TokenIssuer
	store      storage.Store
	dispatcher mailer.Dispatcher
	recorder   metrics.Recorder
	cfg        AccountConfig
	log        zerolog.Logger

	passwordCost int
	// dummyHash is compared against when no user matches a login so that
	// unknown emails cost the same as wrong passwords.
	dummyHash []byte
	now       func() time.Time
}

// NewAccountService creates a new AccountService instance.
func NewAccountService(
	users repository.UserRepository,
	images repository.ImageRepository,
	tokens TokenIssuer,
	store storage.Store,
	dispatcher mailer.Dispatcher,
	recorder metrics.Recorder,
	cfg AccountConfig,
	log zerolog.Logger,
) AccountService {
	return newAccountService(users, images, tokens, store, dispatcher, recorder, cfg, log, bcrypt.DefaultCost)
}

func newAccountService(
	users repository.UserRepository,
	images repository.ImageRepository,
	tokens TokenIssuer,
	store storage.Store,
	dispatcher mailer.Dispatcher,
	recorder metrics.Recorder,
	cfg AccountConfig,
	log zerolog.Logger,
	cost int,
) *accountService {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("account-service-dummy"), cost)
	return &accountService{
		users:        users,
		images:       images,
		tokens:       tokens,
		store:        store,
		dispatcher:   dispatcher,
		recorder:     recorder,
		cfg:          cfg,
		log:          log.With().Str("component", "account").Logger(),
		passwordCost: cost,
		dummyHash:    dummy,
		now:          time.Now,
	}
}

func (s *accountService) Register(ctx context.Context, req RegisterRequest) (user *models.User, err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventRegister, metrics.Outcome(err)) }()

	email := models.NormalizeHandle(req.Email)
	username := models.NormalizeHandle(req.Username)
	if email == "" || username == "" {
		return nil, apperror.BadRequest("email and username are required")
	}

	_, err = s.users.FindByEmailOrUsername(ctx, email, username)
	switch {
	case err == nil:
		return nil, apperror.Conflict(msgUserExists)
	case !errors.Is(err, repository.ErrNotFound):
		return nil, apperror.Internal("failed to check existing user", err)
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user = &models.User{
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		PasswordHash: hash,
		Role:         models.DefaultRole,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.Conflict(msgUserExists)
		}
		return nil, apperror.Internal("failed to create user", err)
	}

	s.log.Info().Str("op", "register").Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

func (s *accountService) Login(ctx context.Context, req LoginRequest) (result *LoginResult, err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventLogin, metrics.Outcome(err)) }()

	email := models.NormalizeHandle(req.Email)
	if email == "" {
		return nil, apperror.BadRequest("email is required")
	}

	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(req.Password))
			return nil, apperror.BadRequest(msgInvalidCredentials)
		}
		return nil, apperror.Internal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, apperror.BadRequest(msgInvalidCredentials)
	}

	pair, err := s.issueSession(ctx, user)
	if err != nil {
		return nil, err
	}

	s.log.Info().Str("op", "login").Int64("user_id", user.ID).Msg("user logged in")
	return &LoginResult{User: user, TokenPair: *pair}, nil
}

func (s *accountService) Logout(ctx context.Context, userID int64) (err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventLogout, metrics.Outcome(err)) }()

	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return apperror.Internal("failed to clear refresh token", err)
	}
	return nil
}

func (s *accountService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventRefresh, metrics.Outcome(err)) }()

	if refreshToken == "" {
		return nil, apperror.Unauthorized("unauthorized request")
	}

	claims, err := s.tokens.ParseRefreshToken(refreshToken)
	if err != nil {
		return nil, apperror.Unauthorized(msgInvalidRefresh)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.Unauthorized(msgInvalidRefresh)
		}
		return nil, apperror.Internal("failed to load user", err)
	}

	// Only the most recently issued refresh token is live
	if user.RefreshToken == nil || *user.RefreshToken != refreshToken {
		s.log.Warn().Str("op", "refresh").Int64("user_id", user.ID).Msg("stale refresh token presented")
		return nil, apperror.Unauthorized("refresh token is expired or used")
	}

	return s.issueSession(ctx, user)
}

// issueSession issues a token pair and stores the refresh token, replacing
// any previous one.
func (s *accountService) issueSession(ctx context.Context, user *models.User) (*TokenPair, error) {
	access, err := s.tokens.IssueAccessToken(user.Identity())
	if err != nil {
		return nil, apperror.Internal("failed to issue access token", err)
	}
	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, apperror.Internal("failed to issue refresh token", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, &refresh); err != nil {
		return nil, apperror.Internal("failed to store refresh token", err)
	}
	user.RefreshToken = &refresh
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *accountService) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventResetRequest, metrics.Outcome(err)) }()

	email = models.NormalizeHandle(email)
	if email == "" {
		return apperror.BadRequest("email is required")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	reset, err := s.tokens.IssueResetToken()
	if err != nil {
		return apperror.Internal("failed to issue reset token", err)
	}

	user.ResetTokenHash = &reset.Hash
	user.ResetTokenExpiry = &reset.Expiry
	if err := s.users.Update(ctx, user); err != nil {
		return apperror.Internal("failed to store reset token", err)
	}

	link := s.cfg.AppBaseURL + resetPathPrefix + reset.Plain
	msg, err := mailer.PasswordResetMessage(s.cfg.MailFrom, user.Email, user.Username, link, s.cfg.ResetTokenTTL)
	if err != nil {
		s.log.Error().Err(err).Str("op", "request_reset").Int64("user_id", user.ID).Msg("failed to build reset mail")
		return nil
	}
	if err := s.dispatcher.Send(ctx, msg); err != nil {
		s.log.Error().Err(err).Str("op", "request_reset").Int64("user_id", user.ID).Msg("failed to dispatch reset mail")
	}
	return nil
}

func (s *accountService) CompletePasswordReset(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventResetComplete, metrics.Outcome(err)) }()

	if resetToken == "" {
		return apperror.Conflict(msgInvalidResetLink)
	}

	user, err := s.users.FindByResetToken(ctx, HashResetToken(resetToken), s.now())
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.Conflict(msgInvalidResetLink)
		}
		return apperror.Internal("failed to look up reset token", err)
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}

	user.PasswordHash = hash
	user.ResetTokenHash = nil
	user.ResetTokenExpiry = nil
	if err := s.users.Update(ctx, user); err != nil {
		return apperror.Internal("failed to reset password", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, nil); err != nil {
		return apperror.Internal("failed to end sessions", err)
	}
	user.RefreshToken = nil

	s.log.Info().Str("op", "complete_reset").Int64("user_id", user.ID).Msg("password reset")
	return nil
}

func (s *accountService) ChangePassword(ctx context.Context, userID int64, oldPassword, newPassword string) (err error) {
	defer func() { s.recorder.AuthEvent(metrics.EventPasswordChange, metrics.Outcome(err)) }()

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound(msgUserNotFound)
		}
		return apperror.Internal("failed to load user", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(oldPassword)); err != nil {
		return apperror.BadRequest("old password is invalid")
	}

	hash, err := s.hashPassword(newPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hash
	if err := s.users.Update(ctx, user); err != nil {
		return apperror.Internal("failed to change password", err)
	}
	return nil
}

func (s *accountService) UserDetails(ctx context.Context, email, baseURL string) (*models.User, error) {
	email = models.NormalizeHandle(email)
	if email == "" {
		return nil, apperror.BadRequest("email is required")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	s.attachPictureURL(user, baseURL)
	return user, nil
}

func (s *accountService) ListUsers(ctx context.Context, query ListUsersQuery, baseURL string) (*UserPage, error) {
	page := query.Page
	if page < 1 {
		page = defaultPage
	}
	pageSize := query.PageSize
	switch {
	case pageSize == 0:
		pageSize = defaultPageSize
	case pageSize < 1:
		pageSize = 1
	case pageSize > maxPageSize:
		pageSize = maxPageSize
	}
	if page > math.MaxInt/pageSize {
		return nil, apperror.BadRequest("page is out of range")
	}

	users, total, err := s.users.List(ctx, repository.ListFilter{
		Search: query.Search,
		Offset: (page - 1) * pageSize,
		Limit:  pageSize,
	})
	if err != nil {
		return nil, apperror.Internal("failed to list users", err)
	}

	for i := range users {
		s.attachPictureURL(&users[i], baseURL)
	}
	if users == nil {
		users = []models.User{}
	}

	return &UserPage{
		Metadata: PageMetadata{
			TotalCount: total,
			Page:       page,
			PageSize:   pageSize,
			TotalPages: int(math.Ceil(float64(total) / float64(pageSize))),
		},
		Users: users,
	}, nil
}

func (s *accountService) UpdateUser(ctx context.Context, req UpdateUserRequest) (*models.User, error) {
	user, err := s.findByEmail(ctx, models.NormalizeHandle(req.Email))
	if err != nil {
		return nil, err
	}

	if v := strings.TrimSpace(req.FirstName); v != "" {
		user.FirstName = v
	}
	if v := strings.TrimSpace(req.LastName); v != "" {
		user.LastName = v
	}
	if req.Role != "" {
		role, ok := models.ParseRole(req.Role)
		if !ok {
			return nil, apperror.BadRequest("invalid role", fmt.Sprintf("role must be one of %v", models.AvailableRoles))
		}
		user.Role = role
	}

	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperror.Internal("failed to update user", err)
	}

	s.log.Info().Str("op", "update_user").Int64("user_id", user.ID).Str("role", string(user.Role)).Msg("user updated")
	return user, nil
}

func (s *accountService) DeleteUser(ctx context.Context, email string) error {
	email = models.NormalizeHandle(email)
	if email == "" {
		return apperror.BadRequest("email is required")
	}

	user, err := s.findByEmail(ctx, email)
	if err != nil {
		return err
	}

	images, err := s.images.ListByOwner(ctx, user.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("op", "delete_user").Int64("user_id", user.ID).Msg("failed to list user images")
	}

	if err := s.users.Delete(ctx, user.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return apperror.NotFound(msgUserNotFound)
		}
		return apperror.Internal("failed to delete user", err)
	}

	if user.ProfilePicture != nil {
		s.removeObject(ctx, "delete_user", *user.ProfilePicture)
	}
	for _, img := range images {
		s.removeObject(ctx, "delete_user", img.StorageKey)
	}
	if _, err := s.images.DeleteByOwner(ctx, user.ID); err != nil {
		s.log.Warn().Err(err).Str("op", "delete_user").Int64("user_id", user.ID).Msg("failed to delete image records")
	}

	s.log.Info().Str("op", "delete_user").Int64("user_id", user.ID).Msg("user deleted")
	return nil
}

func (s *accountService) SetProfilePicture(ctx context.Context, ref AccountRef, upload Upload, baseURL string) (*models.User, error) {
	user, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	mimeType, body, err := checkedImage(upload, s.cfg.MaxUploadBytes)
	if err != nil {
		return nil, err
	}

	key := storage.NewKey(profilePicturePrefix, upload.FileName, s.now())
	if err := s.store.Save(ctx, key, body, upload.Size, mimeType); err != nil {
		return nil, apperror.Internal("failed to store profile picture", err)
	}

	previous := user.ProfilePicture
	user.ProfilePicture = &key
	if err := s.users.Update(ctx, user); err != nil {
		s.removeObject(ctx, "set_profile_picture", key)
		return nil, apperror.Internal("failed to update profile picture", err)
	}

	if previous != nil && *previous != key {
		s.removeObject(ctx, "set_profile_picture", *previous)
	}

	s.attachPictureURL(user, baseURL)
	return user, nil
}

func (s *accountService) RemoveProfilePicture(ctx context.Context, ref AccountRef) (*models.User, error) {
	user, err := s.resolve(ctx, ref)
	if err != nil {
		return nil, err
	}
	if user.ProfilePicture == nil {
		return user, nil
	}

	key := *user.ProfilePicture
	user.ProfilePicture = nil
	if err := s.users.Update(ctx, user); err != nil {
		return nil, apperror.Internal("failed to clear profile picture", err)
	}
	s.removeObject(ctx, "remove_profile_picture", key)
	return user, nil
}

func (s *accountService) resolve(ctx context.Context, ref AccountRef) (*models.User, error) {
	if ref.Email != "" {
		return s.findByEmail(ctx, models.NormalizeHandle(ref.Email))
	}
	user, err := s.users.FindByID(ctx, ref.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound(msgUserNotFound)
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	return user, nil
}

func (s *accountService) findByEmail(ctx context.Context, email string) (*models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperror.NotFound(msgUserNotFound)
		}
		return nil, apperror.Internal("failed to load user", err)
	}
	return user, nil
}

// removeObject deletes a stored file, logging failures. Absent files are
// not an error.
func (s *accountService) removeObject(ctx context.Context, op, key string) {
	if err := s.store.Delete(ctx, key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.log.Warn().Err(err).Str("op", op).Str("key", key).Msg("failed to delete stored file")
	}
}

func (s *accountService) attachPictureURL(user *models.User, baseURL string) {
	if user.ProfilePicture != nil {
		user.ProfilePictureURL = s.store.URL(baseURL, *user.ProfilePicture)
	}
}

func (s *accountService) hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperror.BadRequest("password must be at most 72 bytes")
		}
		return "", apperror.Internal("failed to hash password", err)
	}
	return string(hash), nil
}
