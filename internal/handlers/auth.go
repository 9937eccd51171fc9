package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/middleware"
	"github.com/userprod/account-service/internal/service"
)

// AuthHandlerConfig carries the settings account handlers need.
type AuthHandlerConfig struct {
	AccessExpiry   time.Duration
	RefreshExpiry  time.Duration
	PublicBaseURL  string
	MaxUploadBytes int64
}

// AuthHandler handles account HTTP requests.
type AuthHandler struct {
	accounts service.AccountService
	cookies  *CookieHelper
	cfg      AuthHandlerConfig
}

// NewAuthHandler creates a new AuthHandler instance.
func NewAuthHandler(accounts service.AccountService, cookies *CookieHelper, cfg AuthHandlerConfig) *AuthHandler {
	return &AuthHandler{accounts: accounts, cookies: cookies, cfg: cfg}
}

// EmailRequest carries a single target email.
type EmailRequest struct {
	Email string `json:"email" binding:"required"`
}

// NewPasswordRequest is the body of POST /auth/forgot-password/{resetToken}.
type NewPasswordRequest struct {
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}

// ChangePasswordRequest is the body of POST /auth/reset-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,max=72"`
}

// UserData wraps a single user in response data.
type UserData struct {
	User any `json:"user"`
}

// Register godoc
// @Summary Register a new account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.RegisterRequest true "Account details"
// @Success 201 {object} Response{data=UserData}
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(c *gin.Context) {
	var req service.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	user, err := h.accounts.Register(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "user registered successfully", UserData{User: user})
}

// Login godoc
// @Summary Log in with email and password
// @Description Sets the accessToken and refreshToken cookies and returns both tokens.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.LoginRequest true "Credentials"
// @Success 200 {object} Response{data=service.LoginResult}
// @Failure 400 {object} middleware.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(c *gin.Context) {
	var req service.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	result, err := h.accounts.Login(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}

	h.cookies.SetSessionCookies(c, result.AccessToken, result.RefreshToken, h.cfg.AccessExpiry, h.cfg.RefreshExpiry)
	respond(c, http.StatusOK, "user logged in successfully", result)
}

// Logout godoc
// @Summary Log out
// @Tags auth
// @Produce json
// @Success 200 {object} Response
// @Failure 401 {object} middleware.ErrorResponse
// @Router /auth/logout [post]
func (h *AuthHandler) Logout(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	if err := h.accounts.Logout(c.Request.Context(), identity.ID); err != nil {
		fail(c, err)
		return
	}

	h.cookies.ClearSessionCookies(c)
	respond(c, http.StatusOK, "user logged out", gin.H{})
}

// Refresh godoc
// @Summary Rotate the session tokens
// @Description Reads the refreshToken cookie, issues a new pair and resets both cookies.
// @Tags auth
// @Produce json
// @Success 200 {object} Response{data=service.TokenPair}
// @Failure 401 {object} middleware.ErrorResponse
// @Router /auth/refresh-token [post]
func (h *AuthHandler) Refresh(c *gin.Context) {
	pair, err := h.accounts.Refresh(c.Request.Context(), h.cookies.RefreshToken(c))
	if err != nil {
		fail(c, err)
		return
	}

	h.cookies.SetSessionCookies(c, pair.AccessToken, pair.RefreshToken, h.cfg.AccessExpiry, h.cfg.RefreshExpiry)
	respond(c, http.StatusOK, "access token refreshed", pair)
}

// RequestPasswordReset godoc
// @Summary Request a password reset link
// @Tags auth
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Account email"
// @Success 200 {object} Response
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /auth/forgot-password [post]
func (h *AuthHandler) RequestPasswordReset(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	if err := h.accounts.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "forgot password link sent", gin.H{})
}

// CompletePasswordReset godoc
// @Summary Set a new password with a reset token
// @Tags auth
// @Accept json
// @Produce json
// @Param resetToken path string true "Reset token from the email link"
// @Param request body NewPasswordRequest true "New password"
// @Success 200 {object} Response
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 409 {object} middleware.ErrorResponse
// @Router /auth/forgot-password/{resetToken} [post]
func (h *AuthHandler) CompletePasswordReset(c *gin.Context) {
	var req NewPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	if err := h.accounts.CompletePasswordReset(c.Request.Context(), c.Param("resetToken"), req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "password reset successfully", gin.H{})
}

// ChangePassword godoc
// @Summary Change the current user's password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body ChangePasswordRequest true "Old and new password"
// @Success 200 {object} Response
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 401 {object} middleware.ErrorResponse
// @Router /auth/reset-password [post]
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	if err := h.accounts.ChangePassword(c.Request.Context(), identity.ID, req.OldPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "password changed successfully", gin.H{})
}

// Me godoc
// @Summary Current identity
// @Tags auth
// @Produce json
// @Success 200 {object} Response{data=UserData}
// @Failure 401 {object} middleware.ErrorResponse
// @Router /auth/me [get]
func (h *AuthHandler) Me(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, "user is authenticated", UserData{User: identity})
}

// UserDetails godoc
// @Summary Look up a user by email
// @Tags auth
// @Accept json
// @Produce json
// @Param request body EmailRequest true "User email"
// @Success 200 {object} Response{data=UserData}
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /auth/user-details [post]
func (h *AuthHandler) UserDetails(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	user, err := h.accounts.UserDetails(c.Request.Context(), req.Email, baseURL(c, h.cfg.PublicBaseURL))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user fetched successfully", UserData{User: user})
}

// ListUsers godoc
// @Summary List users
// @Description Newest first, optionally filtered by a case-insensitive email substring.
// @Tags auth
// @Produce json
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Page size (1-100)" default(20)
// @Param search query string false "Email substring"
// @Success 200 {object} Response{data=service.UserPage}
// @Failure 401 {object} middleware.ErrorResponse
// @Router /auth/users [get]
func (h *AuthHandler) ListUsers(c *gin.Context) {
	var query service.ListUsersQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	page, err := h.accounts.ListUsers(c.Request.Context(), query, baseURL(c, h.cfg.PublicBaseURL))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "users fetched successfully", page)
}

// UpdateUser godoc
// @Summary Update a user's names or role
// @Tags auth
// @Accept json
// @Produce json
// @Param request body service.UpdateUserRequest true "Fields to change"
// @Success 200 {object} Response{data=UserData}
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /auth/update-user [patch]
func (h *AuthHandler) UpdateUser(c *gin.Context) {
	var req service.UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	user, err := h.accounts.UpdateUser(c.Request.Context(), req)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user updated successfully", UserData{User: user})
}

// DeleteUser godoc
// @Summary Delete a user and their files
// @Tags auth
// @Accept json
// @Produce json
// @Param request body EmailRequest true "User email"
// @Success 200 {object} Response
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /auth/delete [delete]
func (h *AuthHandler) DeleteUser(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}

	if err := h.accounts.DeleteUser(c.Request.Context(), req.Email); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "user deleted successfully", gin.H{})
}

// UploadProfilePicture godoc
// @Summary Replace the current user's profile picture
// @Tags auth
// @Accept multipart/form-data
// @Produce json
// @Param profilePic formData file true "Image file"
// @Success 200 {object} Response{data=UserData}
// @Failure 400 {object} middleware.ErrorResponse
// @Router /auth/profile-picture [post]
func (h *AuthHandler) UploadProfilePicture(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	h.setPicture(c, service.AccountRef{UserID: identity.ID})
}

// UploadProfilePictureAdmin godoc
// @Summary Replace another user's profile picture
// @Tags auth
// @Accept multipart/form-data
// @Produce json
// @Param email formData string true "Target user email"
// @Param profilePic formData file true "Image file"
// @Success 200 {object} Response{data=UserData}
// @Failure 400 {object} middleware.ErrorResponse
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /auth/profile-pic-ad [post]
func (h *AuthHandler) UploadProfilePictureAdmin(c *gin.Context) {
	// The file is read before the email so the form is parsed under the
	// size cap.
	upload, closer, err := formUpload(c, "profilePic", h.cfg.MaxUploadBytes)
	defer closer.Close()
	if err != nil {
		fail(c, err)
		return
	}

	email := c.PostForm("email")
	if email == "" {
		fail(c, apperror.BadRequest("email is required"))
		return
	}
	h.storePicture(c, service.AccountRef{Email: email}, upload)
}

// DeleteProfilePicture godoc
// @Summary Remove the current user's profile picture
// @Tags auth
// @Produce json
// @Success 200 {object} Response{data=UserData}
// @Router /auth/profile-picture [delete]
func (h *AuthHandler) DeleteProfilePicture(c *gin.Context) {
	identity, ok := currentIdentity(c)
	if !ok {
		return
	}
	h.removePicture(c, service.AccountRef{UserID: identity.ID})
}

// DeleteProfilePictureAdmin godoc
// @Summary Remove another user's profile picture
// @Tags auth
// @Accept json
// @Produce json
// @Param request body EmailRequest true "Target user email"
// @Success 200 {object} Response{data=UserData}
// @Failure 403 {object} middleware.ErrorResponse
// @Failure 404 {object} middleware.ErrorResponse
// @Router /auth/profile-pic-ad [delete]
func (h *AuthHandler) DeleteProfilePictureAdmin(c *gin.Context) {
	var req EmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, middleware.BindingError(err))
		return
	}
	h.removePicture(c, service.AccountRef{Email: req.Email})
}

func (h *AuthHandler) setPicture(c *gin.Context, ref service.AccountRef) {
	upload, closer, err := formUpload(c, "profilePic", h.cfg.MaxUploadBytes)
	defer closer.Close()
	if err != nil {
		fail(c, err)
		return
	}
	h.storePicture(c, ref, upload)
}

func (h *AuthHandler) storePicture(c *gin.Context, ref service.AccountRef, upload service.Upload) {
	user, err := h.accounts.SetProfilePicture(c.Request.Context(), ref, upload, baseURL(c, h.cfg.PublicBaseURL))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "profile picture updated successfully", UserData{User: user})
}

func (h *AuthHandler) removePicture(c *gin.Context, ref service.AccountRef) {
	user, err := h.accounts.RemoveProfilePicture(c.Request.Context(), ref)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, "profile picture deleted successfully", UserData{User: user})
}
