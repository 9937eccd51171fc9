package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/userprod/account-service/internal/config"
	"github.com/userprod/account-service/internal/middleware"
)

// Cookie names.
const (
	AccessTokenCookie  = middleware.SessionCookie
	RefreshTokenCookie = "refreshToken"
)

// CookieHelper manages the session cookies.
type CookieHelper struct {
	config config.CookieConfig
}

// NewCookieHelper creates a new cookie helper with the given configuration.
func NewCookieHelper(cfg config.CookieConfig) *CookieHelper {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	return &CookieHelper{config: cfg}
}

// SetSessionCookies sets both token cookies with lifetimes matching the
// tokens.
func (h *CookieHelper) SetSessionCookies(c *gin.Context, accessToken, refreshToken string, accessExpiry, refreshExpiry time.Duration) {
	h.setCookie(c, AccessTokenCookie, accessToken, int(accessExpiry.Seconds()))
	h.setCookie(c, RefreshTokenCookie, refreshToken, int(refreshExpiry.Seconds()))
}

// ClearSessionCookies expires both token cookies.
func (h *CookieHelper) ClearSessionCookies(c *gin.Context) {
	h.setCookie(c, AccessTokenCookie, "", -1)
	h.setCookie(c, RefreshTokenCookie, "", -1)
}

// RefreshToken returns the refresh token cookie, or "" when absent.
func (h *CookieHelper) RefreshToken(c *gin.Context) string {
	token, err := c.Cookie(RefreshTokenCookie)
	if err != nil {
		return ""
	}
	return token
}

func (h *CookieHelper) setCookie(c *gin.Context, name, value string, maxAge int) {
	c.SetSameSite(h.config.SameSite)
	c.SetCookie(name, value, maxAge, h.config.Path, h.config.Domain, h.config.Secure, true)
}
