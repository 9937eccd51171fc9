// Package handlers contains HTTP request handlers for the account service.
package handlers

import (
	"mime"

	"github.com/gin-gonic/gin"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/middleware"
	"github.com/userprod/account-service/internal/models"
)

// Response is the body of every successful request.
type Response struct {
	StatusCode int    `json:"statusCode"`
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Data       any    `json:"data"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, Response{
		StatusCode: status,
		Success:    true,
		Message:    message,
		Data:       data,
	})
}

// fail hands err to the error boundary.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}

func currentIdentity(c *gin.Context) (*models.Identity, bool) {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		fail(c, apperror.Unauthorized("unauthorized request"))
		return nil, false
	}
	return identity, true
}

// baseURL is the absolute origin used for file URLs. A configured public
// URL wins over the request's own scheme and host.
func baseURL(c *gin.Context, public string) string {
	if public != "" {
		return public
	}
	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if forwarded := c.GetHeader("X-Forwarded-Proto"); forwarded == "https" || forwarded == "http" {
		scheme = forwarded
	}
	return scheme + "://" + c.Request.Host
}

// attachment builds a Content-Disposition value for a download named name.
func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}
