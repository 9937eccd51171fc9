// Package middleware provides HTTP middleware for the account service.
package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/userprod/account-service/internal/apperror"
	"github.com/userprod/account-service/internal/models"
	"github.com/userprod/account-service/internal/service"
)

// SessionCookie carries the access token.
const SessionCookie = "accessToken"

const identityKey = "identity"

const msgUnauthenticated = "unauthorized request"

// AccessTokenParser verifies access tokens.
type AccessTokenParser interface {
	ParseAccessToken(token string) (*service.AccessClaims, error)
}

// IdentityLoader loads the session projection of a user.
type IdentityLoader interface {
	FindIdentityByID(ctx context.Context, id int64) (*models.Identity, error)
}

// Session authenticates the request from the access token cookie and
// attaches the caller's identity to the context.
func Session(tokens AccessTokenParser, users IdentityLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(SessionCookie)
		if err != nil || token == "" {
			abort(c, apperror.Unauthorized(msgUnauthenticated))
			return
		}

		claims, err := tokens.ParseAccessToken(token)
		if err != nil {
			abort(c, apperror.Unauthorized("invalid access token"))
			return
		}

		identity, err := users.FindIdentityByID(c.Request.Context(), claims.UserID)
		if err != nil {
			abort(c, apperror.Unauthorized("invalid access token"))
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequireRoles admits only identities whose role is one of roles. The set
// is fixed when the route is registered.
func RequireRoles(roles ...models.Role) gin.HandlerFunc {
	allowed := make(map[models.Role]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		identity, ok := IdentityFrom(c)
		if !ok {
			abort(c, apperror.Unauthorized(msgUnauthenticated))
			return
		}
		if _, ok := allowed[identity.Role]; !ok {
			abort(c, apperror.Forbidden("you do not have permission to perform this action"))
			return
		}
		c.Next()
	}
}

// IdentityFrom returns the identity attached by Session.
func IdentityFrom(c *gin.Context) (*models.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return nil, false
	}
	identity, ok := v.(*models.Identity)
	return identity, ok && identity != nil
}

// SetIdentity attaches identity to the request context.
func SetIdentity(c *gin.Context, identity *models.Identity) {
	c.Set(identityKey, identity)
}

func abort(c *gin.Context, err *apperror.Error) {
	_ = c.Error(err)
	c.Abort()
}
