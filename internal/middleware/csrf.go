package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/userprod/account-service/internal/apperror"
)

// CSRF rejects state-changing requests whose Origin, or Referer when Origin
// is absent, is not one of allowedOrigins. Session cookies are sent by the
// browser on every request, so the origin check is what ties a mutation to
// the client application.
func CSRF(allowedOrigins []string) gin.HandlerFunc {
	allowedSet := normalizeOrigins(allowedOrigins)

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
			return
		}

		var reason string
		if origin := c.GetHeader("Origin"); origin != "" {
			if !isAllowedOrigin(origin, allowedSet) {
				reason = "invalid origin"
			}
		} else if referer := c.GetHeader("Referer"); referer != "" {
			if !isAllowedOrigin(extractOrigin(referer), allowedSet) {
				reason = "invalid referer"
			}
		} else {
			reason = "missing origin"
		}

		if reason != "" {
			abort(c, apperror.Forbidden("CSRF validation failed: "+reason))
			return
		}
		c.Next()
	}
}

func normalizeOrigin(origin string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(origin)), "/")
}

func normalizeOrigins(origins []string) map[string]struct{} {
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[normalizeOrigin(o)] = struct{}{}
	}
	return set
}

func isAllowedOrigin(origin string, allowedSet map[string]struct{}) bool {
	_, ok := allowedSet[normalizeOrigin(origin)]
	return ok
}

// extractOrigin returns scheme://host[:port] of rawURL, or "" when it cannot
// be parsed.
func extractOrigin(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}
