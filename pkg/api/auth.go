// API authentication middleware.
//
// When gateway.api_key or gateway.jwt_secret is set, API requests MUST carry:
//
//	Authorization: Bearer <api_key | jwt>
//
// or:
//
//	X-API-Key: <api_key>
//
// Exempt routes (no token required):
//   - GET /api/health
//   - GET /metrics
//
// WebSocket upgrade requests check the token in the query param as fallback:
//
//	ws://host/api/ws?token=<token>
package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sipeed/picocrud/pkg/auth"
	"github.com/sipeed/picocrud/pkg/domain"
	"github.com/sipeed/picocrud/pkg/logger"
)

const userKey = "picocrud.user"

// authRequired resolves the caller and stores it on the context.
func (s *Server) authRequired() gin.HandlerFunc {
	if !s.verifier.Enabled() {
		logger.WarnC("auth", "API auth DISABLED: no api_key or jwt_secret configured")
	} else {
		logger.InfoC("auth", "API bearer token auth ENABLED")
	}

	return func(c *gin.Context) {
		if isPublicPath(c.Request.URL.Path) || c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		user, err := s.verifier.Verify(extractToken(c))
		if err != nil {
			c.Header("WWW-Authenticate", `Bearer realm="picocrud"`)
			respondError(c, err)
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

const tokenParam = "token"

// extractToken pulls the bearer token from the Authorization header,
// X-API-Key header, or ?token= query param (for WebSocket upgrades).
func extractToken(c *gin.Context) string {
	if t := auth.BearerToken(c.GetHeader("Authorization")); t != "" {
		return t
	}
	if key := c.GetHeader("X-API-Key"); key != "" {
		return strings.TrimSpace(key)
	}
	return c.Query(tokenParam)
}

func isPublicPath(path string) bool {
	return path == "/api/health" || path == "/metrics"
}

// userFrom returns the caller resolved by authRequired.
func userFrom(c *gin.Context) domain.User {
	if v, ok := c.Get(userKey); ok {
		if u, ok := v.(domain.User); ok {
			return u
		}
	}
	return domain.Anonymous
}
