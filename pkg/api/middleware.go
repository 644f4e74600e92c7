package api

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Identity headers set by the authenticating front proxy. JWT verification
// happens upstream; the core trusts these headers.
const (
	headerUserID      = "X-User-ID"
	headerDisplayName = "X-Display-Name"
	headerPrivileges  = "X-Privileges"
)

// PrivilegeStartGame gates the admin session endpoints.
const PrivilegeStartGame = "START_GAME"

const (
	ctxUserID      = "user_id"
	ctxDisplayName = "display_name"
	ctxPrivileges  = "privileges"
)

// identity extracts the caller's identity headers into the request context.
func identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ctxUserID, c.GetHeader(headerUserID))
		c.Set(ctxDisplayName, c.GetHeader(headerDisplayName))
		c.Set(ctxPrivileges, strings.Split(c.GetHeader(headerPrivileges), ","))
		c.Next()
	}
}

// requireUser rejects requests with no authenticated identity.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// requirePrivilege rejects callers lacking the named privilege.
func requirePrivilege(privilege string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(ctxUserID) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		for _, p := range c.GetStringSlice(ctxPrivileges) {
			if strings.TrimSpace(p) == privilege {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "privilege " + privilege + " required"})
	}
}

// requestLogger logs one structured line per request.
func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.InfoContext(c.Request.Context(), "Request handled",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}

// callerID returns the authenticated user id, or "".
func callerID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

// callerName returns the caller's display name, falling back to the user id.
func callerName(c *gin.Context) string {
	if name := c.GetString(ctxDisplayName); name != "" {
		return name
	}
	return c.GetString(ctxUserID)
}
