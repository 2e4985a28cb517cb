package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/wardenproxy/warden/internal/policy"
)

// AuthMiddleware guards management routes: it requires a valid bearer token
// and places the caller's identity in the gin context.
func AuthMiddleware(verifier *policy.IdentityVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		raw := strings.TrimPrefix(header, "Bearer ")
		if raw == header || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			return
		}

		identity, err := verifier.Verify(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			return
		}

		c.Set("userID", identity.Subject)
		c.Set("role", identity.Role)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the authenticated caller holds the
// given role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if got, _ := c.Get("role"); got != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}
