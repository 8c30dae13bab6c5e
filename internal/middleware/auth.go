package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminAuthMiddleware guards the admin surface with a shared access key
// carried in the X-Admin-Key header. An empty configured key disables
// the admin surface entirely.
func AdminAuthMiddleware(accessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if accessKey == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "admin access is not configured",
			})
			return
		}

		provided := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(accessKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "invalid admin key",
			})
			return
		}

		c.Next()
	}
}
