package middlewares

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CronAuthMiddleware guards the scheduler endpoints. The secret is accepted
// from X-Cron-Secret or as an "Authorization: Bearer" token. An empty secret
// disables the check (local development).
func CronAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		provided := c.GetHeader("X-Cron-Secret")
		if provided == "" {
			auth := strings.TrimSpace(c.GetHeader("Authorization"))
			if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
				provided = strings.TrimSpace(auth[7:])
			}
		}

		if subtle.ConstantTimeCompare([]byte(provided), []byte(secret)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Next()
	}
}
