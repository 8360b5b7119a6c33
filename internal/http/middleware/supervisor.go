package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// SupervisorKey gates the supervisor endpoints behind a shared key. An
// empty configured key disables the check (local development).
func SupervisorKey(required string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if required == "" {
			c.Next()
			return
		}
		key := c.GetHeader("X-Supervisor-Key")
		if key != required {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{
					"code":    "UNAUTHORIZED",
					"message": "Invalid supervisor key",
				},
			})
			return
		}
		c.Next()
	}
}
