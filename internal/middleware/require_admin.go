package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireAdmin guards corpus registry writes.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get("userRole")
		if role, _ := v.(string); role != "ADMIN" {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role or " + adminScope + " scope required"})
			return
		}
		c.Next()
	}
}
