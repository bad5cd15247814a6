package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/osvaldoandrade/dossier/pkg/auth"
	"github.com/osvaldoandrade/dossier/pkg/config"

	"github.com/gin-gonic/gin"
)

const adminScope = "dossier:admin"

// AuthMiddleware authenticates producers with validator. Without a validator
// only the dev environment is served, as an anonymous admin.
func AuthMiddleware(validator auth.Validator, cfg *config.Config) gin.HandlerFunc {
	if validator == nil {
		if cfg != nil && cfg.Env == "dev" {
			return func(c *gin.Context) {
				c.Set("userEmail", "anonymous")
				c.Set("userRole", "ADMIN")
				c.Next()
			}
		}
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "identity validator not configured"})
		}
	}
	return func(c *gin.Context) {
		claims, err := validateBearer(validator, c.GetHeader("Authorization"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		setProducerContext(c, cfg, claims)
		c.Next()
	}
}

func validateBearer(validator auth.Validator, authHeader string) (*auth.Claims, error) {
	if strings.TrimSpace(authHeader) == "" {
		return nil, fmt.Errorf("missing Authorization header")
	}
	token := bearerToken(authHeader)
	if token == "" {
		return nil, fmt.Errorf("invalid Authorization format")
	}
	return validator.Validate(token)
}

func setProducerContext(c *gin.Context, cfg *config.Config, claims *auth.Claims) {
	c.Set("userClaims", claims)
	email := strings.TrimSpace(claims.Email)
	if email == "" {
		email = strings.TrimSpace(claims.Subject)
	}
	c.Set("userEmail", email)

	role := claims.Role()
	if role == "" && claims.HasScope(adminScope) {
		role = "ADMIN"
	}
	if role == "" && cfg != nil && cfg.Env == "dev" {
		role = strings.ToUpper(strings.TrimSpace(c.GetHeader("X-Role")))
	}
	if role == "" {
		role = "USER"
	}
	c.Set("userRole", role)
}
