package auth

import (
	"strings"
	"time"
)

// Claims represents authentication token claims
type Claims struct {
	Subject   string
	Email     string
	Issuer    string
	Audience  []string
	ExpiresAt time.Time
	IssuedAt  time.Time
	Scopes    []string
	Raw       map[string]interface{}
}

// HasScope checks if the claims contain a specific scope
func (c *Claims) HasScope(scope string) bool {
	if c == nil {
		return false
	}
	for _, s := range c.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

// Role returns the upper-cased "role" claim, or "" when absent.
func (c *Claims) Role() string {
	if c == nil {
		return ""
	}
	v, _ := c.Raw["role"].(string)
	return strings.ToUpper(strings.TrimSpace(v))
}

// Validator validates authentication tokens
type Validator interface {
	Validate(token string) (*Claims, error)
}

// Config configures a JWKS-backed validator.
type Config struct {
	JwksURL     string
	Issuer      string
	Audience    string
	ClockSkew   time.Duration
	HTTPTimeout time.Duration
}
