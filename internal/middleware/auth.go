package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/stayspace/hooks/internal/pkg/jwt"
	"github.com/stayspace/hooks/internal/pkg/response"
)

const (
	ContextKeyUserID = "user_id"
	ContextKeyRole   = "role"

	RoleAdmin = "admin"
)

// AdminAuth enforces a valid identity-service token with the admin role.
// Missing/invalid tokens get 401, valid non-admin tokens get 403; both
// short-circuit before any handler runs.
func AdminAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			response.Unauthorized(c)
			return
		}
		claims, err := jwt.Parse(token)
		if err != nil {
			response.Unauthorized(c)
			return
		}
		if claims.Role != RoleAdmin {
			response.Forbidden(c)
			return
		}
		c.Set(ContextKeyUserID, claims.UserID)
		c.Set(ContextKeyRole, claims.Role)
		c.Next()
	}
}

// CurrentUserID extracts the authenticated user ID from context.
func CurrentUserID(c *gin.Context) string {
	v, _ := c.Get(ContextKeyUserID)
	id, _ := v.(string)
	return id
}

func extractToken(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		return NormalizeToken(auth)
	}
	if raw, err := c.Cookie("ss-token"); err == nil {
		return NormalizeToken(raw)
	}
	return ""
}

// NormalizeToken trims spaces and strips optional Bearer prefix.
func NormalizeToken(raw string) string {
	token := strings.TrimSpace(raw)
	if token == "" {
		return ""
	}
	if strings.HasPrefix(strings.ToLower(token), "bearer ") {
		return strings.TrimSpace(token[7:])
	}
	return token
}
