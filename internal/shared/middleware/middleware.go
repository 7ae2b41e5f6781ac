package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"tableside/internal/shared/config"
	"tableside/internal/shared/utils/response"
	"tableside/internal/users"
	"tableside/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// Context keys set by the auth middlewares
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextUserRole  = "user_role"
)

// parseAccessToken validates a bearer header and returns its claims.
// Only HMAC-signed tokens of type "access" are accepted.
func parseAccessToken(authHeader, secret string) (jwt.MapClaims, bool) {
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, false
	}

	token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, false
	}
	if tokenType, ok := claims["type"]; !ok || tokenType != "access" {
		return nil, false
	}
	return claims, true
}

func setIdentity(c *gin.Context, claims jwt.MapClaims) {
	c.Set(ContextUserID, claims["user_id"])
	c.Set(ContextUserEmail, claims["email"])
	c.Set(ContextUserRole, claims["role"])
}

// JWTAuthWithConfig rejects requests without a valid access token
func JWTAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.GetDefault().LogAuthFailure(c.Request.Context(), "missing authorization header", c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Unauthorized", nil, nil)
			c.Abort()
			return
		}

		claims, ok := parseAccessToken(authHeader, cfg.JWT.Secret)
		if !ok {
			logger.GetDefault().LogAuthFailure(c.Request.Context(), "invalid or expired token", c.ClientIP())
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Unauthorized", nil, nil)
			c.Abort()
			return
		}

		setIdentity(c, claims)
		c.Next()
	}
}

// OptionalAuthWithConfig injects identity when a valid token is present and never rejects
func OptionalAuthWithConfig(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		if claims, ok := parseAccessToken(authHeader, cfg.JWT.Secret); ok {
			setIdentity(c, claims)
		}
		c.Next()
	}
}

// RequireRoles checks if user has any of the required roles
func RequireRoles(requiredRoles ...users.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := CurrentRole(c)
		if !ok {
			response.RespondJSON(c, "error", http.StatusUnauthorized, "Unauthorized", nil, nil)
			c.Abort()
			return
		}

		for _, required := range requiredRoles {
			if role == required {
				c.Next()
				return
			}
		}

		response.RespondJSON(c, "error", http.StatusForbidden, "Insufficient permissions", nil, nil)
		c.Abort()
	}
}

// RequireStaff allows any floor role
func RequireStaff() gin.HandlerFunc {
	return RequireRoles(users.RoleOwner, users.RoleStaff, users.RoleAdmin)
}

// CurrentRole returns the authenticated role, if any
func CurrentRole(c *gin.Context) (users.Role, bool) {
	raw, exists := c.Get(ContextUserRole)
	if !exists {
		return "", false
	}
	role, ok := raw.(string)
	if !ok || !users.IsValidRole(role) {
		return "", false
	}
	return users.Role(role), true
}

// IsStaff reports whether the request carries a staff session
func IsStaff(c *gin.Context) bool {
	_, ok := CurrentRole(c)
	return ok
}

// CurrentUserID returns the authenticated user id parsed from the token claims
func CurrentUserID(c *gin.Context) (uint, bool) {
	raw, exists := c.Get(ContextUserID)
	if !exists {
		return 0, false
	}
	var s string
	switch v := raw.(type) {
	case string:
		s = v
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
