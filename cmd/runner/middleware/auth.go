package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// OrgIDKey is the context key for the caller's organization
	OrgIDKey ContextKey = "org_id"
	// UserIDKey is the context key for the caller's identity
	UserIDKey ContextKey = "user_id"
	// RoleKey is the context key for the caller's role
	RoleKey ContextKey = "role"
)

// Roles the intake endpoints accept. The gateway in front of this service
// validates the JWT and forwards the claims as plain headers.
const (
	RoleOwner  = "OWNER"
	RoleAdmin  = "ADMIN"
	RoleMember = "MEMBER"
)

// ExtractIdentity pulls the gateway-supplied identity headers
// (X-Org-Id, X-User-Id, X-User-Role) into the request context.
//
// Usage:
//
//	e := echo.New()
//	e.Use(middleware.ExtractIdentity())
func ExtractIdentity() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if orgID := c.Request().Header.Get("X-Org-Id"); orgID != "" {
				c.Set(string(OrgIDKey), orgID)
			}
			if userID := c.Request().Header.Get("X-User-Id"); userID != "" {
				c.Set(string(UserIDKey), userID)
			}
			if role := c.Request().Header.Get("X-User-Role"); role != "" {
				c.Set(string(RoleKey), role)
			}
			return next(c)
		}
	}
}

// RequireRole rejects requests whose role is missing or outside the
// allowed set
func RequireRole(allowed ...string) echo.MiddlewareFunc {
	allowedSet := make(map[string]bool, len(allowed))
	for _, role := range allowed {
		allowedSet[role] = true
	}

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowedSet[GetRole(c)] {
				return c.JSON(http.StatusForbidden, map[string]interface{}{
					"error": "Insufficient permissions",
				})
			}
			return next(c)
		}
	}
}

// GetOrgID retrieves the organization id from the request context.
// Returns empty string if not set.
func GetOrgID(c echo.Context) string {
	return contextString(c, OrgIDKey)
}

// GetUserID retrieves the user id from the request context.
// Returns empty string if not set.
func GetUserID(c echo.Context) string {
	return contextString(c, UserIDKey)
}

// GetRole retrieves the role from the request context.
// Returns empty string if not set.
func GetRole(c echo.Context) string {
	return contextString(c, RoleKey)
}

func contextString(c echo.Context, key ContextKey) string {
	value, ok := c.Get(string(key)).(string)
	if !ok {
		return ""
	}
	return value
}
