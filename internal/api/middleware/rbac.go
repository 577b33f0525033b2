package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"

	apperrors "smartspray.io/notifier/internal/pkg/errors"
)

// RoleAdmin is the platform role allowed to manage other users' notifications.
const RoleAdmin = "admin"

// IsAdmin reports whether the authenticated caller holds RoleAdmin.
func IsAdmin(c *gin.Context) bool {
	return slices.Contains(GetRoles(c.Request.Context()), RoleAdmin)
}

// RequireRole aborts with 403 unless the caller holds role. Admins pass
// every role check.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		roles := GetRoles(c.Request.Context())
		if roles == nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"code": apperrors.CodeForbidden, "message": "no roles in context",
			})
			return
		}
		if slices.Contains(roles, RoleAdmin) || slices.Contains(roles, role) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"code": apperrors.CodeForbidden, "message": "insufficient permissions",
		})
	}
}
