package middleware

import (
	"net/http"
	"slices"

	"github.com/MrEthical07/blogauth/domain"
	"github.com/gin-gonic/gin"
)

// RequireRole admits identities holding any of roles. It must run after
// RequireIdentity.
func RequireRole(roles ...domain.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if !slices.Contains(roles, id.Role) {
			abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}

// Permissions answers whether a role holds a named permission.
type Permissions interface {
	Allows(role domain.Role, permission string) bool
}

// RequirePermission admits identities whose role holds permission in perms.
// It must run after RequireIdentity.
func RequirePermission(perms Permissions, permission string) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := Identity(c)
		if !ok {
			abort(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		if perms == nil || !perms.Allows(id.Role, permission) {
			abort(c, http.StatusForbidden, "forbidden")
			return
		}
		c.Next()
	}
}
