package middlewares

import (
	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/gin-gonic/gin"
)

// RequireRole expects RequireAuth to have run. Unknown and mismatched roles
// both get 403.
func (m *AuthMiddleware) RequireRole(required user.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role != required {
			forbid(c)
			return
		}
		c.Next()
	}
}
