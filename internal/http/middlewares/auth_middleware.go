package middlewares

import (
	"net/http"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/session"
	"github.com/gin-gonic/gin"
)

// Keep this small interface so tests can fake it easily.
type SessionReader interface {
	Current(c *gin.Context) (session.State, bool)
}

type AuthMiddleware struct {
	sessions SessionReader
}

func NewAuthMiddleware(sessions SessionReader) *AuthMiddleware {
	return &AuthMiddleware{sessions: sessions}
}

// LoadIdentity stashes the session identity on the context for every request,
// without enforcing anything.
func (m *AuthMiddleware) LoadIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		if st, ok := m.sessions.Current(c); ok {
			c.Set(CtxUserID, st.UserID)
			c.Set(CtxRole, st.Role)
		}
		c.Next()
	}
}

// RequireAuth refuses anonymous clients with a plain 403.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		st, ok := m.sessions.Current(c)
		if !ok {
			forbid(c)
			return
		}

		c.Set(CtxUserID, st.UserID)
		c.Set(CtxRole, st.Role)

		c.Next()
	}
}

func forbid(c *gin.Context) {
	c.Abort()
	c.String(http.StatusForbidden, "Forbidden")
}

// Optional helpers so handlers don't need to know the magic keys.

func UserIDFromContext(c *gin.Context) (int64, bool) {
	v, ok := c.Get(CtxUserID)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

func RoleFromContext(c *gin.Context) (user.Role, bool) {
	v, ok := c.Get(CtxRole)
	if !ok {
		return "", false
	}
	role, ok := v.(user.Role)
	return role, ok
}
