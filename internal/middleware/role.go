package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/rwalker123/draco-sub020/pkg/response"
)

// RequireRole returns a middleware allowing only callers whose account-level
// role is one of the given values. Runs after JWT, which sets the role in
// context. Contest-level scoring rights are a separate grant checked in the
// live service, not here.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role, ok := c.Get(ContextUserRole)
		if !ok {
			response.Unauthorized(c, "missing user context")
			c.Abort()
			return
		}
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		response.Forbidden(c, "insufficient permissions")
		c.Abort()
	}
}
