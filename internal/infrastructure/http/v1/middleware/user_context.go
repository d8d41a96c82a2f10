package middleware

import (
	"github.com/gin-gonic/gin"

	"docseq/internal/core/security"
)

// UserContext derives the AccessScope of the authenticated user once and
// stores it in the request context for the domain layer.
//
// This middleware must run AFTER Auth.
//
//	protected.Use(middleware.Auth(cfg.JWTValidator))
//	protected.Use(middleware.UserContext())
func UserContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(security.WithScope(ctx, security.NewAccessScope(ctx)))
		c.Next()
	}
}
