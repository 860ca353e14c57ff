package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

// RequireRoles only lets through callers holding one of the roles. It must run after JWT.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := Claims(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "role "+string(claims.Role)+" cannot access this resource"))
			c.Abort()
			return
		}
		c.Next()
	}
}

// Staff is shorthand for every role except ROLE_USER.
func Staff() gin.HandlerFunc {
	return RequireRoles(models.RoleResolver, models.RoleDeptAdmin, models.RoleReviewer, models.RoleSuperAdmin)
}
