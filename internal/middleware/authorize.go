package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"elearning/internal/apperr"
	"elearning/internal/models"
)

// RequireRoles must run after Authenticate.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	roleSet := make(map[models.UserRole]struct{}, len(roles))
	for _, role := range roles {
		roleSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			abort(c, apperr.New(apperr.KindUnauthenticated, "Please login to access this resource"))
			return
		}

		if _, ok := roleSet[user.Role]; !ok {
			abort(c, apperr.Forbidden(fmt.Sprintf("Role: %s is not allowed to access this resource", user.Role)))
			return
		}

		c.Next()
	}
}
