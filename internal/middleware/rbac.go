package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/unipoints/course-api/internal/models"
	appErrors "github.com/unipoints/course-api/pkg/errors"
	"github.com/unipoints/course-api/pkg/response"
)

// RequireRoles rejects requests whose actor lacks one of the allowed roles.
// The service layer repeats the check; this keeps obviously unauthorized
// traffic away from the handlers.
func RequireRoles(roles ...models.UserRole) gin.HandlerFunc {
	allowed := make(map[models.UserRole]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}
		if _, ok := allowed[actor.Role]; !ok {
			response.Error(c, appErrors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}
