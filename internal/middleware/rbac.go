package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/webexam/internal/model"
	"github.com/stemsi/webexam/internal/response"
)

// RequireRole checks that the authenticated user has one of the given roles.
// It must run after RequireAuth.
func RequireRole(roles ...model.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		for _, r := range roles {
			if claims.Role == r {
				c.Next()
				return
			}
		}

		response.AbortFail(c, http.StatusForbidden, response.ErrRoleNotAllowed)
	}
}
