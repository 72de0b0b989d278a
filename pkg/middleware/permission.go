package middleware

import (
	"errors"
	"net/http"

	"osaccount/pkg/api"

	"github.com/gin-gonic/gin"
)

// RequirePermission 要求调用方至少持有一项权限，须放在HandleAuth之后
func RequirePermission(permissions ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller := GetCallerFromContext(c)
		if caller == nil {
			api.Error(c, http.StatusUnauthorized, "无效的访问令牌", errMissingToken)
			c.Abort()
			return
		}
		for _, p := range permissions {
			if caller.HasPermission(p) {
				c.Next()
				return
			}
		}
		api.Error(c, http.StatusForbidden, "权限不足", errors.New("permission denied"))
		c.Abort()
	}
}
