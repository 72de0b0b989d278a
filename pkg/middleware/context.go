package middleware

import (
	"osaccount/internal/service"

	"github.com/gin-gonic/gin"
)

// GetCallerFromContext 从上下文中获取调用方信息
func GetCallerFromContext(c *gin.Context) *service.Caller {
	if v, exists := c.Get(ContextKeyCaller); exists {
		if caller, ok := v.(*service.Caller); ok {
			return caller
		}
	}
	return nil
}

// MustGetCallerFromContext 从上下文中获取调用方信息，如果不存在则panic
func MustGetCallerFromContext(c *gin.Context) *service.Caller {
	caller := GetCallerFromContext(c)
	if caller == nil {
		panic("caller not found in context")
	}
	return caller
}
