package router

import (
	"net/http"

	v1 "osaccount/api/v1"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Router 路由管理器
type Router struct {
	engine          *gin.Engine
	authMiddleware  *middleware.AuthMiddleware
	accountHandler  *v1.AccountHandler
	idmHandler      *v1.IDMHandler
	userAuthHandler *v1.UserAuthHandler
	auditHandler    *v1.AuditHandler
	streamHandler   *v1.StreamHandler
}

// NewRouter 创建路由管理器实例
func NewRouter(
	engine *gin.Engine,
	authMiddleware *middleware.AuthMiddleware,
	accountHandler *v1.AccountHandler,
	idmHandler *v1.IDMHandler,
	userAuthHandler *v1.UserAuthHandler,
	auditHandler *v1.AuditHandler,
	streamHandler *v1.StreamHandler,
) *Router {
	return &Router{
		engine:          engine,
		authMiddleware:  authMiddleware,
		accountHandler:  accountHandler,
		idmHandler:      idmHandler,
		userAuthHandler: userAuthHandler,
		auditHandler:    auditHandler,
		streamHandler:   streamHandler,
	}
}

// RegisterRoutes 注册所有路由
func (r *Router) RegisterRoutes() {
	// 健康检查
	r.engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	// API v1
	api := r.engine.Group("/api/v1")
	{
		// 账号管理
		r.accountHandler.Register(api, r.authMiddleware)
		// 身份管理（会话、凭据）
		r.idmHandler.Register(api, r.authMiddleware)
		// 用户认证
		r.userAuthHandler.Register(api, r.authMiddleware)
		// 审计日志
		r.auditHandler.Register(api, r.authMiddleware)
		// 回调类操作走WebSocket
		r.streamHandler.Register(api, r.authMiddleware)
	}
}

// Engine 返回底层gin引擎
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
