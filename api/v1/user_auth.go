package v1

import (
	"strconv"

	"osaccount/internal/model"
	"osaccount/internal/service"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// UserAuthHandler 用户认证处理器，认证本身走WebSocket流
type UserAuthHandler struct {
	auth *service.UserAuth
}

// NewUserAuthHandler 创建用户认证处理器实例
func NewUserAuthHandler(auth *service.UserAuth) *UserAuthHandler {
	return &UserAuthHandler{auth: auth}
}

// Register 注册路由
func (h *UserAuthHandler) Register(r *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	auth := r.Group("/auth", authMiddleware.HandleAuth())
	{
		auth.GET("/status", h.Status)
		auth.POST("/cancel", h.Cancel)
		auth.POST("/property/get", h.GetProperty)
		auth.POST("/property/set", h.SetProperty)
	}
}

// StatusResponse 可用状态
type StatusResponse struct {
	Status     model.ResultCode `json:"status"`
	StatusName string           `json:"status_name"`
}

// Status 探测前台账号的认证可用状态
func (h *UserAuthHandler) Status(c *gin.Context) {
	authType, err := strconv.Atoi(c.Query("auth_type"))
	if err != nil {
		badRequest(c, err)
		return
	}
	trustLevel, err := strconv.Atoi(c.Query("trust_level"))
	if err != nil {
		badRequest(c, err)
		return
	}
	task := h.auth.GetAvailableStatus(c.Request.Context(), model.AuthType(authType), model.AuthTrustLevel(trustLevel))
	respondWith(c, task, func(code model.ResultCode) interface{} {
		return StatusResponse{Status: code, StatusName: code.String()}
	})
}

// CancelAuthRequest 取消认证请求
type CancelAuthRequest struct {
	ContextID uint64 `json:"context_id,string"`
}

// Cancel 取消进行中的认证
func (h *UserAuthHandler) Cancel(c *gin.Context) {
	var req CancelAuthRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.auth.CancelAuth(c.Request.Context(), req.ContextID))
}

// GetProperty 读取执行器属性
func (h *UserAuthHandler) GetProperty(c *gin.Context) {
	var req model.GetPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.auth.GetProperty(c.Request.Context(), &req))
}

// SetProperty 设置执行器属性
func (h *UserAuthHandler) SetProperty(c *gin.Context) {
	var req model.SetPropertyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.auth.SetProperty(c.Request.Context(), &req))
}
