package v1

import (
	"strconv"

	"osaccount/internal/model"
	"osaccount/internal/service"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// IDMHandler 身份管理处理器，录入与更新凭据走WebSocket流
type IDMHandler struct {
	identity *service.IdentityManager
}

// NewIDMHandler 创建身份管理处理器实例
func NewIDMHandler(identity *service.IdentityManager) *IDMHandler {
	return &IDMHandler{identity: identity}
}

// Register 注册路由
func (h *IDMHandler) Register(r *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	idm := r.Group("/idm", authMiddleware.HandleAuth())
	{
		idm.POST("/cancel", h.Cancel)
		idm.POST("/:id/session", h.OpenSession)
		idm.DELETE("/:id/session", h.CloseSession)
		idm.POST("/:id/challenge", h.RenewChallenge)
		idm.GET("/:id/credentials", h.GetAuthInfo)
		idm.DELETE("/:id/credentials", h.DelUser)
		idm.DELETE("/:id/credentials/:cid", h.DelCred)
	}
}

// ChallengeResponse 挑战值响应，以字符串编码避免精度丢失
type ChallengeResponse struct {
	Challenge uint64 `json:"challenge,string"`
}

func challengeResponse(challenge uint64) interface{} {
	return ChallengeResponse{Challenge: challenge}
}

// OpenSession 打开IDM会话
func (h *IDMHandler) OpenSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respondWith(c, h.identity.OpenSession(c.Request.Context(), id), challengeResponse)
}

// CloseSession 关闭IDM会话
func (h *IDMHandler) CloseSession(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.identity.CloseSession(c.Request.Context(), id))
}

// RenewChallenge 更换会话挑战值
func (h *IDMHandler) RenewChallenge(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respondWith(c, h.identity.RenewChallenge(c.Request.Context(), id), challengeResponse)
}

// CancelRequest 取消请求
type CancelRequest struct {
	Challenge uint64 `json:"challenge,string"`
}

// Cancel 取消会话中进行中的操作
func (h *IDMHandler) Cancel(c *gin.Context) {
	var req CancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.identity.Cancel(c.Request.Context(), req.Challenge))
}

// GetAuthInfo 查询已录入的凭据，auth_type为空时返回全部
func (h *IDMHandler) GetAuthInfo(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var authType model.AuthType
	if s := c.Query("auth_type"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			badRequest(c, err)
			return
		}
		authType = model.AuthType(v)
	}
	respond(c, h.identity.GetAuthInfo(c.Request.Context(), id, authType))
}

// TokenRequest 携带认证令牌的请求
type TokenRequest struct {
	Token []byte `json:"token"`
}

// DelUser 删除账号的全部凭据
func (h *IDMHandler) DelUser(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.identity.DelUser(c.Request.Context(), id, req.Token))
}

// DelCred 删除一个凭据
func (h *IDMHandler) DelCred(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	credentialID, err := strconv.ParseUint(c.Param("cid"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.identity.DelCred(c.Request.Context(), id, credentialID, req.Token))
}
