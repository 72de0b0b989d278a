package v1

import (
	"strconv"

	"osaccount/internal/model"
	"osaccount/internal/service"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AccountHandler 账号管理处理器
type AccountHandler struct {
	manager *service.AccountManager
}

// NewAccountHandler 创建账号管理处理器实例
func NewAccountHandler(manager *service.AccountManager) *AccountHandler {
	return &AccountHandler{manager: manager}
}

// Register 注册路由
func (h *AccountHandler) Register(r *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	accounts := r.Group("/accounts", authMiddleware.HandleAuth())
	{
		accounts.POST("", h.Create)
		accounts.POST("/domain", h.CreateForDomain)
		accounts.GET("", h.List)
		accounts.GET("/current", h.Current)
		accounts.GET("/count", h.Count)
		accounts.GET("/activated", h.Activated)
		accounts.GET("/max", h.Max)
		accounts.GET("/multi", h.Multi)
		accounts.GET("/type", h.Type)
		accounts.GET("/self", h.Self)
		accounts.GET("/test", h.IsTest)

		account := accounts.Group("/:id")
		{
			account.GET("", h.Get)
			account.DELETE("", h.Remove)
			account.POST("/activate", h.Activate)
			account.GET("/active", h.IsActive)
			account.GET("/verified", h.IsVerified)
			account.PUT("/name", h.SetName)
			account.GET("/photo", h.GetPhoto)
			account.PUT("/photo", h.SetPhoto)
			account.GET("/constraints", h.GetConstraints)
			account.PUT("/constraints", h.SetConstraints)
			account.GET("/constraints/:name", h.IsConstraintEnabled)
			account.GET("/serial", h.Serial)
		}
	}

	r.GET("/serials/:serial", authMiddleware.HandleAuth(), h.BySerial)
	r.GET("/uids/:uid", authMiddleware.HandleAuth(), h.ByUID)
	r.POST("/domains/lookup", authMiddleware.HandleAuth(), h.ByDomain)
}

// Create 创建账号
func (h *AccountHandler) Create(c *gin.Context) {
	var req model.CreateOsAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	if req.DomainInfo != nil {
		respond(c, h.manager.CreateOsAccountForDomain(c.Request.Context(), req.Type, *req.DomainInfo))
		return
	}
	respond(c, h.manager.CreateOsAccount(c.Request.Context(), req.LocalName, req.Type))
}

// CreateDomainRequest 创建域账号请求
type CreateDomainRequest struct {
	Type       model.OsAccountType     `json:"type"`
	DomainInfo model.DomainAccountInfo `json:"domain_info"`
}

// CreateForDomain 创建绑定域账号的系统账号
func (h *AccountHandler) CreateForDomain(c *gin.Context) {
	var req CreateDomainRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.manager.CreateOsAccountForDomain(c.Request.Context(), req.Type, req.DomainInfo))
}

// List 列出全部用户账号
func (h *AccountHandler) List(c *gin.Context) {
	respond(c, h.manager.QueryAllCreatedOsAccounts(c.Request.Context()))
}

// Current 查询前台账号
func (h *AccountHandler) Current(c *gin.Context) {
	respond(c, h.manager.QueryCurrentOsAccount(c.Request.Context()))
}

// Count 已创建账号数
func (h *AccountHandler) Count(c *gin.Context) {
	respond(c, h.manager.GetCreatedOsAccountsCount(c.Request.Context()))
}

// Activated 已激活账号ID列表
func (h *AccountHandler) Activated(c *gin.Context) {
	respond(c, h.manager.QueryActivatedOsAccountIDs(c.Request.Context()))
}

// Max 最大账号数
func (h *AccountHandler) Max(c *gin.Context) {
	respond(c, h.manager.QueryMaxOsAccountNumber(c.Request.Context()))
}

// Multi 是否支持多账号
func (h *AccountHandler) Multi(c *gin.Context) {
	respond(c, h.manager.IsMultiOsAccountEnable(c.Request.Context()))
}

// Type 调用方所属账号的类型
func (h *AccountHandler) Type(c *gin.Context) {
	respond(c, h.manager.GetOsAccountType(c.Request.Context()))
}

// Self 调用方所属的账号ID
func (h *AccountHandler) Self(c *gin.Context) {
	respond(c, h.manager.GetOsAccountLocalIDFromProcess(c.Request.Context()))
}

// IsTest 是否为测试账号
func (h *AccountHandler) IsTest(c *gin.Context) {
	respond(c, h.manager.IsTestOsAccount(c.Request.Context()))
}

// Get 按ID查询账号
func (h *AccountHandler) Get(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.QueryOsAccountByID(c.Request.Context(), id))
}

// Remove 删除账号
func (h *AccountHandler) Remove(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.RemoveOsAccount(c.Request.Context(), id))
}

// Activate 切换前台账号
func (h *AccountHandler) Activate(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.ActivateOsAccount(c.Request.Context(), id))
}

// IsActive 账号是否为前台账号
func (h *AccountHandler) IsActive(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.IsOsAccountActived(c.Request.Context(), id))
}

// IsVerified 账号是否已验证
func (h *AccountHandler) IsVerified(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.IsOsAccountVerified(c.Request.Context(), id))
}

// SetNameRequest 修改名称请求
type SetNameRequest struct {
	LocalName string `json:"local_name"`
}

// SetName 修改账号名称
func (h *AccountHandler) SetName(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req SetNameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.manager.SetOsAccountName(c.Request.Context(), id, req.LocalName))
}

// GetPhoto 读取头像
func (h *AccountHandler) GetPhoto(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.GetOsAccountProfilePhoto(c.Request.Context(), id))
}

// SetPhotoRequest 设置头像请求
type SetPhotoRequest struct {
	Photo string `json:"photo"`
}

// SetPhoto 设置头像
func (h *AccountHandler) SetPhoto(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req SetPhotoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.manager.SetOsAccountProfilePhoto(c.Request.Context(), id, req.Photo))
}

// GetConstraints 读取账号全部约束
func (h *AccountHandler) GetConstraints(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.GetOsAccountAllConstraints(c.Request.Context(), id))
}

// SetConstraintsRequest 设置约束请求
type SetConstraintsRequest struct {
	Constraints []string `json:"constraints"`
	Enable      bool     `json:"enable"`
}

// SetConstraints 启用或禁用一组约束
func (h *AccountHandler) SetConstraints(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	var req SetConstraintsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.manager.SetOsAccountConstraints(c.Request.Context(), id, req.Constraints, req.Enable))
}

// IsConstraintEnabled 约束是否启用
func (h *AccountHandler) IsConstraintEnabled(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.IsOsAccountConstraintEnable(c.Request.Context(), id, c.Param("name")))
}

// Serial 按账号ID查询序列号
func (h *AccountHandler) Serial(c *gin.Context) {
	id, ok := intParam(c, "id")
	if !ok {
		return
	}
	respond(c, h.manager.GetSerialNumberByLocalID(c.Request.Context(), id))
}

// BySerial 按序列号查询账号ID
func (h *AccountHandler) BySerial(c *gin.Context) {
	serial, err := strconv.ParseInt(c.Param("serial"), 10, 64)
	if err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.manager.GetLocalIDBySerialNumber(c.Request.Context(), serial))
}

// ByUID 按UID查询账号ID
func (h *AccountHandler) ByUID(c *gin.Context) {
	uid, ok := intParam(c, "uid")
	if !ok {
		return
	}
	respond(c, h.manager.GetOsAccountLocalIDFromUID(c.Request.Context(), uid))
}

// ByDomain 按域账号查询账号ID
func (h *AccountHandler) ByDomain(c *gin.Context) {
	var req model.DomainAccountInfo
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	respond(c, h.manager.GetOsAccountLocalIDFromDomain(c.Request.Context(), req))
}
