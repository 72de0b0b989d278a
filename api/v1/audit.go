package v1

import (
	"errors"
	"net/http"
	"sort"
	"time"

	"osaccount/internal/audit"
	"osaccount/internal/model"
	"osaccount/pkg/api"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
)

var errAuditDisabled = errors.New("audit log is disabled")

// AuditHandler 审计处理器
type AuditHandler struct {
	reader *audit.Reader
}

// NewAuditHandler 创建审计处理器实例，reader为nil表示未启用审计
func NewAuditHandler(reader *audit.Reader) *AuditHandler {
	return &AuditHandler{reader: reader}
}

// Register 注册路由
func (h *AuditHandler) Register(r *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	auditGroup := r.Group("/audit",
		authMiddleware.HandleAuth(),
		middleware.RequirePermission(model.PermissionManageLocalAccounts),
	)
	{
		auditGroup.GET("/logs", h.GetLogs)     // 查询日志
		auditGroup.GET("/verify", h.VerifyLog) // 校验哈希链
	}
}

// LogQueryRequest 日志查询请求
type LogQueryRequest struct {
	StartTime  *time.Time        `form:"start_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EndTime    *time.Time        `form:"end_time" time_format:"2006-01-02T15:04:05Z07:00"`
	EventTypes []audit.EventType `form:"event_types"`
	LocalID    *int              `form:"local_id"`
	Limit      int               `form:"limit"`
	Offset     int               `form:"offset"`
}

// GetLogs 查询审计日志
func (h *AuditHandler) GetLogs(c *gin.Context) {
	if h.reader == nil {
		api.Error(c, http.StatusNotFound, "审计未启用", errAuditDisabled)
		return
	}
	var req LogQueryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		api.Error(c, http.StatusBadRequest, "参数错误", err)
		return
	}

	// 设置默认值
	if req.Limit <= 0 {
		req.Limit = 50
	}
	if req.Limit > 1000 {
		req.Limit = 1000
	}

	logs, err := h.reader.ReadLogs(c.Request.Context(), audit.QueryParams{
		StartTime:  req.StartTime,
		EndTime:    req.EndTime,
		EventTypes: req.EventTypes,
		LocalID:    req.LocalID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		api.Error(c, http.StatusInternalServerError, "读取审计日志失败", err)
		return
	}

	// 按时间戳降序排序
	sort.Slice(logs, func(i, j int) bool {
		return logs[i].Timestamp.After(logs[j].Timestamp)
	})

	api.Success(c, gin.H{
		"total": len(logs),
		"items": logs,
	})
}

// VerifyLog 校验审计日志哈希链的完整性
func (h *AuditHandler) VerifyLog(c *gin.Context) {
	if h.reader == nil {
		api.Error(c, http.StatusNotFound, "审计未启用", errAuditDisabled)
		return
	}
	result, err := h.reader.Verify(c.Request.Context())
	if err != nil {
		api.Error(c, http.StatusInternalServerError, "校验审计日志失败", err)
		return
	}
	api.Success(c, result)
}
