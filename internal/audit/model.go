package audit

import (
	"encoding/json"
	"time"
)

// EventType 审计事件类型
type EventType string

const (
	// 账号管理事件
	EventAccountCreate   EventType = "account_create"
	EventAccountRemove   EventType = "account_remove"
	EventAccountActivate EventType = "account_activate"
	EventAccountRename   EventType = "account_rename"
	EventAccountPhoto    EventType = "account_photo"
	EventConstraintsSet  EventType = "constraints_set"

	// 身份管理事件
	EventSessionOpen      EventType = "idm_session_open"
	EventSessionClose     EventType = "idm_session_close"
	EventCredentialAdd    EventType = "credential_add"
	EventCredentialUpdate EventType = "credential_update"
	EventCredentialDelete EventType = "credential_delete"
	EventUserDelete       EventType = "idm_user_delete"

	// 认证事件
	EventAuthSuccess EventType = "auth_success"
	EventAuthFailure EventType = "auth_failure"
)

// AuditLog 审计日志结构
type AuditLog struct {
	ID        string    `json:"id"`         // 日志ID
	Timestamp time.Time `json:"timestamp"`  // 时间戳
	EventType EventType `json:"event_type"` // 事件类型
	LocalID   int       `json:"local_id"`   // 目标账号
	CallerUID int       `json:"caller_uid"` // 调用方UID，未知时为-1

	// 事件详情
	Details map[string]interface{} `json:"details,omitempty"`

	// 哈希链
	PrevHash string `json:"prev_hash"` // 前一条日志的哈希
	Hash     string `json:"hash"`      // 当前日志的哈希
}

// String 返回日志的JSON字符串表示
func (l *AuditLog) String() string {
	data, _ := json.Marshal(l)
	return string(data)
}

// QueryParams 审计日志查询参数
type QueryParams struct {
	StartTime  *time.Time  `json:"start_time"`  // 开始时间
	EndTime    *time.Time  `json:"end_time"`    // 结束时间
	EventTypes []EventType `json:"event_types"` // 事件类型
	LocalID    *int        `json:"local_id"`    // 目标账号
	Limit      int         `json:"limit"`       // 返回数量限制
	Offset     int         `json:"offset"`      // 偏移量
}

// VerifyResult 哈希链校验结果
type VerifyResult struct {
	Total    int    `json:"total"`     // 日志总数
	Valid    bool   `json:"valid"`     // 链是否完整
	BrokenAt int    `json:"broken_at"` // 第一条校验失败的序号，完整时为-1
	LastHash string `json:"last_hash"` // 最后一条日志的哈希
}
