package model

// EventType 账号事件类型
type EventType string

const (
	EventActivating EventType = "activating"
	EventActivate   EventType = "activate"
)

// Valid 判断事件类型是否受支持
func (e EventType) Valid() bool {
	return e == EventActivating || e == EventActivate
}

// AccountEvent 账号切换事件
type AccountEvent struct {
	Type    EventType `json:"type"`
	LocalID int       `json:"local_id"`
}
