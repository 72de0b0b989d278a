package model

// SessionState IDM会话状态
type SessionState string

const (
	SessionStateIdle           SessionState = "idle"
	SessionStateOpen           SessionState = "open"
	SessionStateEnrolling      SessionState = "enrolling"
	SessionStateAuthenticating SessionState = "authenticating"
	SessionStateClosed         SessionState = "closed"
)

// IsBusy 是否有进行中的录入或认证
func (s SessionState) IsBusy() bool {
	return s == SessionStateEnrolling || s == SessionStateAuthenticating
}
