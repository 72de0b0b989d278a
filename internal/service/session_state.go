package service

import (
	"fmt"
	"sync"

	"osaccount/internal/model"
)

// sessionStateManager IDM会话状态管理
type sessionStateManager struct {
	mu    sync.Mutex
	state model.SessionState
}

// newSessionStateManager 创建处于Idle状态的状态管理器
func newSessionStateManager() *sessionStateManager {
	return &sessionStateManager{state: model.SessionStateIdle}
}

// State 获取当前状态
func (sm *sessionStateManager) State() model.SessionState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// SetState 设置状态
func (sm *sessionStateManager) SetState(to model.SessionState) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !isValidSessionTransition(sm.state, to) {
		return sm.transitionError(to)
	}
	sm.state = to
	return nil
}

// Begin 开始录入或认证，只能从SessionOpen进入
func (sm *sessionStateManager) Begin(to model.SessionState) error {
	if !to.IsBusy() {
		return fmt.Errorf("%w: %s is not a sub-operation state", ErrInvalidParameters, to)
	}
	return sm.SetState(to)
}

// End 结束进行中的操作并回到SessionOpen，会话已关闭时不做处理
func (sm *sessionStateManager) End() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if sm.state.IsBusy() {
		sm.state = model.SessionStateOpen
	}
}

func (sm *sessionStateManager) transitionError(to model.SessionState) error {
	switch {
	case sm.state.IsBusy():
		return fmt.Errorf("%w: %s in progress", ErrSessionBusy, sm.state)
	case sm.state == model.SessionStateClosed || sm.state == model.SessionStateIdle:
		return ErrSessionNotOpen
	default:
		return fmt.Errorf("invalid session transition from %s to %s", sm.state, to)
	}
}

// isValidSessionTransition 检查状态转换是否有效
func isValidSessionTransition(from, to model.SessionState) bool {
	switch from {
	case model.SessionStateIdle:
		return to == model.SessionStateOpen
	case model.SessionStateOpen:
		return to == model.SessionStateEnrolling || to == model.SessionStateAuthenticating || to == model.SessionStateClosed
	case model.SessionStateEnrolling, model.SessionStateAuthenticating:
		return to == model.SessionStateOpen || to == model.SessionStateClosed
	default:
		return false
	}
}
