package types

import (
	"errors"
	"fmt"

	"osaccount/internal/model"
)

var (
	// ErrNoInputer 未注册数据输入者
	ErrNoInputer = errors.New("no inputer registered")
	// ErrUnsupportedProperty 不支持的属性
	ErrUnsupportedProperty = errors.New("unsupported property")
	// ErrInvalidSample 采集数据无效
	ErrInvalidSample = errors.New("invalid sample")
	// ErrInvalidTemplate 模板数据损坏
	ErrInvalidTemplate = errors.New("invalid template")
)

// ExecutorError 执行器错误，携带结果码
type ExecutorError struct {
	Code         model.ResultCode
	Message      string
	RemainTimes  int32
	FreezingTime int32 // 毫秒
	Cause        error
}

func (e *ExecutorError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ExecutorError) Unwrap() error {
	return e.Cause
}

// NewExecutorError 创建执行器错误
func NewExecutorError(code model.ResultCode, message string, cause error) error {
	return &ExecutorError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// Failed 比对失败
func Failed(remainTimes int32) error {
	return &ExecutorError{
		Code:        model.ResultFail,
		Message:     "credential mismatch",
		RemainTimes: remainTimes,
	}
}

// Locked 连续失败后锁定
func Locked(freezingTime int32) error {
	return &ExecutorError{
		Code:         model.ResultLocked,
		Message:      "executor locked",
		FreezingTime: freezingTime,
	}
}

// AsExecutorError 从错误链中取出执行器错误
func AsExecutorError(err error) (*ExecutorError, bool) {
	var execErr *ExecutorError
	if errors.As(err, &execErr) {
		return execErr, true
	}
	return nil, false
}
