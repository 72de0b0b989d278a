package service

import (
	"context"
	"errors"
	"fmt"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
)

var (
	// ErrInvalidParameters 参数无效
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrPermissionDenied 调用方缺少权限
	ErrPermissionDenied = errors.New("permission denied")
	// ErrConstraintBlocked 账号约束禁止该操作
	ErrConstraintBlocked = errors.New("operation blocked by account constraint")

	// ErrAccountNotFound 账号不存在
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountLimit 账号数量已达上限
	ErrAccountLimit = errors.New("account limit reached")
	// ErrSystemAccount 系统账号不支持该操作
	ErrSystemAccount = errors.New("operation not allowed on system account")
	// ErrLastAccount 不能删除最后一个用户账号
	ErrLastAccount = errors.New("cannot remove the last account")
	// ErrDomainBound 域账号已绑定其他账号
	ErrDomainBound = errors.New("domain account already bound")
	// ErrMultiDisabled 未启用多账号
	ErrMultiDisabled = errors.New("multiple accounts disabled")

	// ErrSessionExists 账号已有打开的会话
	ErrSessionExists = errors.New("session already open")
	// ErrSessionNotOpen 会话未打开
	ErrSessionNotOpen = errors.New("session not open")
	// ErrSessionBusy 会话中有进行中的操作
	ErrSessionBusy = errors.New("session busy")
	// ErrChallengeMismatch 挑战值不匹配
	ErrChallengeMismatch = errors.New("challenge mismatch")

	// ErrTypeNotSupported 认证类型不支持
	ErrTypeNotSupported = errors.New("auth type not supported")
	// ErrTrustLevelNotSupported 可信等级不满足
	ErrTrustLevelNotSupported = errors.New("trust level not supported")
	// ErrNotEnrolled 未录入凭据
	ErrNotEnrolled = errors.New("credential not enrolled")
	// ErrEnrollmentLimit 凭据数量已达上限
	ErrEnrollmentLimit = errors.New("enrollment limit reached")
	// ErrCredentialNotFound 凭据不存在
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrTokenRequired 缺少认证令牌
	ErrTokenRequired = errors.New("auth token required")
	// ErrInvalidToken 认证令牌无效、过期或已使用
	ErrInvalidToken = errors.New("invalid auth token")

	// ErrContextNotFound 认证上下文不存在或已结束
	ErrContextNotFound = errors.New("auth context not found")
	// ErrCanceled 操作已取消
	ErrCanceled = errors.New("operation canceled")
	// ErrTimeout 操作超时
	ErrTimeout = errors.New("operation timed out")
	// ErrEventNotSupported 不支持的事件类型
	ErrEventNotSupported = errors.New("event type not supported")
)

// resultCodes 哨兵错误到结果码的映射，按顺序匹配
var resultCodes = []struct {
	err  error
	code model.ResultCode
}{
	{ErrInvalidParameters, model.ResultInvalidParameters},
	{ErrAccountLimit, model.ResultInvalidParameters},
	{ErrSystemAccount, model.ResultInvalidParameters},
	{ErrDomainBound, model.ResultInvalidParameters},
	{ErrLastAccount, model.ResultInvalidParameters},
	{ErrMultiDisabled, model.ResultInvalidParameters},
	{ErrEnrollmentLimit, model.ResultGeneralError},
	{ErrChallengeMismatch, model.ResultInvalidParameters},
	{ErrTokenRequired, model.ResultInvalidParameters},
	{ErrEventNotSupported, model.ResultInvalidParameters},
	{types.ErrUnsupportedProperty, model.ResultInvalidParameters},
	{ErrAccountNotFound, model.ResultNotEnrolled},
	{ErrNotEnrolled, model.ResultNotEnrolled},
	{ErrCredentialNotFound, model.ResultNotEnrolled},
	{ErrSessionExists, model.ResultBusy},
	{ErrSessionBusy, model.ResultBusy},
	{ErrTypeNotSupported, model.ResultTypeNotSupport},
	{ErrTrustLevelNotSupported, model.ResultTrustLevelNotSupport},
	{ErrInvalidToken, model.ResultFail},
	{ErrCanceled, model.ResultCanceled},
	{context.Canceled, model.ResultCanceled},
	{ErrTimeout, model.ResultTimeout},
	{context.DeadlineExceeded, model.ResultTimeout},
}

// CodeOf 将错误映射为结果码，nil为SUCCESS，未知错误为GENERAL_ERROR
func CodeOf(err error) model.ResultCode {
	if err == nil {
		return model.ResultSuccess
	}
	if execErr, ok := types.AsExecutorError(err); ok {
		return execErr.Code
	}
	for _, rc := range resultCodes {
		if errors.Is(err, rc.err) {
			return rc.code
		}
	}
	return model.ResultGeneralError
}

// KitError 按操作区分的权限与前置条件错误
type KitError struct {
	Code int    // 操作错误码
	Op   string // 操作名称
	Err  error
}

func (e *KitError) Error() string {
	return fmt.Sprintf("%s failed (%d): %v", e.Op, e.Code, e.Err)
}

func (e *KitError) Unwrap() error {
	return e.Err
}

// newKitError 创建操作错误
func newKitError(op Operation, err error) error {
	return &KitError{Code: op.Code, Op: op.Name, Err: err}
}

// KitCodeOf 返回错误链中的操作错误码，没有时返回0
func KitCodeOf(err error) int {
	var kitErr *KitError
	if errors.As(err, &kitErr) {
		return kitErr.Code
	}
	return 0
}
