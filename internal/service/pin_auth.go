package service

import (
	"context"
	"fmt"
	"log"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
	"osaccount/pkg/async"
)

// PINAuth PIN数据输入者注册
// 同一个输入者注册表也承载人脸、指纹和恢复密钥的样本提供者
type PINAuth struct {
	authorizer Authorizer
	inputers   *types.InputerRegistry
}

// NewPINAuth 创建PIN输入者注册服务
func NewPINAuth(authorizer Authorizer, inputers *types.InputerRegistry) *PINAuth {
	return &PINAuth{authorizer: authorizer, inputers: inputers}
}

// RegisterInputer 注册PIN输入者，已注册时返回false
func (p *PINAuth) RegisterInputer(ctx context.Context, inputer types.Inputer) *async.Task[bool] {
	return p.RegisterProvider(ctx, model.AuthTypePIN, inputer)
}

// RegisterProvider 为认证类型注册数据提供者，已注册时返回false
func (p *PINAuth) RegisterProvider(ctx context.Context, authType model.AuthType, inputer types.Inputer) *async.Task[bool] {
	return guarded(ctx, p.authorizer, OpRegisterInputer, func() (bool, error) {
		if inputer == nil {
			return false, fmt.Errorf("%w: inputer is required", ErrInvalidParameters)
		}
		ok := p.inputers.Register(authType, inputer)
		log.Printf("[DEBUG] 注册数据输入者: type=%s, ok=%v", authType, ok)
		return ok, nil
	})
}

// UnregisterInputer 注销PIN输入者
func (p *PINAuth) UnregisterInputer(ctx context.Context) *async.Task[struct{}] {
	return p.UnregisterProvider(ctx, model.AuthTypePIN)
}

// UnregisterProvider 注销认证类型的数据提供者，未注册时直接成功
func (p *PINAuth) UnregisterProvider(ctx context.Context, authType model.AuthType) *async.Task[struct{}] {
	return guarded(ctx, p.authorizer, OpUnregisterInputer, func() (struct{}, error) {
		p.inputers.Unregister(authType)
		return struct{}{}, nil
	})
}
