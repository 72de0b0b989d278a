package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"osaccount/internal/audit"
	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
	"osaccount/internal/repository"
	"osaccount/pkg/async"
	"osaccount/pkg/idgen"

	"github.com/jonboulle/clockwork"
)

// UserAuthConfig 用户认证配置
type UserAuthConfig struct {
	Timeout time.Duration // 执行器超时时间，0表示不限制
}

// authContext 一次进行中的认证
type authContext struct {
	localID  int
	authType model.AuthType
	cancel   context.CancelFunc
}

// UserAuth 认证分发：按认证类型选择执行器并管理认证上下文
type UserAuth struct {
	contexts sync.Map // uint64 -> *authContext

	cfg         UserAuthConfig
	authorizer  Authorizer
	accounts    *AccountRegistry
	identity    *IdentityManager
	executors   types.ExecutorRegistry
	credentials repository.CredentialRepository
	tokens      *AuthTokenService
	ids         *idgen.Generator
	clock       clockwork.Clock
	recorder    AuditRecorder
}

// NewUserAuth 创建认证分发器
func NewUserAuth(
	cfg UserAuthConfig,
	authorizer Authorizer,
	accounts *AccountRegistry,
	identity *IdentityManager,
	executors types.ExecutorRegistry,
	credentials repository.CredentialRepository,
	tokens *AuthTokenService,
	ids *idgen.Generator,
	clock clockwork.Clock,
	recorder AuditRecorder,
) *UserAuth {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &UserAuth{
		cfg:         cfg,
		authorizer:  authorizer,
		accounts:    accounts,
		identity:    identity,
		executors:   executors,
		credentials: credentials,
		tokens:      tokens,
		ids:         ids,
		clock:       clock,
		recorder:    recorder,
	}
}

// Auth 认证前台账号，返回认证上下文ID
func (u *UserAuth) Auth(ctx context.Context, challenge uint64, authType model.AuthType, trustLevel model.AuthTrustLevel, onAcquire types.TipFunc) (uint64, *async.Task[*model.AuthResult]) {
	if err := u.authorizer.Check(ctx, OpAuth); err != nil {
		return 0, async.Failed[*model.AuthResult](err)
	}
	return u.start(ctx, OpAuth, u.accounts.ActiveID(), challenge, authType, trustLevel, onAcquire)
}

// AuthUser 认证指定账号
func (u *UserAuth) AuthUser(ctx context.Context, localID int, challenge uint64, authType model.AuthType, trustLevel model.AuthTrustLevel, onAcquire types.TipFunc) (uint64, *async.Task[*model.AuthResult]) {
	if err := u.authorizer.Check(ctx, OpAuthUser); err != nil {
		return 0, async.Failed[*model.AuthResult](err)
	}
	return u.start(ctx, OpAuthUser, localID, challenge, authType, trustLevel, onAcquire)
}

// resolve 查找执行器并检查可信等级与录入情况
func (u *UserAuth) resolve(ctx context.Context, localID int, authType model.AuthType, trustLevel model.AuthTrustLevel) (types.Executor, []model.Credential, error) {
	if !trustLevel.Valid() {
		return nil, nil, fmt.Errorf("%w: trust level %d", ErrInvalidParameters, trustLevel)
	}
	if !u.accounts.Exists(localID) {
		return nil, nil, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
	}
	executor, ok := u.executors.Get(authType)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrTypeNotSupported, authType)
	}
	if executor.TrustLevel() < trustLevel {
		return nil, nil, fmt.Errorf("%w: %s certifies %d", ErrTrustLevelNotSupported, authType, executor.TrustLevel())
	}
	creds, err := u.credentials.ListByLocalID(ctx, localID, authType)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list credentials: %w", err)
	}
	if len(creds) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotEnrolled, authType)
	}
	return executor, creds, nil
}

func (u *UserAuth) start(ctx context.Context, op Operation, localID int, challenge uint64, authType model.AuthType, trustLevel model.AuthTrustLevel, onAcquire types.TipFunc) (uint64, *async.Task[*model.AuthResult]) {
	executor, creds, err := u.resolve(ctx, localID, authType, trustLevel)
	if err != nil {
		return 0, rejected[*model.AuthResult](op, err)
	}

	opCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if u.cfg.Timeout > 0 {
		opCtx, cancel = withTimeout(opCtx, cancel, u.clock, u.cfg.Timeout)
	}
	release, bound, err := u.identity.bindAuth(localID, challenge, cancel)
	if err != nil {
		cancel()
		return 0, rejected[*model.AuthResult](op, err)
	}

	contextID := u.ids.Next()
	u.contexts.Store(contextID, &authContext{localID: localID, authType: authType, cancel: cancel})
	log.Printf("[DEBUG] 开始认证: context_id=%d, local_id=%d, type=%s, session_bound=%v", contextID, localID, authType, bound)

	task := async.Go(func() (*model.AuthResult, error) {
		defer cancel()
		defer release()
		defer u.contexts.Delete(contextID)

		req := &types.AuthRequest{LocalID: localID, Challenge: challenge, Credentials: creds}
		_, err := executor.Authenticate(opCtx, req, safeTip(onAcquire))
		if err != nil {
			err = terminalError(opCtx, err)
			result := &model.AuthResult{}
			if execErr, ok := types.AsExecutorError(err); ok {
				result.RemainTimes = execErr.RemainTimes
				result.FreezingTime = execErr.FreezingTime
			}
			u.recorder.Record(ctx, audit.EventAuthFailure, localID, callerUID(ctx), map[string]interface{}{
				"auth_type": authType.String(),
				"result":    CodeOf(err).String(),
			})
			return result, err
		}

		token, err := u.tokens.Issue(ctx, localID, authType, executor.TrustLevel(), challenge)
		if err != nil {
			return nil, err
		}
		if err := u.accounts.SetVerified(ctx, localID, true); err != nil && !errors.Is(err, ErrSystemAccount) {
			log.Printf("[ERROR] 设置账号已验证失败: local_id=%d, err=%v", localID, err)
		}
		result := &model.AuthResult{Token: token}
		if prop, err := executor.Property(ctx, localID, creds); err == nil {
			result.RemainTimes = prop.RemainTimes
		}
		u.recorder.Record(ctx, audit.EventAuthSuccess, localID, callerUID(ctx), map[string]interface{}{
			"auth_type": authType.String(),
		})
		return result, nil
	})
	return contextID, task
}

// CancelAuth 取消进行中的认证，上下文不存在或已结束时失败
func (u *UserAuth) CancelAuth(ctx context.Context, contextID uint64) *async.Task[struct{}] {
	return guarded(ctx, u.authorizer, OpCancelAuth, func() (struct{}, error) {
		value, ok := u.contexts.Load(contextID)
		if !ok {
			return struct{}{}, fmt.Errorf("%w: %d", ErrContextNotFound, contextID)
		}
		value.(*authContext).cancel()
		log.Printf("[DEBUG] 取消认证: context_id=%d", contextID)
		return struct{}{}, nil
	})
}

// GetAvailableStatus 探测前台账号能否以该类型和可信等级认证
func (u *UserAuth) GetAvailableStatus(ctx context.Context, authType model.AuthType, trustLevel model.AuthTrustLevel) *async.Task[model.ResultCode] {
	return guarded(ctx, u.authorizer, OpGetAvailableStatus, func() (model.ResultCode, error) {
		localID := u.accounts.ActiveID()
		executor, creds, err := u.resolve(ctx, localID, authType, trustLevel)
		if err != nil {
			code := CodeOf(err)
			if code == model.ResultGeneralError {
				return 0, err
			}
			return code, nil
		}
		prop, err := executor.Property(ctx, localID, creds)
		if err != nil {
			return 0, err
		}
		if prop.FreezingTime > 0 {
			return model.ResultLocked, nil
		}
		return model.ResultSuccess, nil
	})
}

// GetProperty 读取前台账号在执行器上的属性，只填充请求的字段
func (u *UserAuth) GetProperty(ctx context.Context, req *model.GetPropertyRequest) *async.Task[*model.ExecutorProperty] {
	return guarded(ctx, u.authorizer, OpGetProperty, func() (*model.ExecutorProperty, error) {
		if req == nil || len(req.Keys) == 0 {
			return nil, fmt.Errorf("%w: property keys are required", ErrInvalidParameters)
		}
		for _, key := range req.Keys {
			if key < model.GetPropertyAuthSubType || key > model.GetPropertyFreezingTime {
				return nil, fmt.Errorf("%w: property key %d", ErrInvalidParameters, key)
			}
		}
		executor, ok := u.executors.Get(req.AuthType)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrTypeNotSupported, req.AuthType)
		}
		localID := u.accounts.ActiveID()
		creds, err := u.credentials.ListByLocalID(ctx, localID, req.AuthType)
		if err != nil {
			return nil, fmt.Errorf("failed to list credentials: %w", err)
		}
		if len(creds) == 0 {
			return nil, fmt.Errorf("%w: %s", ErrNotEnrolled, req.AuthType)
		}
		full, err := executor.Property(ctx, localID, creds)
		if err != nil {
			return nil, err
		}

		prop := &model.ExecutorProperty{Result: model.ResultSuccess}
		for _, key := range req.Keys {
			switch key {
			case model.GetPropertyAuthSubType:
				prop.AuthSubType = full.AuthSubType
			case model.GetPropertyRemainTimes:
				prop.RemainTimes = full.RemainTimes
			case model.GetPropertyFreezingTime:
				prop.FreezingTime = full.FreezingTime
			}
		}
		return prop, nil
	})
}

// SetProperty 设置执行器属性，只支持INIT_ALGORITHM
func (u *UserAuth) SetProperty(ctx context.Context, req *model.SetPropertyRequest) *async.Task[struct{}] {
	return guarded(ctx, u.authorizer, OpSetProperty, func() (struct{}, error) {
		if req == nil || req.Key != model.SetPropertyInitAlgorithm {
			return struct{}{}, fmt.Errorf("%w: only INIT_ALGORITHM can be set", ErrInvalidParameters)
		}
		executor, ok := u.executors.Get(req.AuthType)
		if !ok {
			return struct{}{}, fmt.Errorf("%w: %s", ErrTypeNotSupported, req.AuthType)
		}
		if err := executor.SetProperty(ctx, req.Key, req.SetInfo); err != nil {
			if errors.Is(err, types.ErrUnsupportedProperty) {
				return struct{}{}, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
			}
			return struct{}{}, err
		}
		return struct{}{}, nil
	})
}
