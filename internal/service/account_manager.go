package service

import (
	"context"
	"fmt"

	"osaccount/internal/model"
	"osaccount/pkg/async"
)

// AccountManager 账号管理入口，每个操作先做权限检查，再返回一个任务
type AccountManager struct {
	authorizer  Authorizer
	registry    *AccountRegistry
	constraints *ConstraintPolicy
	events      *EventBus
}

// NewAccountManager 创建账号管理入口，并将事件总线挂到注册表上
func NewAccountManager(authorizer Authorizer, registry *AccountRegistry, constraints *ConstraintPolicy, events *EventBus) *AccountManager {
	registry.SetActivationListener(events)
	return &AccountManager{
		authorizer:  authorizer,
		registry:    registry,
		constraints: constraints,
		events:      events,
	}
}

// Registry 返回账号注册表
func (m *AccountManager) Registry() *AccountRegistry {
	return m.registry
}

// CreateOsAccount 创建账号
func (m *AccountManager) CreateOsAccount(ctx context.Context, localName string, accountType model.OsAccountType) *async.Task[*model.OsAccount] {
	return guarded(ctx, m.authorizer, OpCreateOsAccount, func() (*model.OsAccount, error) {
		return m.registry.Create(ctx, localName, accountType, nil)
	})
}

// CreateOsAccountForDomain 创建绑定域账号的账号，账号名取域账号名
func (m *AccountManager) CreateOsAccountForDomain(ctx context.Context, accountType model.OsAccountType, domain model.DomainAccountInfo) *async.Task[*model.OsAccount] {
	return guarded(ctx, m.authorizer, OpCreateOsAccountForDomain, func() (*model.OsAccount, error) {
		return m.registry.Create(ctx, domain.AccountName, accountType, &domain)
	})
}

// RemoveOsAccount 删除账号
func (m *AccountManager) RemoveOsAccount(ctx context.Context, localID int) *async.Task[struct{}] {
	return guarded(ctx, m.authorizer, OpRemoveOsAccount, func() (struct{}, error) {
		return struct{}{}, m.registry.Remove(ctx, localID)
	})
}

// ActivateOsAccount 切换前台账号
func (m *AccountManager) ActivateOsAccount(ctx context.Context, localID int) *async.Task[struct{}] {
	return guarded(ctx, m.authorizer, OpActivateOsAccount, func() (struct{}, error) {
		return struct{}{}, m.registry.Activate(ctx, localID)
	})
}

// SetOsAccountName 修改账号名称
func (m *AccountManager) SetOsAccountName(ctx context.Context, localID int, localName string) *async.Task[struct{}] {
	return guarded(ctx, m.authorizer, OpSetOsAccountName, func() (struct{}, error) {
		return struct{}{}, m.registry.SetName(ctx, localID, localName)
	})
}

// IsOsAccountActived 判断账号是否为前台账号
func (m *AccountManager) IsOsAccountActived(ctx context.Context, localID int) *async.Task[bool] {
	return guarded(ctx, m.authorizer, OpIsOsAccountActived, func() (bool, error) {
		if !m.registry.Exists(localID) {
			return false, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
		}
		return m.registry.ActiveID() == localID, nil
	})
}

// IsOsAccountConstraintEnable 判断账号约束是否启用
func (m *AccountManager) IsOsAccountConstraintEnable(ctx context.Context, localID int, constraint string) *async.Task[bool] {
	return guarded(ctx, m.authorizer, OpIsOsAccountConstraintEnable, func() (bool, error) {
		if constraint == "" {
			return false, fmt.Errorf("%w: empty constraint", ErrInvalidParameters)
		}
		if !m.registry.Exists(localID) {
			return false, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
		}
		return m.constraints.IsEnabled(localID, constraint), nil
	})
}

// IsOsAccountVerified 判断账号是否已验证
func (m *AccountManager) IsOsAccountVerified(ctx context.Context, localID int) *async.Task[bool] {
	return guarded(ctx, m.authorizer, OpIsOsAccountVerified, func() (bool, error) {
		acc, err := m.registry.Query(ctx, localID)
		if err != nil {
			return false, err
		}
		return acc.IsVerified, nil
	})
}

// GetCreatedOsAccountsCount 返回已创建的用户账号数量
func (m *AccountManager) GetCreatedOsAccountsCount(ctx context.Context) *async.Task[int] {
	return guarded(ctx, m.authorizer, OpGetCreatedOsAccountsCount, func() (int, error) {
		return m.registry.Count(), nil
	})
}

// GetOsAccountAllConstraints 返回账号已启用的约束
func (m *AccountManager) GetOsAccountAllConstraints(ctx context.Context, localID int) *async.Task[[]string] {
	return guarded(ctx, m.authorizer, OpGetOsAccountAllConstraints, func() ([]string, error) {
		if !m.registry.Exists(localID) {
			return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, localID)
		}
		return m.constraints.GetAllConstraints(localID), nil
	})
}

// QueryAllCreatedOsAccounts 返回全部用户账号
func (m *AccountManager) QueryAllCreatedOsAccounts(ctx context.Context) *async.Task[[]*model.OsAccount] {
	return guarded(ctx, m.authorizer, OpQueryAllCreatedOsAccounts, func() ([]*model.OsAccount, error) {
		return m.registry.QueryAll(ctx), nil
	})
}

// QueryCurrentOsAccount 查询前台账号
func (m *AccountManager) QueryCurrentOsAccount(ctx context.Context) *async.Task[*model.OsAccount] {
	return guarded(ctx, m.authorizer, OpQueryCurrentOsAccount, func() (*model.OsAccount, error) {
		return m.registry.QueryCurrent(ctx)
	})
}

// QueryOsAccountByID 查询账号
func (m *AccountManager) QueryOsAccountByID(ctx context.Context, localID int) *async.Task[*model.OsAccount] {
	return guarded(ctx, m.authorizer, OpQueryOsAccountByID, func() (*model.OsAccount, error) {
		return m.registry.Query(ctx, localID)
	})
}

// GetOsAccountProfilePhoto 读取账号头像
func (m *AccountManager) GetOsAccountProfilePhoto(ctx context.Context, localID int) *async.Task[string] {
	return guarded(ctx, m.authorizer, OpGetOsAccountProfilePhoto, func() (string, error) {
		return m.registry.GetPhoto(ctx, localID)
	})
}

// SetOsAccountProfilePhoto 设置账号头像
func (m *AccountManager) SetOsAccountProfilePhoto(ctx context.Context, localID int, photo string) *async.Task[struct{}] {
	return guarded(ctx, m.authorizer, OpSetOsAccountProfilePhoto, func() (struct{}, error) {
		return struct{}{}, m.registry.SetPhoto(ctx, localID, photo)
	})
}

// SetOsAccountConstraints 批量启用或禁用账号约束
func (m *AccountManager) SetOsAccountConstraints(ctx context.Context, localID int, constraints []string, enable bool) *async.Task[struct{}] {
	return guarded(ctx, m.authorizer, OpSetOsAccountConstraints, func() (struct{}, error) {
		return struct{}{}, m.registry.SetConstraints(ctx, localID, constraints, enable)
	})
}

// On 订阅账号切换事件
func (m *AccountManager) On(ctx context.Context, event model.EventType, name string, listener EventListener) *async.Task[*Subscription] {
	return guarded(ctx, m.authorizer, OpOn, func() (*Subscription, error) {
		return m.events.On(event, name, listener)
	})
}

// Off 取消订阅，sub为nil时取消该名称下的全部订阅
func (m *AccountManager) Off(ctx context.Context, event model.EventType, name string, sub *Subscription) *async.Task[struct{}] {
	return guarded(ctx, m.authorizer, OpOff, func() (struct{}, error) {
		return struct{}{}, m.events.Off(event, name, sub)
	})
}

// QueryActivatedOsAccountIDs 返回已激活的账号ID
func (m *AccountManager) QueryActivatedOsAccountIDs(ctx context.Context) *async.Task[[]int] {
	return guarded(ctx, m.authorizer, OpQueryActivatedOsAccountIDs, func() ([]int, error) {
		return m.registry.QueryActivatedIDs(), nil
	})
}

// 以下操作无需权限

// GetSerialNumberByLocalID 由账号ID查询序列号
func (m *AccountManager) GetSerialNumberByLocalID(ctx context.Context, localID int) *async.Task[int64] {
	return async.Do(func() (int64, error) {
		return m.registry.SerialByID(localID)
	})
}

// GetLocalIDBySerialNumber 由序列号查询账号ID
func (m *AccountManager) GetLocalIDBySerialNumber(ctx context.Context, serial int64) *async.Task[int] {
	return async.Do(func() (int, error) {
		return m.registry.IDBySerial(serial)
	})
}

// GetOsAccountLocalIDFromUID 由UID计算账号ID
func (m *AccountManager) GetOsAccountLocalIDFromUID(ctx context.Context, uid int) *async.Task[int] {
	return async.Do(func() (int, error) {
		return m.registry.IDFromUID(uid)
	})
}

// GetOsAccountLocalIDFromDomain 查询绑定域账号的账号ID
func (m *AccountManager) GetOsAccountLocalIDFromDomain(ctx context.Context, domain model.DomainAccountInfo) *async.Task[int] {
	return async.Do(func() (int, error) {
		return m.registry.IDFromDomain(domain)
	})
}

// GetOsAccountType 返回调用方所属账号的类型
func (m *AccountManager) GetOsAccountType(ctx context.Context) *async.Task[model.OsAccountType] {
	return async.Do(func() (model.OsAccountType, error) {
		acc, err := m.registry.Query(ctx, m.registry.actingID(ctx))
		if err != nil {
			return 0, err
		}
		return acc.Type, nil
	})
}

// GetOsAccountLocalIDFromProcess 返回调用方所属的账号ID
func (m *AccountManager) GetOsAccountLocalIDFromProcess(ctx context.Context) *async.Task[int] {
	return async.Do(func() (int, error) {
		return m.registry.actingID(ctx), nil
	})
}

// IsTestOsAccount 不存在测试账号，始终为false
func (m *AccountManager) IsTestOsAccount(ctx context.Context) *async.Task[bool] {
	return async.Resolved(false)
}

// QueryMaxOsAccountNumber 返回最大账号数
func (m *AccountManager) QueryMaxOsAccountNumber(ctx context.Context) *async.Task[int] {
	return async.Resolved(m.registry.MaxAccounts())
}

// IsMultiOsAccountEnable 是否支持多账号
func (m *AccountManager) IsMultiOsAccountEnable(ctx context.Context) *async.Task[bool] {
	return async.Resolved(m.registry.MultiEnabled())
}
