package service

import (
	"context"
	"log"

	"osaccount/internal/model"
)

type callerKey struct{}

// Caller 调用方身份
type Caller struct {
	UID         int             // 调用方UID，-1表示未知
	Permissions map[string]bool // 已授予的权限
}

// NewCaller 创建调用方
func NewCaller(uid int, permissions ...string) *Caller {
	c := &Caller{UID: uid, Permissions: make(map[string]bool, len(permissions))}
	for _, p := range permissions {
		c.Permissions[p] = true
	}
	return c
}

// HasPermission 判断是否拥有权限
func (c *Caller) HasPermission(permission string) bool {
	return c != nil && c.Permissions[permission]
}

// WithCaller 将调用方写入上下文
func WithCaller(ctx context.Context, caller *Caller) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

// CallerFrom 从上下文获取调用方
func CallerFrom(ctx context.Context) (*Caller, bool) {
	caller, ok := ctx.Value(callerKey{}).(*Caller)
	return caller, ok && caller != nil
}

// callerUID 返回调用方UID，未知时为-1
func callerUID(ctx context.Context) int {
	if caller, ok := CallerFrom(ctx); ok {
		return caller.UID
	}
	return -1
}

// Authorizer 权限检查
type Authorizer interface {
	// Check 检查调用方是否可以执行操作，拒绝时返回*KitError
	Check(ctx context.Context, op Operation) error
}

// permissionAuthorizer 基于上下文中调用方权限的实现
type permissionAuthorizer struct{}

// NewAuthorizer 创建基于调用方权限的检查器
func NewAuthorizer() Authorizer {
	return permissionAuthorizer{}
}

// Check 检查权限
func (permissionAuthorizer) Check(ctx context.Context, op Operation) error {
	if len(op.Permissions) == 0 {
		return nil
	}
	caller, _ := CallerFrom(ctx)
	for _, p := range op.Permissions {
		if caller.HasPermission(p) {
			return nil
		}
	}
	log.Printf("[DEBUG] 权限不足: op=%s, uid=%d", op.Name, callerUID(ctx))
	return newKitError(op, ErrPermissionDenied)
}

type allowAll struct{}

// AllowAll 不做权限检查
func AllowAll() Authorizer {
	return allowAll{}
}

// Check 总是允许
func (allowAll) Check(ctx context.Context, op Operation) error {
	return nil
}

// SystemCaller 拥有全部权限的系统调用方
func SystemCaller() *Caller {
	return NewCaller(-1, model.AllPermissions...)
}
