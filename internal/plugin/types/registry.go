package types

import "osaccount/internal/model"

// ExecutorRegistry 执行器注册表接口
type ExecutorRegistry interface {
	// Register 注册执行器，同一认证类型只能注册一个
	Register(executor Executor) error

	// Unregister 注销执行器
	Unregister(authType model.AuthType) error

	// Get 获取执行器
	Get(authType model.AuthType) (Executor, bool)

	// List 按认证类型升序列出所有执行器
	List() []Executor
}
