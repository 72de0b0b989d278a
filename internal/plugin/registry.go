package plugin

import (
	"fmt"
	"log"
	"sort"
	"sync"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
)

// registry 执行器注册表实现
type registry struct {
	executors sync.Map // model.AuthType -> types.Executor
}

// NewRegistry 创建注册表实例
func NewRegistry() types.ExecutorRegistry {
	return &registry{}
}

// Register 注册执行器
func (r *registry) Register(executor types.Executor) error {
	if executor == nil {
		return fmt.Errorf("executor cannot be nil")
	}
	if executor.Name() == "" {
		return fmt.Errorf("executor name cannot be empty")
	}
	if !executor.TrustLevel().Valid() {
		return fmt.Errorf("executor %s has invalid trust level %d", executor.Name(), executor.TrustLevel())
	}
	if len(executor.SubTypes()) == 0 {
		return fmt.Errorf("executor %s declares no sub types", executor.Name())
	}

	if _, loaded := r.executors.LoadOrStore(executor.Type(), executor); loaded {
		return fmt.Errorf("executor for %s already registered", executor.Type())
	}
	log.Printf("[INFO] 注册认证执行器: %s (type=%s, trust=%d)", executor.Name(), executor.Type(), executor.TrustLevel())
	return nil
}

// Unregister 注销执行器
func (r *registry) Unregister(authType model.AuthType) error {
	if _, loaded := r.executors.LoadAndDelete(authType); !loaded {
		return fmt.Errorf("executor for %s not found", authType)
	}
	return nil
}

// Get 获取执行器
func (r *registry) Get(authType model.AuthType) (types.Executor, bool) {
	if value, exists := r.executors.Load(authType); exists {
		return value.(types.Executor), true
	}
	return nil, false
}

// List 列出所有执行器
func (r *registry) List() []types.Executor {
	var executors []types.Executor
	r.executors.Range(func(key, value interface{}) bool {
		executors = append(executors, value.(types.Executor))
		return true
	})
	sort.Slice(executors, func(i, j int) bool {
		return executors[i].Type() < executors[j].Type()
	})
	return executors
}
