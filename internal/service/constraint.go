package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"

	"osaccount/internal/model"
	"osaccount/internal/repository"
)

// ConstraintPolicyConfig 约束策略配置
type ConstraintPolicyConfig struct {
	Strict   bool                             // 仅接受目录中的约束名
	Defaults map[model.OsAccountType][]string // 创建账号时按类型启用的约束
}

// ConstraintPolicy 账号约束策略，读多写少，内存缓存并写穿到仓储
type ConstraintPolicy struct {
	mu       sync.RWMutex
	repo     repository.ConstraintRepository
	cache    map[int]map[string]struct{}
	strict   bool
	catalog  map[string]struct{}
	defaults map[model.OsAccountType][]string
}

// NewConstraintPolicy 创建约束策略
func NewConstraintPolicy(repo repository.ConstraintRepository, cfg ConstraintPolicyConfig) *ConstraintPolicy {
	catalog := make(map[string]struct{}, len(model.ConstraintCatalog))
	for _, name := range model.ConstraintCatalog {
		catalog[name] = struct{}{}
	}
	return &ConstraintPolicy{
		repo:     repo,
		cache:    make(map[int]map[string]struct{}),
		strict:   cfg.Strict,
		catalog:  catalog,
		defaults: cfg.Defaults,
	}
}

// Load 从仓储加载全部约束
func (p *ConstraintPolicy) Load(ctx context.Context) error {
	all, err := p.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to load constraints: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cache = make(map[int]map[string]struct{}, len(all))
	for localID, names := range all {
		set := make(map[string]struct{}, len(names))
		for _, name := range names {
			set[name] = struct{}{}
		}
		p.cache[localID] = set
	}
	return nil
}

// normalize 校验并去重约束名
func (p *ConstraintPolicy) normalize(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: empty constraint list", ErrInvalidParameters)
	}
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || len(name) > 128 {
			return nil, fmt.Errorf("%w: invalid constraint name %q", ErrInvalidParameters, name)
		}
		if p.strict {
			if _, ok := p.catalog[name]; !ok {
				return nil, fmt.Errorf("%w: unknown constraint %q", ErrInvalidParameters, name)
			}
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	return result, nil
}

// SetConstraints 批量启用或禁用约束，禁用未启用的约束不报错
func (p *ConstraintPolicy) SetConstraints(ctx context.Context, localID int, names []string, enable bool) error {
	names, err := p.normalize(names)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if enable {
		err = p.repo.Add(ctx, localID, names)
	} else {
		err = p.repo.Remove(ctx, localID, names)
	}
	if err != nil {
		return fmt.Errorf("failed to save constraints: %w", err)
	}

	set, ok := p.cache[localID]
	if !ok {
		set = make(map[string]struct{})
		p.cache[localID] = set
	}
	for _, name := range names {
		if enable {
			set[name] = struct{}{}
		} else {
			delete(set, name)
		}
	}
	log.Printf("[DEBUG] 设置约束: local_id=%d, enable=%v, names=%v", localID, enable, names)
	return nil
}

// GetAllConstraints 返回账号已启用的约束，按名称排序
func (p *ConstraintPolicy) GetAllConstraints(localID int) []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.cache[localID]))
	for name := range p.cache[localID] {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsEnabled 判断约束是否启用
func (p *ConstraintPolicy) IsEnabled(localID int, name string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.cache[localID][name]
	return ok
}

// Guard 约束启用时返回该操作的错误
func (p *ConstraintPolicy) Guard(localID int, name string, op Operation) error {
	if p.IsEnabled(localID, name) {
		log.Printf("[DEBUG] 约束阻止操作: op=%s, local_id=%d, constraint=%s", op.Name, localID, name)
		return newKitError(op, fmt.Errorf("%w: %s", ErrConstraintBlocked, name))
	}
	return nil
}

// ApplyDefaults 按账号类型启用默认约束
func (p *ConstraintPolicy) ApplyDefaults(ctx context.Context, localID int, accountType model.OsAccountType) error {
	defaults := p.defaults[accountType]
	if len(defaults) == 0 {
		return nil
	}
	return p.SetConstraints(ctx, localID, defaults, true)
}

// Clear 删除账号的全部约束
func (p *ConstraintPolicy) Clear(ctx context.Context, localID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.repo.DeleteByLocalID(ctx, localID); err != nil {
		return fmt.Errorf("failed to clear constraints: %w", err)
	}
	delete(p.cache, localID)
	return nil
}
