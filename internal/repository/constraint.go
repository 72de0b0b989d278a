package repository

import (
	"context"

	"osaccount/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ConstraintRepository 账号约束仓储接口
type ConstraintRepository interface {
	// List 获取账号已启用的约束
	List(ctx context.Context, localID int) ([]string, error)
	// ListAll 获取全部账号的约束，用于启动时加载
	ListAll(ctx context.Context) (map[int][]string, error)
	// Add 启用约束，已启用的忽略
	Add(ctx context.Context, localID int, names []string) error
	// Remove 禁用约束，未启用的忽略
	Remove(ctx context.Context, localID int, names []string) error
	// DeleteByLocalID 删除账号的全部约束
	DeleteByLocalID(ctx context.Context, localID int) error
}

// constraintRepository 账号约束仓储实现
type constraintRepository struct {
	db *gorm.DB
}

// NewConstraintRepository 创建账号约束仓储实例
func NewConstraintRepository(db *gorm.DB) ConstraintRepository {
	return &constraintRepository{db: db}
}

// List 获取账号已启用的约束
func (r *constraintRepository) List(ctx context.Context, localID int) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&model.AccountConstraint{}).
		Where("local_id = ?", localID).
		Order("name ASC").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	return names, nil
}

// ListAll 获取全部账号的约束
func (r *constraintRepository) ListAll(ctx context.Context) (map[int][]string, error) {
	var rows []model.AccountConstraint
	if err := r.db.WithContext(ctx).Order("local_id ASC, name ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make(map[int][]string)
	for _, row := range rows {
		result[row.LocalID] = append(result[row.LocalID], row.Name)
	}
	return result, nil
}

// Add 启用约束
func (r *constraintRepository) Add(ctx context.Context, localID int, names []string) error {
	if len(names) == 0 {
		return nil
	}
	rows := make([]model.AccountConstraint, 0, len(names))
	for _, name := range names {
		rows = append(rows, model.AccountConstraint{LocalID: localID, Name: name})
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// Remove 禁用约束
func (r *constraintRepository) Remove(ctx context.Context, localID int, names []string) error {
	if len(names) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Where("local_id = ? AND name IN ?", localID, names).
		Delete(&model.AccountConstraint{}).Error
}

// DeleteByLocalID 删除账号的全部约束
func (r *constraintRepository) DeleteByLocalID(ctx context.Context, localID int) error {
	return r.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&model.AccountConstraint{}).Error
}
