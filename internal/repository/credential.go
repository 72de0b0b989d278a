package repository

import (
	"context"
	"errors"

	"osaccount/internal/model"

	"gorm.io/gorm"
)

// CredentialRepository 凭据仓储接口
type CredentialRepository interface {
	Create(ctx context.Context, cred *model.Credential) error
	GetByID(ctx context.Context, id uint64) (*model.Credential, error)
	// ListByLocalID 获取账号的凭据，authType为0时返回全部类型
	ListByLocalID(ctx context.Context, localID int, authType model.AuthType) ([]model.Credential, error)
	CountByType(ctx context.Context, localID int, authType model.AuthType) (int64, error)
	// Replace 在同一事务内删除账号该类型的全部凭据并写入新凭据
	Replace(ctx context.Context, cred *model.Credential) error
	Delete(ctx context.Context, id uint64) error
	DeleteByLocalID(ctx context.Context, localID int) (int64, error)
}

// credentialRepository 凭据仓储实现
type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository 创建凭据仓储实例
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{db: db}
}

// Create 创建凭据
func (r *credentialRepository) Create(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).Create(cred).Error
}

// GetByID 通过ID获取凭据
func (r *credentialRepository) GetByID(ctx context.Context, id uint64) (*model.Credential, error) {
	var cred model.Credential
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&cred).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

// ListByLocalID 获取账号的凭据
func (r *credentialRepository) ListByLocalID(ctx context.Context, localID int, authType model.AuthType) ([]model.Credential, error) {
	query := r.db.WithContext(ctx).Where("local_id = ?", localID)
	if authType != 0 {
		query = query.Where("auth_type = ?", authType)
	}
	var creds []model.Credential
	if err := query.Order("created_at ASC, id ASC").Find(&creds).Error; err != nil {
		return nil, err
	}
	return creds, nil
}

// CountByType 统计账号某类型的凭据数量
func (r *credentialRepository) CountByType(ctx context.Context, localID int, authType model.AuthType) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.Credential{}).
		Where("local_id = ? AND auth_type = ?", localID, authType).
		Count(&count).Error
	return count, err
}

// Replace 替换账号该类型的全部凭据
func (r *credentialRepository) Replace(ctx context.Context, cred *model.Credential) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("local_id = ? AND auth_type = ?", cred.LocalID, cred.AuthType).
			Delete(&model.Credential{}).Error; err != nil {
			return err
		}
		return tx.Create(cred).Error
	})
}

// Delete 删除凭据
func (r *credentialRepository) Delete(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Delete(&model.Credential{}, "id = ?", id).Error
}

// DeleteByLocalID 删除账号的全部凭据
func (r *credentialRepository) DeleteByLocalID(ctx context.Context, localID int) (int64, error) {
	result := r.db.WithContext(ctx).Where("local_id = ?", localID).Delete(&model.Credential{})
	return result.RowsAffected, result.Error
}
