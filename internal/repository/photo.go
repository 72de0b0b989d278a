package repository

import (
	"context"
	"errors"

	"osaccount/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PhotoRepository 账号头像仓储接口
type PhotoRepository interface {
	// Get 获取头像，未设置时返回空字符串
	Get(ctx context.Context, localID int) (string, error)
	// Set 设置头像，覆盖已有值
	Set(ctx context.Context, localID int, photo string) error
	// Delete 删除头像
	Delete(ctx context.Context, localID int) error
}

// photoRepository 关系库头像仓储实现
type photoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository 创建关系库头像仓储实例
func NewPhotoRepository(db *gorm.DB) PhotoRepository {
	return &photoRepository{db: db}
}

// Get 获取头像
func (r *photoRepository) Get(ctx context.Context, localID int) (string, error) {
	var photo model.AccountPhoto
	if err := r.db.WithContext(ctx).Where("local_id = ?", localID).First(&photo).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil
		}
		return "", err
	}
	return photo.Photo, nil
}

// Set 设置头像
func (r *photoRepository) Set(ctx context.Context, localID int, photo string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "local_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"photo", "updated_at"}),
	}).Create(&model.AccountPhoto{LocalID: localID, Photo: photo}).Error
}

// Delete 删除头像
func (r *photoRepository) Delete(ctx context.Context, localID int) error {
	return r.db.WithContext(ctx).Delete(&model.AccountPhoto{}, "local_id = ?", localID).Error
}
