package repository

import (
	"context"
	"errors"
	"log"
	"time"

	"osaccount/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// localIDSequence 账号ID高水位记录名
const localIDSequence = "os_account_local_id"

// AccountRepository 账号仓储接口
type AccountRepository interface {
	Create(ctx context.Context, account *model.OsAccount) error
	GetByID(ctx context.Context, localID int) (*model.OsAccount, error)
	List(ctx context.Context) ([]model.OsAccount, error)
	Update(ctx context.Context, account *model.OsAccount) error
	Delete(ctx context.Context, localID int) error
	// SwitchActive 在同一事务内取消from的激活并激活to
	// beforeCommit非空时在写入成功后、提交前调用
	SwitchActive(ctx context.Context, from, to int, loginTime time.Time, beforeCommit func()) error
	// NextLocalID 分配新的账号ID，不低于floor且从不复用
	NextLocalID(ctx context.Context, floor int) (int, error)
}

// accountRepository 账号仓储实现
type accountRepository struct {
	db *gorm.DB
}

// NewAccountRepository 创建账号仓储实例
func NewAccountRepository(db *gorm.DB) AccountRepository {
	return &accountRepository{db: db}
}

// Create 创建账号
func (r *accountRepository) Create(ctx context.Context, account *model.OsAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetByID 通过ID获取账号
func (r *accountRepository) GetByID(ctx context.Context, localID int) (*model.OsAccount, error) {
	var account model.OsAccount
	if err := r.db.WithContext(ctx).Where("local_id = ?", localID).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

// List 按ID升序获取全部账号
func (r *accountRepository) List(ctx context.Context) ([]model.OsAccount, error) {
	var accounts []model.OsAccount
	if err := r.db.WithContext(ctx).Order("local_id ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// Update 更新账号
func (r *accountRepository) Update(ctx context.Context, account *model.OsAccount) error {
	return r.db.WithContext(ctx).Save(account).Error
}

// Delete 删除账号
func (r *accountRepository) Delete(ctx context.Context, localID int) error {
	result := r.db.WithContext(ctx).Delete(&model.OsAccount{}, "local_id = ?", localID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SwitchActive 切换激活账号
func (r *accountRepository) SwitchActive(ctx context.Context, from, to int, loginTime time.Time, beforeCommit func()) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if from != to {
			if err := tx.Model(&model.OsAccount{}).Where("local_id = ?", from).
				UpdateColumn("is_actived", false).Error; err != nil {
				return err
			}
		}
		if err := tx.Model(&model.OsAccount{}).Where("local_id = ?", to).
			UpdateColumns(map[string]interface{}{
				"is_actived":      true,
				"last_login_time": loginTime,
			}).Error; err != nil {
			return err
		}
		if beforeCommit != nil {
			beforeCommit()
		}
		return nil
	})
}

// NextLocalID 分配新的账号ID
func (r *accountRepository) NextLocalID(ctx context.Context, floor int) (int, error) {
	var next int
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var seq model.AccountSequence
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("name = ?", localIDSequence).First(&seq).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			seq = model.AccountSequence{Name: localIDSequence, Value: floor - 1}
		case err != nil:
			return err
		}

		next = seq.Value + 1
		if next < floor {
			next = floor
		}
		seq.Value = next
		return tx.Save(&seq).Error
	})
	if err != nil {
		return 0, err
	}
	log.Printf("[DEBUG] 分配账号ID: %d", next)
	return next, nil
}
