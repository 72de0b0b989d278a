package model

import (
	"time"
)

// OsAccountType 账号类型
type OsAccountType int32

const (
	OsAccountTypeAdmin  OsAccountType = 0
	OsAccountTypeNormal OsAccountType = 1
	OsAccountTypeGuest  OsAccountType = 2
)

// Valid 判断账号类型是否受支持
func (t OsAccountType) Valid() bool {
	return t == OsAccountTypeAdmin || t == OsAccountTypeNormal || t == OsAccountTypeGuest
}

// String 返回账号类型的字符串表示
func (t OsAccountType) String() string {
	switch t {
	case OsAccountTypeAdmin:
		return "ADMIN"
	case OsAccountTypeNormal:
		return "NORMAL"
	case OsAccountTypeGuest:
		return "GUEST"
	default:
		return "UNKNOWN"
	}
}

const (
	// SystemLocalID 系统账号ID
	SystemLocalID = 0
	// UIDPerAccount 每个账号占用的UID区间大小
	UIDPerAccount = 200000
	// MaxLocalNameLength 账号名称最大长度
	MaxLocalNameLength = 1024
)

// DomainAccountInfo 域账号信息，仅在创建时绑定
type DomainAccountInfo struct {
	Domain      string `gorm:"type:varchar(128)" json:"domain"`
	AccountName string `gorm:"type:varchar(256)" json:"account_name"`
}

// Empty 判断域信息是否为空
func (d DomainAccountInfo) Empty() bool {
	return d.Domain == "" && d.AccountName == ""
}

// DistributedInfo 分布式账号信息
type DistributedInfo struct {
	Name         string `gorm:"type:varchar(256)" json:"name"`
	ID           string `gorm:"type:varchar(256)" json:"id"`
	Event        string `gorm:"type:varchar(64)" json:"event"`
	ScalableData string `gorm:"type:text" json:"scalable_data"`
}

// OsAccount 系统账号模型
type OsAccount struct {
	LocalID           int               `gorm:"primaryKey;autoIncrement:false" json:"local_id"`
	LocalName         string            `gorm:"type:varchar(1024);not null" json:"local_name"`
	Type              OsAccountType     `gorm:"not null" json:"type"`
	Constraints       []string          `gorm:"-" json:"constraints"`
	IsVerified        bool              `gorm:"not null;default:false" json:"is_verified"`
	IsActived         bool              `gorm:"not null;default:false" json:"is_actived"`
	IsCreateCompleted bool              `gorm:"not null;default:false" json:"is_create_completed"`
	Photo             string            `gorm:"-" json:"photo,omitempty"`
	CreateTime        time.Time         `json:"create_time"`
	LastLoginTime     *time.Time        `json:"last_login_time,omitempty"`
	SerialNumber      int64             `gorm:"uniqueIndex;not null" json:"serial_number"`
	DistributedInfo   DistributedInfo   `gorm:"embedded;embeddedPrefix:distributed_" json:"distributed_info"`
	DomainInfo        DomainAccountInfo `gorm:"embedded;embeddedPrefix:domain_" json:"domain_info"`
	IsSystem          bool              `gorm:"not null;default:false" json:"-"`
}

// TableName 指定表名
func (OsAccount) TableName() string {
	return "os_accounts"
}

// Clone 返回账号的副本，避免调用方修改注册表内部状态
func (a *OsAccount) Clone() *OsAccount {
	if a == nil {
		return nil
	}
	c := *a
	if a.Constraints != nil {
		c.Constraints = append([]string(nil), a.Constraints...)
	}
	if a.LastLoginTime != nil {
		t := *a.LastLoginTime
		c.LastLoginTime = &t
	}
	return &c
}

// AccountSequence 账号ID高水位记录
type AccountSequence struct {
	Name  string `gorm:"primaryKey;type:varchar(64)"`
	Value int    `gorm:"not null"`
}

// TableName 指定表名
func (AccountSequence) TableName() string {
	return "account_sequences"
}

// AccountPhoto 账号头像（关系库存储）
type AccountPhoto struct {
	LocalID   int       `gorm:"primaryKey;autoIncrement:false" bson:"local_id"`
	Photo     string    `gorm:"type:text;not null" bson:"photo"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// TableName 指定表名
func (AccountPhoto) TableName() string {
	return "account_photos"
}

// CreateOsAccountRequest 创建账号请求
type CreateOsAccountRequest struct {
	LocalName  string             `json:"local_name"`
	Type       OsAccountType      `json:"type"`
	DomainInfo *DomainAccountInfo `json:"domain_info,omitempty"`
}
