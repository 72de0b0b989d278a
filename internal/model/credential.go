package model

import "time"

// Credential 已录入的凭据（模板为执行器生成的不透明数据）
type Credential struct {
	ID          uint64      `gorm:"primaryKey;autoIncrement:false" json:"credential_id,string"`
	LocalID     int         `gorm:"index;not null" json:"local_id"`
	AuthType    AuthType    `gorm:"not null" json:"auth_type"`
	AuthSubType AuthSubType `gorm:"not null" json:"auth_sub_type"`
	TemplateID  string      `gorm:"type:varchar(32);uniqueIndex;not null" json:"template_id"`
	Template    []byte      `gorm:"not null" json:"-"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// TableName 指定表名
func (Credential) TableName() string {
	return "credentials"
}

// Info 返回对外暴露的凭据信息
func (c *Credential) Info() *EnrolledCredInfo {
	return &EnrolledCredInfo{
		CredentialID: c.ID,
		AuthType:     c.AuthType,
		AuthSubType:  c.AuthSubType,
		TemplateID:   c.TemplateID,
	}
}

// EnrolledCredInfo 已录入凭据信息
type EnrolledCredInfo struct {
	CredentialID uint64      `json:"credential_id,string"`
	AuthType     AuthType    `json:"auth_type"`
	AuthSubType  AuthSubType `json:"auth_sub_type"`
	TemplateID   string      `json:"template_id"`
}

// CredentialInfo 录入或更新凭据请求
type CredentialInfo struct {
	CredType    AuthType    `json:"cred_type"`
	CredSubType AuthSubType `json:"cred_sub_type"`
	Token       []byte      `json:"token,omitempty"`
}
