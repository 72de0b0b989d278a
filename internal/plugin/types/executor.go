package types

import (
	"context"

	"osaccount/internal/model"
)

// TipFunc 执行器上报认证或录入过程中的提示信息
type TipFunc func(info model.AcquireInfo)

// EnrollRequest 录入请求
type EnrollRequest struct {
	LocalID     int
	Challenge   uint64
	AuthSubType model.AuthSubType
	// Existing 账号已录入的同类型凭据
	Existing []model.Credential
}

// Enrollment 录入结果，Template由执行器生成且不包含原始凭据
type Enrollment struct {
	AuthSubType model.AuthSubType
	Template    []byte
}

// AuthRequest 认证请求
type AuthRequest struct {
	LocalID     int
	Challenge   uint64
	Credentials []model.Credential
}

// Match 认证成功时匹配到的凭据
type Match struct {
	Credential *model.Credential
}

// Executor 认证执行器接口，按AuthType注册
type Executor interface {
	// Type 返回执行器负责的认证类型
	Type() model.AuthType

	// Name 返回执行器名称
	Name() string

	// TrustLevel 返回执行器认证结果的可信等级
	TrustLevel() model.AuthTrustLevel

	// SubTypes 返回支持的认证子类型
	SubTypes() []model.AuthSubType

	// MaxEnrollments 返回单个账号该类型可录入的最大凭据数
	MaxEnrollments() int

	// Enroll 采集并生成凭据模板
	// 必须响应ctx取消
	Enroll(ctx context.Context, req *EnrollRequest, tip TipFunc) (*Enrollment, error)

	// Authenticate 采集数据并与已录入凭据比对
	// 失败时返回*ExecutorError，携带剩余次数或冻结时间
	Authenticate(ctx context.Context, req *AuthRequest, tip TipFunc) (*Match, error)

	// Property 返回账号在该执行器上的属性
	Property(ctx context.Context, localID int, creds []model.Credential) (*model.ExecutorProperty, error)

	// SetProperty 设置执行器属性
	SetProperty(ctx context.Context, key model.SetPropertyType, value []byte) error

	// Forget 清除账号在执行器中的运行时状态（如失败计数）
	Forget(localID int)
}

// HasSubType 判断执行器是否支持指定子类型
func HasSubType(e Executor, subType model.AuthSubType) bool {
	for _, s := range e.SubTypes() {
		if s == subType {
			return true
		}
	}
	return false
}
