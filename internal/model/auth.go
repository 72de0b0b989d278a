package model

// AuthType 认证类型
type AuthType int32

const (
	AuthTypePIN         AuthType = 1
	AuthTypeFace        AuthType = 2
	AuthTypeFingerprint AuthType = 4
	AuthTypeRecoveryKey AuthType = 8
)

// String 返回认证类型的字符串表示
func (t AuthType) String() string {
	switch t {
	case AuthTypePIN:
		return "PIN"
	case AuthTypeFace:
		return "FACE"
	case AuthTypeFingerprint:
		return "FINGERPRINT"
	case AuthTypeRecoveryKey:
		return "RECOVERY_KEY"
	default:
		return "UNKNOWN"
	}
}

// AuthSubType 认证子类型
type AuthSubType int32

const (
	AuthSubTypePINSix                AuthSubType = 10000
	AuthSubTypePINNumber             AuthSubType = 10001
	AuthSubTypePINMixed              AuthSubType = 10002
	AuthSubTypeFace2D                AuthSubType = 20000
	AuthSubTypeFace3D                AuthSubType = 20001
	AuthSubTypeFingerprintCapacitive AuthSubType = 30000
	AuthSubTypeFingerprintOptical    AuthSubType = 30001
	AuthSubTypeFingerprintUltrasonic AuthSubType = 30002
	AuthSubTypeRecoveryKeyTOTP       AuthSubType = 40000
)

// AuthTrustLevel 认证可信等级
type AuthTrustLevel int32

const (
	AuthTrustLevelATL1 AuthTrustLevel = 10000
	AuthTrustLevelATL2 AuthTrustLevel = 20000
	AuthTrustLevelATL3 AuthTrustLevel = 30000
	AuthTrustLevelATL4 AuthTrustLevel = 40000
)

// Valid 判断可信等级是否合法
func (l AuthTrustLevel) Valid() bool {
	switch l {
	case AuthTrustLevelATL1, AuthTrustLevelATL2, AuthTrustLevelATL3, AuthTrustLevelATL4:
		return true
	}
	return false
}

// GetPropertyType 可读取的执行器属性
type GetPropertyType int32

const (
	GetPropertyAuthSubType  GetPropertyType = 1
	GetPropertyRemainTimes  GetPropertyType = 2
	GetPropertyFreezingTime GetPropertyType = 3
)

// SetPropertyType 可设置的执行器属性
type SetPropertyType int32

const (
	SetPropertyInitAlgorithm SetPropertyType = 1
)

// ResultCode 认证结果码
type ResultCode int32

const (
	ResultSuccess              ResultCode = 0
	ResultFail                 ResultCode = 1
	ResultGeneralError         ResultCode = 2
	ResultCanceled             ResultCode = 3
	ResultTimeout              ResultCode = 4
	ResultTypeNotSupport       ResultCode = 5
	ResultTrustLevelNotSupport ResultCode = 6
	ResultBusy                 ResultCode = 7
	ResultInvalidParameters    ResultCode = 8
	ResultLocked               ResultCode = 9
	ResultNotEnrolled          ResultCode = 10
)

var resultCodeNames = map[ResultCode]string{
	ResultSuccess:              "SUCCESS",
	ResultFail:                 "FAIL",
	ResultGeneralError:         "GENERAL_ERROR",
	ResultCanceled:             "CANCELED",
	ResultTimeout:              "TIMEOUT",
	ResultTypeNotSupport:       "TYPE_NOT_SUPPORT",
	ResultTrustLevelNotSupport: "TRUST_LEVEL_NOT_SUPPORT",
	ResultBusy:                 "BUSY",
	ResultInvalidParameters:    "INVALID_PARAMETERS",
	ResultLocked:               "LOCKED",
	ResultNotEnrolled:          "NOT_ENROLLED",
}

// String 返回结果码名称
func (c ResultCode) String() string {
	if name, ok := resultCodeNames[c]; ok {
		return name
	}
	return "UNKNOWN"
}

// FaceTipsCode 人脸认证提示码
type FaceTipsCode int32

const (
	FaceTipTooBright     FaceTipsCode = 1
	FaceTipTooDark       FaceTipsCode = 2
	FaceTipTooClose      FaceTipsCode = 3
	FaceTipTooFar        FaceTipsCode = 4
	FaceTipTooHigh       FaceTipsCode = 5
	FaceTipTooLow        FaceTipsCode = 6
	FaceTipTooRight      FaceTipsCode = 7
	FaceTipTooLeft       FaceTipsCode = 8
	FaceTipTooMuchMotion FaceTipsCode = 9
	FaceTipPoorGaze      FaceTipsCode = 10
	FaceTipNotDetected   FaceTipsCode = 11
)

// FingerprintTips 指纹认证提示码
type FingerprintTips int32

const (
	FingerprintTipGood         FingerprintTips = 0
	FingerprintTipDirty        FingerprintTips = 1
	FingerprintTipInsufficient FingerprintTips = 2
	FingerprintTipPartial      FingerprintTips = 3
	FingerprintTipTooFast      FingerprintTips = 4
	FingerprintTipTooSlow      FingerprintTips = 5
)

// AcquireInfo 认证过程中的提示信息
type AcquireInfo struct {
	Module int32  `json:"module"`
	Tip    int32  `json:"tip"`
	Extra  []byte `json:"extra,omitempty"`
}

// AuthResult 认证结果
type AuthResult struct {
	Token        []byte `json:"token,omitempty"`
	RemainTimes  int32  `json:"remain_times"`
	FreezingTime int32  `json:"freezing_time"`
}

// RequestResult 录入结果
type RequestResult struct {
	CredentialID uint64 `json:"credential_id,string"`
}

// ExecutorProperty 执行器属性
type ExecutorProperty struct {
	Result       ResultCode  `json:"result"`
	AuthSubType  AuthSubType `json:"auth_sub_type"`
	RemainTimes  int32       `json:"remain_times"`
	FreezingTime int32       `json:"freezing_time"`
}

// GetPropertyRequest 读取属性请求
type GetPropertyRequest struct {
	AuthType AuthType          `json:"auth_type"`
	Keys     []GetPropertyType `json:"keys"`
}

// SetPropertyRequest 设置属性请求
type SetPropertyRequest struct {
	AuthType AuthType        `json:"auth_type"`
	Key      SetPropertyType `json:"key"`
	SetInfo  []byte          `json:"set_info"`
}
