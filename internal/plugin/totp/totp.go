package totp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
	"osaccount/pkg/crypto"

	"github.com/jonboulle/clockwork"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

var (
	// ErrTOTPInvalidCode 确认码无效
	ErrTOTPInvalidCode = errors.New("invalid totp code")
)

const (
	templateVersion = 1
	digits          = otp.DigitsSix

	// TipProvisioning 录入时下发otpauth URL，Extra为URL字节
	TipProvisioning int32 = 1
)

// Config 恢复密钥执行器配置
type Config struct {
	TrustLevel model.AuthTrustLevel
	Issuer     string
	Period     uint // TOTP周期(秒)
	Skew       uint // 允许的前后周期数
}

type totpTemplate struct {
	Version int    `cbor:"1,keyasint"`
	Sealed  []byte `cbor:"2,keyasint"`
}

// Executor 基于TOTP的恢复密钥执行器
// 录入时生成密钥并要求输入者回传当前验证码确认，模板保存加密后的密钥
type Executor struct {
	cfg      Config
	key      []byte
	clock    clockwork.Clock
	inputers *types.InputerRegistry
	lockout  *types.Lockout
}

// New 创建恢复密钥执行器，key用于加密TOTP密钥
func New(cfg Config, key []byte, clock clockwork.Clock, inputers *types.InputerRegistry, lockout *types.Lockout) (*Executor, error) {
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("recovery key template key must be %d bytes", crypto.KeySize)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Period == 0 {
		cfg.Period = 30
	}
	if cfg.Issuer == "" {
		cfg.Issuer = "osaccount"
	}
	return &Executor{cfg: cfg, key: key, clock: clock, inputers: inputers, lockout: lockout}, nil
}

func (e *Executor) Type() model.AuthType             { return model.AuthTypeRecoveryKey }
func (e *Executor) Name() string                     { return "recovery_key" }
func (e *Executor) TrustLevel() model.AuthTrustLevel { return e.cfg.TrustLevel }
func (e *Executor) MaxEnrollments() int              { return 1 }

func (e *Executor) SubTypes() []model.AuthSubType {
	return []model.AuthSubType{model.AuthSubTypeRecoveryKeyTOTP}
}

func additionalData(localID int) []byte {
	return []byte(fmt.Sprintf("recovery_key:%d", localID))
}

func (e *Executor) validate(code, secret string) bool {
	valid, err := totp.ValidateCustom(strings.TrimSpace(code), secret, e.clock.Now(), totp.ValidateOpts{
		Period:    e.cfg.Period,
		Skew:      e.cfg.Skew,
		Digits:    digits,
		Algorithm: otp.AlgorithmSHA1,
	})
	return err == nil && valid
}

// Enroll 生成TOTP密钥，下发provisioning提示后等待确认码
func (e *Executor) Enroll(ctx context.Context, req *types.EnrollRequest, tip types.TipFunc) (*types.Enrollment, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      e.cfg.Issuer,
		AccountName: fmt.Sprintf("account-%d", req.LocalID),
		Period:      e.cfg.Period,
		Digits:      digits,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate totp key: %w", err)
	}
	if tip != nil {
		tip(model.AcquireInfo{Module: int32(model.AuthTypeRecoveryKey), Tip: TipProvisioning, Extra: []byte(key.URL())})
	}

	input, err := e.inputers.RequestData(ctx, model.AuthTypeRecoveryKey)
	if err != nil {
		return nil, err
	}
	if !e.validate(string(input.Data), key.Secret()) {
		return nil, types.NewExecutorError(model.ResultFail, "confirmation code mismatch", ErrTOTPInvalidCode)
	}

	sealed, err := crypto.Seal(e.key, []byte(key.Secret()), additionalData(req.LocalID))
	if err != nil {
		return nil, err
	}
	template, err := types.EncodeTemplate(totpTemplate{Version: templateVersion, Sealed: sealed})
	if err != nil {
		return nil, err
	}
	return &types.Enrollment{AuthSubType: model.AuthSubTypeRecoveryKeyTOTP, Template: template}, nil
}

// Authenticate 校验输入者回传的验证码
func (e *Executor) Authenticate(ctx context.Context, req *types.AuthRequest, tip types.TipFunc) (*types.Match, error) {
	if err := e.lockout.Check(req.LocalID); err != nil {
		return nil, err
	}
	input, err := e.inputers.RequestData(ctx, model.AuthTypeRecoveryKey)
	if err != nil {
		return nil, err
	}

	for i := range req.Credentials {
		cred := &req.Credentials[i]
		var tpl totpTemplate
		if err := types.DecodeTemplate(cred.Template, &tpl); err != nil {
			log.Printf("[WARN] 恢复密钥模板损坏: credential=%d, err=%v", cred.ID, err)
			continue
		}
		secret, err := crypto.Open(e.key, tpl.Sealed, additionalData(req.LocalID))
		if err != nil {
			log.Printf("[WARN] 恢复密钥解密失败: credential=%d, err=%v", cred.ID, err)
			continue
		}
		if e.validate(string(input.Data), string(secret)) {
			e.lockout.Succeed(req.LocalID)
			return &types.Match{Credential: cred}, nil
		}
	}
	return nil, e.lockout.Fail(req.LocalID)
}

// Property 返回子类型、剩余次数和冻结时间
func (e *Executor) Property(ctx context.Context, localID int, creds []model.Credential) (*model.ExecutorProperty, error) {
	remain, freezing := e.lockout.Status(localID)
	prop := &model.ExecutorProperty{
		Result:       model.ResultSuccess,
		RemainTimes:  remain,
		FreezingTime: freezing,
	}
	if len(creds) > 0 {
		prop.AuthSubType = creds[0].AuthSubType
	}
	return prop, nil
}

// SetProperty 恢复密钥没有可初始化的算法参数
func (e *Executor) SetProperty(ctx context.Context, key model.SetPropertyType, value []byte) error {
	return types.ErrUnsupportedProperty
}

// Forget 清除失败计数
func (e *Executor) Forget(localID int) {
	e.lockout.Reset(localID)
}
