package pin

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync/atomic"
	"unicode"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"

	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidPIN PIN格式与子类型不符
var ErrInvalidPIN = errors.New("pin does not match its sub type")

const templateVersion = 1

// Config PIN执行器配置
type Config struct {
	TrustLevel model.AuthTrustLevel
	BcryptCost int
}

// pinTemplate PIN模板，只保存bcrypt哈希
type pinTemplate struct {
	Version int    `cbor:"1,keyasint"`
	SubType int32  `cbor:"2,keyasint"`
	Hash    []byte `cbor:"3,keyasint"`
}

// Executor PIN认证执行器，PIN数据来自已注册的输入者
type Executor struct {
	trustLevel model.AuthTrustLevel
	cost       atomic.Int32
	inputers   *types.InputerRegistry
	lockout    *types.Lockout
}

// New 创建PIN执行器
func New(cfg Config, inputers *types.InputerRegistry, lockout *types.Lockout) *Executor {
	e := &Executor{
		trustLevel: cfg.TrustLevel,
		inputers:   inputers,
		lockout:    lockout,
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	e.cost.Store(int32(cost))
	return e
}

func (e *Executor) Type() model.AuthType             { return model.AuthTypePIN }
func (e *Executor) Name() string                     { return "pin" }
func (e *Executor) TrustLevel() model.AuthTrustLevel { return e.trustLevel }
func (e *Executor) MaxEnrollments() int              { return 1 }

func (e *Executor) SubTypes() []model.AuthSubType {
	return []model.AuthSubType{model.AuthSubTypePINSix, model.AuthSubTypePINNumber, model.AuthSubTypePINMixed}
}

// Enroll 向输入者请求PIN并生成哈希模板
// 请求未指定子类型时以输入者回传的为准，指定时两者必须一致
func (e *Executor) Enroll(ctx context.Context, req *types.EnrollRequest, tip types.TipFunc) (*types.Enrollment, error) {
	input, err := e.inputers.RequestData(ctx, model.AuthTypePIN)
	if err != nil {
		return nil, err
	}
	if req.AuthSubType != 0 && input.SubType != req.AuthSubType {
		return nil, types.NewExecutorError(model.ResultInvalidParameters, "pin sub type mismatch",
			fmt.Errorf("requested %d, got %d", req.AuthSubType, input.SubType))
	}
	if err := validatePIN(input.SubType, input.Data); err != nil {
		return nil, types.NewExecutorError(model.ResultInvalidParameters, "invalid pin", err)
	}

	hash, err := bcrypt.GenerateFromPassword(input.Data, int(e.cost.Load()))
	if err != nil {
		return nil, fmt.Errorf("failed to hash pin: %w", err)
	}
	template, err := types.EncodeTemplate(pinTemplate{
		Version: templateVersion,
		SubType: int32(input.SubType),
		Hash:    hash,
	})
	if err != nil {
		return nil, err
	}
	return &types.Enrollment{AuthSubType: input.SubType, Template: template}, nil
}

// Authenticate 比对PIN
func (e *Executor) Authenticate(ctx context.Context, req *types.AuthRequest, tip types.TipFunc) (*types.Match, error) {
	if err := e.lockout.Check(req.LocalID); err != nil {
		return nil, err
	}
	input, err := e.inputers.RequestData(ctx, model.AuthTypePIN)
	if err != nil {
		return nil, err
	}

	for i := range req.Credentials {
		cred := &req.Credentials[i]
		var tpl pinTemplate
		if err := types.DecodeTemplate(cred.Template, &tpl); err != nil {
			log.Printf("[WARN] PIN模板损坏: credential=%d, err=%v", cred.ID, err)
			continue
		}
		if bcrypt.CompareHashAndPassword(tpl.Hash, input.Data) == nil {
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

// SetProperty INIT_ALGORITHM的值为新录入PIN使用的bcrypt代价
func (e *Executor) SetProperty(ctx context.Context, key model.SetPropertyType, value []byte) error {
	if key != model.SetPropertyInitAlgorithm {
		return types.ErrUnsupportedProperty
	}
	cost, err := strconv.Atoi(string(value))
	if err != nil || cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return types.NewExecutorError(model.ResultInvalidParameters, "invalid bcrypt cost", err)
	}
	e.cost.Store(int32(cost))
	return nil
}

// Forget 清除失败计数
func (e *Executor) Forget(localID int) {
	e.lockout.Reset(localID)
}

func validatePIN(subType model.AuthSubType, data []byte) error {
	if len(data) == 0 {
		return ErrInvalidPIN
	}
	switch subType {
	case model.AuthSubTypePINSix:
		if len(data) != 6 || !allDigits(data) {
			return ErrInvalidPIN
		}
	case model.AuthSubTypePINNumber:
		if !allDigits(data) {
			return ErrInvalidPIN
		}
	case model.AuthSubTypePINMixed:
	default:
		return fmt.Errorf("%w: unknown sub type %d", ErrInvalidPIN, subType)
	}
	// bcrypt只处理前72字节
	if len(data) > 72 {
		return ErrInvalidPIN
	}
	return nil
}

func allDigits(data []byte) bool {
	for _, b := range data {
		if !unicode.IsDigit(rune(b)) {
			return false
		}
	}
	return true
}
