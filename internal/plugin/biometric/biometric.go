package biometric

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"

	"github.com/zeebo/blake3"
)

const (
	templateVersion = 1
	digestSize      = 32
)

// Config 生物特征执行器配置
type Config struct {
	AuthType       model.AuthType
	Name           string
	TrustLevel     model.AuthTrustLevel
	SubTypes       []model.AuthSubType
	MaxEnrollments int
	MinSampleSize  int
	MaxRetries     int
	// PoorSampleTip 样本不合格时上报的提示码
	PoorSampleTip int32
}

// FaceConfig 人脸执行器默认配置
func FaceConfig(trust model.AuthTrustLevel, maxEnrollments, minSampleSize, maxRetries int) Config {
	return Config{
		AuthType:       model.AuthTypeFace,
		Name:           "face",
		TrustLevel:     trust,
		SubTypes:       []model.AuthSubType{model.AuthSubTypeFace2D, model.AuthSubTypeFace3D},
		MaxEnrollments: maxEnrollments,
		MinSampleSize:  minSampleSize,
		MaxRetries:     maxRetries,
		PoorSampleTip:  int32(model.FaceTipNotDetected),
	}
}

// FingerprintConfig 指纹执行器默认配置
func FingerprintConfig(trust model.AuthTrustLevel, maxEnrollments, minSampleSize, maxRetries int) Config {
	return Config{
		AuthType:   model.AuthTypeFingerprint,
		Name:       "fingerprint",
		TrustLevel: trust,
		SubTypes: []model.AuthSubType{
			model.AuthSubTypeFingerprintCapacitive,
			model.AuthSubTypeFingerprintOptical,
			model.AuthSubTypeFingerprintUltrasonic,
		},
		MaxEnrollments: maxEnrollments,
		MinSampleSize:  minSampleSize,
		MaxRetries:     maxRetries,
		PoorSampleTip:  int32(model.FingerprintTipInsufficient),
	}
}

type bioTemplate struct {
	Version int    `cbor:"1,keyasint"`
	SubType int32  `cbor:"2,keyasint"`
	Digest  []byte `cbor:"3,keyasint"`
}

// Executor 生物特征执行器
// 模板只保存样本的带密钥BLAKE3摘要，比对为摘要完全相等
type Executor struct {
	cfg     Config
	key     []byte
	sensor  Sensor
	lockout *types.Lockout
}

// New 创建生物特征执行器，key为32字节模板密钥
func New(cfg Config, key []byte, sensor Sensor, lockout *types.Lockout) (*Executor, error) {
	if len(key) != digestSize {
		return nil, fmt.Errorf("biometric template key must be %d bytes", digestSize)
	}
	if cfg.MaxEnrollments <= 0 {
		cfg.MaxEnrollments = 1
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
	return &Executor{cfg: cfg, key: key, sensor: sensor, lockout: lockout}, nil
}

func (e *Executor) Type() model.AuthType             { return e.cfg.AuthType }
func (e *Executor) Name() string                     { return e.cfg.Name }
func (e *Executor) TrustLevel() model.AuthTrustLevel { return e.cfg.TrustLevel }
func (e *Executor) SubTypes() []model.AuthSubType    { return e.cfg.SubTypes }
func (e *Executor) MaxEnrollments() int              { return e.cfg.MaxEnrollments }

// capture 采集合格样本，不合格时上报提示并重试
func (e *Executor) capture(ctx context.Context, tip types.TipFunc) (*Sample, error) {
	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		sample, err := e.sensor.Capture(ctx, e.cfg.AuthType)
		if err != nil {
			return nil, err
		}
		if len(sample.Data) >= e.cfg.MinSampleSize {
			return sample, nil
		}
		if tip != nil {
			tip(model.AcquireInfo{Module: int32(e.cfg.AuthType), Tip: e.cfg.PoorSampleTip})
		}
		log.Printf("[DEBUG] %s样本不合格: %d/%d", e.cfg.Name, attempt, e.cfg.MaxRetries)
	}
	return nil, types.ErrInvalidSample
}

func (e *Executor) digest(localID int, data []byte) ([]byte, error) {
	hasher, err := blake3.NewKeyed(e.key)
	if err != nil {
		return nil, err
	}
	// 摘要与账号绑定，不同账号录入相同样本得到不同模板
	fmt.Fprintf(hasher, "%s:%d:", e.cfg.Name, localID)
	hasher.Write(data)
	return hasher.Sum(nil), nil
}

// Enroll 采集样本并生成模板
func (e *Executor) Enroll(ctx context.Context, req *types.EnrollRequest, tip types.TipFunc) (*types.Enrollment, error) {
	sample, err := e.capture(ctx, tip)
	if err != nil {
		if errors.Is(err, types.ErrInvalidSample) {
			return nil, types.NewExecutorError(model.ResultFail, "no usable sample", err)
		}
		return nil, err
	}

	subType := sample.SubType
	if !types.HasSubType(e, subType) {
		subType = req.AuthSubType
	}
	if !types.HasSubType(e, subType) {
		subType = e.cfg.SubTypes[0]
	}

	digest, err := e.digest(req.LocalID, sample.Data)
	if err != nil {
		return nil, err
	}
	for _, existing := range req.Existing {
		var tpl bioTemplate
		if types.DecodeTemplate(existing.Template, &tpl) == nil && subtle.ConstantTimeCompare(tpl.Digest, digest) == 1 {
			return nil, types.NewExecutorError(model.ResultGeneralError, "sample already enrolled", nil)
		}
	}

	template, err := types.EncodeTemplate(bioTemplate{Version: templateVersion, SubType: int32(subType), Digest: digest})
	if err != nil {
		return nil, err
	}
	return &types.Enrollment{AuthSubType: subType, Template: template}, nil
}

// Authenticate 采集样本并与模板比对
func (e *Executor) Authenticate(ctx context.Context, req *types.AuthRequest, tip types.TipFunc) (*types.Match, error) {
	if err := e.lockout.Check(req.LocalID); err != nil {
		return nil, err
	}
	sample, err := e.capture(ctx, tip)
	if errors.Is(err, types.ErrInvalidSample) {
		return nil, e.lockout.Fail(req.LocalID)
	}
	if err != nil {
		return nil, err
	}

	digest, err := e.digest(req.LocalID, sample.Data)
	if err != nil {
		return nil, err
	}
	for i := range req.Credentials {
		cred := &req.Credentials[i]
		var tpl bioTemplate
		if err := types.DecodeTemplate(cred.Template, &tpl); err != nil {
			log.Printf("[WARN] %s模板损坏: credential=%d, err=%v", e.cfg.Name, cred.ID, err)
			continue
		}
		if subtle.ConstantTimeCompare(tpl.Digest, digest) == 1 {
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

// SetProperty INIT_ALGORITHM不带参数，重新初始化时不保留模板外的状态
func (e *Executor) SetProperty(ctx context.Context, key model.SetPropertyType, value []byte) error {
	if key != model.SetPropertyInitAlgorithm {
		return types.ErrUnsupportedProperty
	}
	if len(value) != 0 {
		return types.NewExecutorError(model.ResultInvalidParameters, "init algorithm takes no value", nil)
	}
	return nil
}

// Forget 清除失败计数
func (e *Executor) Forget(localID int) {
	e.lockout.Reset(localID)
}
