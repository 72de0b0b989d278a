package biometric

import (
	"context"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
)

// Sample 一次采集的原始数据
type Sample struct {
	SubType model.AuthSubType
	Data    []byte
}

// Sensor 采集设备接口，具体驱动在进程外实现
type Sensor interface {
	Capture(ctx context.Context, authType model.AuthType) (*Sample, error)
}

// InputerSensor 通过输入者注册表获取远端设备推送的采集数据
type InputerSensor struct {
	inputers *types.InputerRegistry
}

// NewInputerSensor 创建基于输入者的采集设备
func NewInputerSensor(inputers *types.InputerRegistry) *InputerSensor {
	return &InputerSensor{inputers: inputers}
}

// Capture 请求一次采集数据
func (s *InputerSensor) Capture(ctx context.Context, authType model.AuthType) (*Sample, error) {
	data, err := s.inputers.RequestData(ctx, authType)
	if err != nil {
		return nil, err
	}
	return &Sample{SubType: data.SubType, Data: data.Data}, nil
}
