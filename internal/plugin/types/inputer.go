package types

import (
	"context"
	"log"
	"sync"

	"osaccount/internal/model"
)

// DataSetter 输入者通过它回传数据
type DataSetter interface {
	OnSetData(subType model.AuthSubType, data []byte)
}

// Inputer 数据输入者，执行器需要数据时调用OnGetData
type Inputer interface {
	OnGetData(setter DataSetter)
}

// InputerFunc 函数形式的输入者
type InputerFunc func(setter DataSetter)

// OnGetData 实现Inputer
func (f InputerFunc) OnGetData(setter DataSetter) {
	f(setter)
}

// InputData 输入者回传的数据
type InputData struct {
	SubType model.AuthSubType
	Data    []byte
}

// onceSetter 只接受第一次OnSetData
type onceSetter struct {
	once sync.Once
	ch   chan InputData
}

func (s *onceSetter) OnSetData(subType model.AuthSubType, data []byte) {
	s.once.Do(func() {
		s.ch <- InputData{SubType: subType, Data: append([]byte(nil), data...)}
	})
}

// InputerRegistry 每种认证类型最多注册一个输入者
type InputerRegistry struct {
	mu       sync.RWMutex
	inputers map[model.AuthType]Inputer
}

// NewInputerRegistry 创建输入者注册表
func NewInputerRegistry() *InputerRegistry {
	return &InputerRegistry{inputers: make(map[model.AuthType]Inputer)}
}

// Register 注册输入者，已存在时返回false且不替换
func (r *InputerRegistry) Register(authType model.AuthType, inputer Inputer) bool {
	if inputer == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inputers[authType]; exists {
		return false
	}
	r.inputers[authType] = inputer
	log.Printf("[DEBUG] 注册输入者: authType=%s", authType)
	return true
}

// Unregister 注销输入者，返回是否存在
func (r *InputerRegistry) Unregister(authType model.AuthType) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.inputers[authType]; !exists {
		return false
	}
	delete(r.inputers, authType)
	log.Printf("[DEBUG] 注销输入者: authType=%s", authType)
	return true
}

// Registered 判断是否已注册输入者
func (r *InputerRegistry) Registered(authType model.AuthType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.inputers[authType]
	return ok
}

// RequestData 向输入者请求一次数据，阻塞到数据返回或ctx结束
func (r *InputerRegistry) RequestData(ctx context.Context, authType model.AuthType) (*InputData, error) {
	r.mu.RLock()
	inputer, ok := r.inputers[authType]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNoInputer
	}

	setter := &onceSetter{ch: make(chan InputData, 1)}
	go inputer.OnGetData(setter)

	select {
	case data := <-setter.ch:
		return &data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
