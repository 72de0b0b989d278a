package types

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// 模板使用确定性CBOR编码，相同内容总是产生相同字节
var (
	templateEncMode cbor.EncMode
	templateDecMode cbor.DecMode
)

func init() {
	var err error
	templateEncMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("types: CBOR encoder initialization failed: " + err.Error())
	}
	templateDecMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("types: CBOR decoder initialization failed: " + err.Error())
	}
}

// EncodeTemplate 编码执行器模板
func EncodeTemplate(v any) ([]byte, error) {
	data, err := templateEncMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode template: %w", err)
	}
	return data, nil
}

// DecodeTemplate 解码执行器模板
func DecodeTemplate(data []byte, v any) error {
	if err := templateDecMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	return nil
}
