package crypto

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// TemplateKeyBlock 模板密钥的PEM块类型
	TemplateKeyBlock = "OSACCOUNT TEMPLATE KEY"
	// TokenSecretBlock 令牌签名密钥的PEM块类型
	TokenSecretBlock = "OSACCOUNT TOKEN SECRET"
	// CallerSecretBlock 调用方令牌签名密钥的PEM块类型
	CallerSecretBlock = "OSACCOUNT CALLER SECRET"
	// KeySize 对称密钥长度（字节）
	KeySize = chacha20poly1305.KeySize
)

var (
	ErrInvalidKey    = errors.New("invalid key")
	ErrSealedTooThin = errors.New("sealed data too short")
)

// LoadKey 从PEM文件加载对称密钥
func LoadKey(path, blockType string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("读取密钥文件失败: %v", err)
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		log.Printf("解析密钥PEM失败")
		return nil, fmt.Errorf("failed to decode key PEM")
	}
	if block.Type != blockType {
		return nil, fmt.Errorf("%w: unexpected PEM block %q", ErrInvalidKey, block.Type)
	}
	if len(block.Bytes) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(block.Bytes))
	}
	return block.Bytes, nil
}

// NewKey 生成随机对称密钥
func NewKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return key, nil
}

// GenerateKey 生成新的对称密钥并保存为PEM文件
func GenerateKey(path, blockType string) error {
	key, err := NewKey()
	if err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create key file: %w", err)
	}
	defer file.Close()

	if err := pem.Encode(file, &pem.Block{Type: blockType, Bytes: key}); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}

// ParseHexKey 解析十六进制编码的对称密钥
func ParseHexKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKey, KeySize, len(key))
	}
	return key, nil
}

// Seal 使用XChaCha20-Poly1305加密数据，输出为 nonce || 密文
func Seal(key, plaintext, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open 解密Seal的输出
func Open(key, sealed, additionalData []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrSealedTooThin
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, fmt.Errorf("failed to open sealed data: %w", err)
	}
	return plaintext, nil
}
