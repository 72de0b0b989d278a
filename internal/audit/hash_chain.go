package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
)

// HashChain 哈希链结构
type HashChain struct {
	mu       sync.RWMutex
	lastHash string
}

// NewHashChain 创建哈希链，lastHash为已落盘日志的最后一个哈希，新链传空
func NewHashChain(lastHash string) *HashChain {
	return &HashChain{lastHash: lastHash}
}

// calculateHash 计算日志的哈希值
func calculateHash(log *AuditLog) (string, error) {
	// 清除哈希字段后序列化
	logCopy := *log
	logCopy.Hash = ""

	data, err := json.Marshal(logCopy)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// AddLog 添加日志到哈希链
func (hc *HashChain) AddLog(log *AuditLog) error {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	log.PrevHash = hc.lastHash
	hash, err := calculateHash(log)
	if err != nil {
		return fmt.Errorf("failed to calculate hash: %w", err)
	}
	log.Hash = hash
	hc.lastHash = hash
	return nil
}

// VerifyLog 验证单条日志的完整性
func VerifyLog(log *AuditLog) bool {
	hash, err := calculateHash(log)
	return err == nil && hash == log.Hash
}

// VerifyChain 验证日志链，返回第一条失败的序号，完整时返回-1
func VerifyChain(logs []*AuditLog) int {
	for i, log := range logs {
		if !VerifyLog(log) {
			return i
		}
		if i > 0 && log.PrevHash != logs[i-1].Hash {
			return i
		}
	}
	return -1
}

// GetLastHash 获取最后一个哈希值
func (hc *HashChain) GetLastHash() string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()
	return hc.lastHash
}
