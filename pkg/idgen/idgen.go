package idgen

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// Generator 基于snowflake的64位ID生成器
type Generator struct {
	node *snowflake.Node
}

// NewGenerator 使用给定节点号创建ID生成器
func NewGenerator(nodeID int64) (*Generator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("failed to create snowflake node %d: %w", nodeID, err)
	}
	return &Generator{node: node}, nil
}

// Next 生成一个非零的64位ID
func (g *Generator) Next() uint64 {
	return uint64(g.node.Generate().Int64())
}

// NewKSUID 生成全局唯一的KSUID字符串
func NewKSUID() string {
	return ksuid.New().String()
}

// NewChallenge 生成一个非零的随机挑战值
func NewChallenge() (uint64, error) {
	var buf [8]byte
	for {
		if _, err := rand.Read(buf[:]); err != nil {
			return 0, fmt.Errorf("failed to read random challenge: %w", err)
		}
		if v := binary.BigEndian.Uint64(buf[:]); v != 0 {
			return v, nil
		}
	}
}
