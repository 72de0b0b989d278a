package repository

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"osaccount/pkg/redis"
)

const authTokenKeyPrefix = "osaccount:auth_token:"

// redisTokenStore Redis令牌存储
type redisTokenStore struct {
	redis *redis.Client
}

// NewRedisTokenStore 创建Redis令牌存储
func NewRedisTokenStore(client *redis.Client) TokenStore {
	return &redisTokenStore{redis: client}
}

// Save 记录令牌，过期由Redis负责
func (s *redisTokenStore) Save(ctx context.Context, tokenID string, localID int, ttl time.Duration) error {
	if err := s.redis.Set(ctx, authTokenKeyPrefix+tokenID, localID, ttl); err != nil {
		return fmt.Errorf("failed to save auth token: %w", err)
	}
	return nil
}

// Consume 使用GETDEL原子地取出令牌
func (s *redisTokenStore) Consume(ctx context.Context, tokenID string) (int, bool, error) {
	value, ok, err := s.redis.GetDel(ctx, authTokenKeyPrefix+tokenID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to consume auth token: %w", err)
	}
	if !ok {
		return 0, false, nil
	}
	localID, err := strconv.Atoi(value)
	if err != nil {
		return 0, false, fmt.Errorf("corrupted auth token entry: %w", err)
	}
	return localID, true, nil
}

// Revoke 作废令牌
func (s *redisTokenStore) Revoke(ctx context.Context, tokenID string) error {
	return s.redis.Del(ctx, authTokenKeyPrefix+tokenID)
}
