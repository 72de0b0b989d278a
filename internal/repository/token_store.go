package repository

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// TokenStore 认证令牌存储，令牌只能被消费一次
type TokenStore interface {
	// Save 记录已签发的令牌
	Save(ctx context.Context, tokenID string, localID int, ttl time.Duration) error
	// Consume 原子地取出令牌，令牌不存在或已过期时ok为false
	Consume(ctx context.Context, tokenID string) (localID int, ok bool, err error)
	// Revoke 作废令牌
	Revoke(ctx context.Context, tokenID string) error
}

type tokenEntry struct {
	localID   int
	expiresAt time.Time
}

// memoryTokenStore 进程内令牌存储
type memoryTokenStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]tokenEntry
}

// NewMemoryTokenStore 创建进程内令牌存储，未配置Redis时使用
func NewMemoryTokenStore(clock clockwork.Clock) TokenStore {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &memoryTokenStore{
		clock:   clock,
		entries: make(map[string]tokenEntry),
	}
}

// Save 记录令牌
func (s *memoryTokenStore) Save(ctx context.Context, tokenID string, localID int, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	// 顺带清理过期令牌
	for id, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, id)
		}
	}
	s.entries[tokenID] = tokenEntry{localID: localID, expiresAt: now.Add(ttl)}
	return nil
}

// Consume 取出令牌
func (s *memoryTokenStore) Consume(ctx context.Context, tokenID string) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[tokenID]
	if !ok {
		return 0, false, nil
	}
	delete(s.entries, tokenID)
	if !s.clock.Now().Before(entry.expiresAt) {
		return 0, false, nil
	}
	return entry.localID, true, nil
}

// Revoke 作废令牌
func (s *memoryTokenStore) Revoke(ctx context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, tokenID)
	return nil
}
