package types

import (
	"math"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const defaultMaxAttempts = 5

type lockState struct {
	failures int
	until    time.Time
}

// Lockout 按账号统计连续失败次数，达到上限后冻结一段时间
type Lockout struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	maxAttempts int
	freeze      time.Duration
	states      map[int]*lockState
}

// NewLockout 创建失败锁定器
func NewLockout(clock clockwork.Clock, maxAttempts int, freeze time.Duration) *Lockout {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Lockout{
		clock:       clock,
		maxAttempts: maxAttempts,
		freeze:      freeze,
		states:      make(map[int]*lockState),
	}
}

// Check 账号处于冻结期时返回LOCKED错误
func (l *Lockout) Check(localID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining := l.frozenFor(localID); remaining > 0 {
		return Locked(toMillis(remaining))
	}
	return nil
}

// Fail 记录一次失败，返回FAIL或LOCKED错误
func (l *Lockout) Fail(localID int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	st := l.state(localID)
	st.failures++
	if st.failures >= l.maxAttempts {
		st.failures = 0
		st.until = l.clock.Now().Add(l.freeze)
		return Locked(toMillis(l.freeze))
	}
	return Failed(int32(l.maxAttempts - st.failures))
}

// Succeed 认证成功后清零失败计数
func (l *Lockout) Succeed(localID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.states, localID)
}

// Status 返回剩余尝试次数和剩余冻结时间（毫秒）
func (l *Lockout) Status(localID int) (remainTimes, freezingTime int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if remaining := l.frozenFor(localID); remaining > 0 {
		return 0, toMillis(remaining)
	}
	st, ok := l.states[localID]
	if !ok {
		return int32(l.maxAttempts), 0
	}
	return int32(l.maxAttempts - st.failures), 0
}

// Reset 清除账号的失败记录
func (l *Lockout) Reset(localID int) {
	l.Succeed(localID)
}

func (l *Lockout) state(localID int) *lockState {
	st, ok := l.states[localID]
	if !ok {
		st = &lockState{}
		l.states[localID] = st
	}
	return st
}

// frozenFor 调用方需持有锁
func (l *Lockout) frozenFor(localID int) time.Duration {
	st, ok := l.states[localID]
	if !ok || st.until.IsZero() {
		return 0
	}
	remaining := st.until.Sub(l.clock.Now())
	if remaining <= 0 {
		st.until = time.Time{}
		return 0
	}
	return remaining
}

func toMillis(d time.Duration) int32 {
	ms := d.Milliseconds()
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	if ms == 0 && d > 0 {
		return 1
	}
	return int32(ms)
}
