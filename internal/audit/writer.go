package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	rotatelogs "github.com/lestrrat-go/file-rotatelogs"
)

// filePattern 轮转文件名，按名称排序即按时间排序
const filePattern = "audit-%Y%m%d%H%M%S.log"

// Writer 审计日志写入器
type Writer struct {
	mu        sync.Mutex
	out       io.WriteCloser
	hashChain *HashChain
	clock     clockwork.Clock
}

// WriterConfig 写入器配置
type WriterConfig struct {
	BaseDir       string          // 基础目录
	RotationTime  time.Duration   // 轮转周期，默认24小时
	RetentionDays int             // 保留天数，0表示不清理
	HashChain     *HashChain      // 哈希链，为空时从已有日志续接
	Clock         clockwork.Clock // 时钟
}

// NewWriter 创建新的日志写入器
func NewWriter(config WriterConfig) (*Writer, error) {
	if config.RotationTime <= 0 {
		config.RotationTime = 24 * time.Hour
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory %s: %w", config.BaseDir, err)
	}

	if config.HashChain == nil {
		// 续接磁盘上的哈希链
		result, err := NewReader(config.BaseDir).Verify(context.Background())
		if err != nil {
			return nil, fmt.Errorf("failed to resume hash chain: %w", err)
		}
		if !result.Valid {
			log.Printf("[WARN] 审计日志哈希链在第%d条处断裂", result.BrokenAt)
		}
		config.HashChain = NewHashChain(result.LastHash)
	}

	maxAge := time.Duration(-1)
	if config.RetentionDays > 0 {
		maxAge = time.Duration(config.RetentionDays) * 24 * time.Hour
	}
	out, err := rotatelogs.New(
		filepath.Join(config.BaseDir, filePattern),
		rotatelogs.WithRotationTime(config.RotationTime),
		rotatelogs.WithMaxAge(maxAge),
		rotatelogs.WithClock(rotatelogs.Local),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}

	return &Writer{
		out:       out,
		hashChain: config.HashChain,
		clock:     config.Clock,
	}, nil
}

// Write 写入审计日志
func (w *Writer) Write(entry *AuditLog) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = w.clock.Now().UTC()
	}

	if err := w.hashChain.AddLog(entry); err != nil {
		return fmt.Errorf("failed to add log to hash chain: %w", err)
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal log: %w", err)
	}
	data = append(data, '\n')

	if _, err := w.out.Write(data); err != nil {
		return fmt.Errorf("failed to write log: %w", err)
	}
	return nil
}

// Record 记录一条审计事件，写入失败只记录日志
func (w *Writer) Record(ctx context.Context, event EventType, localID, callerUID int, details map[string]interface{}) {
	entry := &AuditLog{
		EventType: event,
		LocalID:   localID,
		CallerUID: callerUID,
		Details:   details,
	}
	if err := w.Write(entry); err != nil {
		log.Printf("[ERROR] 写入审计日志失败: event=%s, local_id=%d, err=%v", event, localID, err)
	}
}

// Close 关闭写入器
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Close()
}
