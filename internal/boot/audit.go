package boot

import (
	"log"

	"osaccount/internal/audit"
	"osaccount/pkg/config"

	"github.com/jonboulle/clockwork"
)

// AuditComponents 包含审计相关组件，审计关闭时字段为nil
type AuditComponents struct {
	Writer *audit.Writer
	Reader *audit.Reader
}

// InitAudit 初始化审计相关组件
func InitAudit(cfg *config.AuditConfig, clock clockwork.Clock) (*AuditComponents, error) {
	if !cfg.Enabled {
		log.Printf("[INFO] 审计日志未启用")
		return &AuditComponents{}, nil
	}

	// 哈希链为空时由写入器从已有日志续接
	writer, err := audit.NewWriter(audit.WriterConfig{
		BaseDir:       cfg.LogDir,
		RotationTime:  cfg.RotationTime,
		RetentionDays: cfg.RetentionDays,
		Clock:         clock,
	})
	if err != nil {
		return nil, err
	}

	return &AuditComponents{
		Writer: writer,
		Reader: audit.NewReader(cfg.LogDir),
	}, nil
}

// Close 关闭审计写入器
func (a *AuditComponents) Close() error {
	if a == nil || a.Writer == nil {
		return nil
	}
	return a.Writer.Close()
}
