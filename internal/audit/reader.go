package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
)

// Reader 审计日志读取器
type Reader struct {
	baseDir string // 基础目录
}

// NewReader 创建新的日志读取器
func NewReader(baseDir string) *Reader {
	return &Reader{baseDir: baseDir}
}

// files 按时间顺序列出日志文件
func (r *Reader) files() ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(r.baseDir, "audit-*.log"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// readAll 按写入顺序读取全部日志
func (r *Reader) readAll(ctx context.Context) ([]*AuditLog, error) {
	files, err := r.files()
	if err != nil {
		return nil, fmt.Errorf("failed to list audit files: %w", err)
	}

	var logs []*AuditLog
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fileLogs, err := readFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read file %s: %w", name, err)
		}
		logs = append(logs, fileLogs...)
	}
	return logs, nil
}

// ReadLogs 按条件查询日志
func (r *Reader) ReadLogs(ctx context.Context, params QueryParams) ([]*AuditLog, error) {
	all, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}

	var logs []*AuditLog
	for _, entry := range all {
		if matchFilters(entry, params) {
			logs = append(logs, entry)
		}
	}

	// 应用分页
	if params.Offset >= len(logs) {
		return []*AuditLog{}, nil
	}
	end := len(logs)
	if params.Limit > 0 && params.Offset+params.Limit < end {
		end = params.Offset + params.Limit
	}
	return logs[params.Offset:end], nil
}

// Verify 校验全部日志的哈希链
func (r *Reader) Verify(ctx context.Context) (*VerifyResult, error) {
	logs, err := r.readAll(ctx)
	if err != nil {
		return nil, err
	}
	result := &VerifyResult{Total: len(logs), BrokenAt: VerifyChain(logs)}
	result.Valid = result.BrokenAt < 0
	if len(logs) > 0 {
		result.LastHash = logs[len(logs)-1].Hash
	}
	return result, nil
}

// readFile 读取单个日志文件
func readFile(filename string) ([]*AuditLog, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var logs []*AuditLog
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		var entry AuditLog
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			log.Printf("[WARN] 跳过无效的审计日志行 %s:%d: %v", filepath.Base(filename), lineNum, err)
			continue
		}
		logs = append(logs, &entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// matchFilters 检查日志是否匹配过滤条件
func matchFilters(entry *AuditLog, params QueryParams) bool {
	if params.StartTime != nil && entry.Timestamp.Before(*params.StartTime) {
		return false
	}
	if params.EndTime != nil && entry.Timestamp.After(*params.EndTime) {
		return false
	}
	if params.LocalID != nil && entry.LocalID != *params.LocalID {
		return false
	}
	if len(params.EventTypes) > 0 {
		for _, et := range params.EventTypes {
			if entry.EventType == et {
				return true
			}
		}
		return false
	}
	return true
}
