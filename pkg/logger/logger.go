package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

var levelTags = []struct {
	tag   string
	level Level
	color *color.Color
}{
	{"[DEBUG]", LevelDebug, color.New(color.FgHiBlue)},
	{"[INFO]", LevelInfo, color.New(color.FgHiCyan)},
	{"[WARN]", LevelWarn, color.New(color.FgHiYellow)},
	{"[ERROR]", LevelError, color.New(color.FgHiRed)},
	{"[FATAL]", LevelFatal, color.New(color.FgHiRed, color.Bold)},
}

// ParseLevel 解析级别名称，无法识别时返回LevelDebug
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelDebug
	}
}

type rule struct {
	pattern string
	color   *color.Color
}

// 高亮规则，靠前的规则优先
var highlightRules = []rule{
	{`(?i)\b(error|panic|failed|fail)\b`, color.New(color.FgHiRed)},

	// 结果码
	{`\b(SUCCESS)\b`, color.New(color.FgHiGreen)},
	{`\b(GENERAL_ERROR|CANCELED|TIMEOUT|TYPE_NOT_SUPPORT|TRUST_LEVEL_NOT_SUPPORT|BUSY|INVALID_PARAMETERS|LOCKED|NOT_ENROLLED)\b`, color.New(color.FgHiYellow)},

	// 认证类型
	{`\b(PIN|FACE|FINGERPRINT|RECOVERY_KEY)\b`, color.New(color.FgHiMagenta)},

	// 账号与凭据标识
	{`\b((?:local_id|uid|credential_id|context_id|challenge)=-?\d+)`, color.New(color.FgHiGreen)},
	{`([a-zA-Z_][a-zA-Z0-9_]*=)`, color.New(color.FgHiCyan)},

	// 时间与地址
	{`\d{2}:\d{2}:\d{2}(?:\.\d{3})?`, color.New(color.FgCyan)},
	{`:\d{2,5}(?:\b|$)`, color.New(color.FgHiCyan)},

	// HTTP
	{`\b(GET|POST|PUT|DELETE|PATCH|OPTIONS)\b`, color.New(color.FgBlue)},
	{`\b([45]\d{2})\b`, color.New(color.FgHiRed)},
	{`\b(2\d{2})\b`, color.New(color.FgHiGreen)},

	{`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`, color.New(color.FgHiBlue)},
	{`\b(true|false)\b`, color.New(color.FgHiCyan)},
	{`(/[\w/.-]+\.\w+)`, color.New(color.FgBlue)},
}

var (
	combinedRegex *regexp.Regexp
	colorMap      []*color.Color
)

// colorWriter 标准库logger的输出目标
type colorWriter struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
	now   func() time.Time
}

var std = &colorWriter{out: os.Stdout, now: time.Now}

var builderPool = sync.Pool{
	New: func() interface{} {
		return new(strings.Builder)
	},
}

// SetLevel 设置最低输出级别
func SetLevel(level Level) {
	std.mu.Lock()
	std.level = level
	std.mu.Unlock()
}

// SetOutput 设置输出目标
func SetOutput(w io.Writer) {
	std.mu.Lock()
	std.out = w
	std.mu.Unlock()
}

func (w *colorWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))

	level, tag, tagColor := LevelInfo, "", levelTags[LevelInfo].color
	for _, lt := range levelTags {
		if strings.HasPrefix(msg, lt.tag) {
			level, tag, tagColor = lt.level, lt.tag, lt.color
			msg = strings.TrimSpace(strings.TrimPrefix(msg, lt.tag))
			break
		}
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if level < w.level {
		return len(p), nil
	}

	// Write <- log.output <- log.Printf <- 调用方
	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file, line = "???", 0
	}

	sb := builderPool.Get().(*strings.Builder)
	defer builderPool.Put(sb)
	sb.Reset()

	prefix := fmt.Sprintf("%s %s:%d", w.now().Format("2006/01/02 15:04:05.000"), filepath.Base(file), line)
	sb.WriteString(color.New(color.FgHiBlue).Sprint(prefix))
	sb.WriteByte(' ')
	if tag != "" {
		sb.WriteString(tagColor.Sprint(tag))
		sb.WriteByte(' ')
	}
	sb.WriteString(highlight(msg))
	sb.WriteByte('\n')

	if _, err := io.WriteString(w.out, sb.String()); err != nil {
		return 0, err
	}
	return len(p), nil
}

// highlight 用合并后的正则一次找出全部命中区间再着色
func highlight(msg string) string {
	matches := combinedRegex.FindAllStringSubmatchIndex(msg, -1)
	if len(matches) == 0 {
		return msg
	}

	type interval struct {
		start, end int
		color      *color.Color
	}
	var intervals []interval
	for _, m := range matches {
		// m[2+2i], m[3+2i] 为第i条规则的捕获组
		for i := range colorMap {
			start, end := m[2+2*i], m[3+2*i]
			if start >= 0 && end <= len(msg) {
				intervals = append(intervals, interval{start, end, colorMap[i]})
				break
			}
		}
	}
	if len(intervals) == 0 {
		return msg
	}
	sort.Slice(intervals, func(i, j int) bool {
		return intervals[i].start < intervals[j].start
	})

	var out strings.Builder
	out.Grow(len(msg))
	cur := 0
	for _, iv := range intervals {
		if iv.start < cur {
			continue
		}
		out.WriteString(msg[cur:iv.start])
		out.WriteString(iv.color.Sprint(msg[iv.start:iv.end]))
		cur = iv.end
	}
	out.WriteString(msg[cur:])
	return out.String()
}

func init() {
	// 每条规则一个捕获组，规则内部只允许非捕获组
	parts := make([]string, 0, len(highlightRules))
	colorMap = make([]*color.Color, 0, len(highlightRules))
	for _, r := range highlightRules {
		parts = append(parts, "("+nonCapturing(r.pattern)+")")
		colorMap = append(colorMap, r.color)
	}
	combinedRegex = regexp.MustCompile(strings.Join(parts, "|"))

	log.SetOutput(std)
	log.SetFlags(0)
}

// nonCapturing 把规则里的捕获组改写为非捕获组，保证组序号与规则一一对应
func nonCapturing(pattern string) string {
	var sb strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		if c == '\\' && i+1 < len(pattern) {
			sb.WriteByte(c)
			sb.WriteByte(pattern[i+1])
			i++
			continue
		}
		sb.WriteByte(c)
		if c == '(' && (i+1 >= len(pattern) || pattern[i+1] != '?') {
			sb.WriteString("?:")
		}
	}
	return sb.String()
}

func Debug(format string, v ...interface{}) {
	log.Printf("[DEBUG] "+format, v...)
}

func Info(format string, v ...interface{}) {
	log.Printf("[INFO] "+format, v...)
}

func Warn(format string, v ...interface{}) {
	log.Printf("[WARN] "+format, v...)
}

func Error(format string, v ...interface{}) {
	log.Printf("[ERROR] "+format, v...)
}

func Fatal(format string, v ...interface{}) {
	log.Printf("[FATAL] "+format, v...)
	os.Exit(1)
}
