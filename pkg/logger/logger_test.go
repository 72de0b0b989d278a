package logger

import (
	"bytes"
	"log"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
)

func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	noColor := color.NoColor
	color.NoColor = true
	var buf bytes.Buffer
	SetOutput(&buf)
	SetLevel(level)
	std.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() {
		color.NoColor = noColor
		SetOutput(os.Stdout)
		SetLevel(LevelDebug)
		std.now = time.Now
	})
	return &buf
}

func TestLevelFilter(t *testing.T) {
	buf := capture(t, LevelInfo)

	log.Printf("[DEBUG] hidden")
	Info("account created: local_id=%d", 101)
	Warn("lockout: remain=%d", 0)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasPrefix(lines[0], "2024/01/02 03:04:05.000 ") || !strings.Contains(lines[0], "[INFO] account created: local_id=101") {
		t.Errorf("info line = %q", lines[0])
	}
	if !strings.Contains(lines[1], "[WARN] lockout: remain=0") {
		t.Errorf("warn line = %q", lines[1])
	}
}

func TestCallerIsReported(t *testing.T) {
	buf := capture(t, LevelDebug)
	log.Printf("[DEBUG] here")
	if !strings.Contains(buf.String(), "logger_test.go:") {
		t.Errorf("line = %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"INFO":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelDebug,
		"bogus": LevelDebug,
	}
	for name, want := range tests {
		if got := ParseLevel(name); got != want {
			t.Errorf("ParseLevel(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestHighlightKeepsText(t *testing.T) {
	noColor := color.NoColor
	color.NoColor = false
	defer func() { color.NoColor = noColor }()

	msg := "auth PIN failed: local_id=100 result=LOCKED"
	out := highlight(msg)
	if out == msg {
		t.Fatal("nothing highlighted")
	}
	color.NoColor = true
	if got := highlight(msg); got != msg {
		t.Errorf("plain = %q", got)
	}
}
