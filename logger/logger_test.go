package logger

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"debug":   DEBUG,
		" INFO ":  INFO,
		"warning": WARN,
		"Error":   ERROR,
		"fatal":   FATAL,
		"verbose": INFO,
	}
	for in, want := range cases {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %s, 期望 %s", in, got, want)
		}
	}
}

func TestLogStorageWriterAndLevel(t *testing.T) {
	defer SetLevel(INFO)
	defer InitLogStorage(nil)

	var (
		mu   sync.Mutex
		seen []string
	)
	InitLogStorage(func(level, message string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, level+"|"+message)
	})

	SetLevel(WARN)
	Info("不应输出 %d", 1)
	Warn("磁盘空间 %d%%", 90)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 1 {
		t.Fatalf("期望 1 条日志, 得到 %d: %v", len(seen), seen)
	}
	if seen[0] != "WARN|[WARN] 磁盘空间 90%" {
		t.Errorf("日志内容错误: %q", seen[0])
	}
}

func TestDebugWritesDailyFile(t *testing.T) {
	dir := t.TempDir()
	SetLogDir(dir)
	defer SetLogDir("logs")
	defer SetLevel(INFO)

	SetLevel(DEBUG)
	Debug("🔍 调试信息 %s", "abc")
	SetLevel(INFO)

	files, err := filepath.Glob(filepath.Join(dir, "app-tradeforge-*.log"))
	if err != nil || len(files) != 1 {
		t.Fatalf("期望生成 1 个日志文件, 得到 %v (%v)", files, err)
	}
	data, err := os.ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[DEBUG] 🔍 调试信息 abc") {
		t.Errorf("日志文件内容错误: %s", data)
	}
}

func TestLoadLocation(t *testing.T) {
	if loc, err := LoadLocation("UTC"); err != nil || loc.String() != "UTC" {
		t.Errorf("加载 UTC 失败: %v %v", loc, err)
	}
	if loc, err := LoadLocation("UTC+8"); err != nil || loc == nil {
		t.Errorf("UTC+8 应回退为固定时区: %v", err)
	}
	if _, err := LoadLocation("Mars/Olympus"); err == nil {
		t.Error("未知时区应返回错误")
	}
}
