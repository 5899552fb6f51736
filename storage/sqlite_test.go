package storage

import (
	"path/filepath"
	"testing"
	"time"

	"tradeforge/metrics"
)

func openTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := NewSQLiteStorage(Options{
		Path:          filepath.Join(t.TempDir(), "logs.db"),
		BatchSize:     2,
		FlushInterval: time.Hour,
	})
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	return s
}

func TestLogStorage(t *testing.T) {
	s := openTestStorage(t)
	path := s.opts.Path

	s.WriteLog("INFO", "🚀 开始回测")
	s.WriteLog("WARN", "⚠️ 跳过买入信号")
	s.WriteLog("INFO", "✅ 回测完成")

	// Close 会刷新剩余日志
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	s.WriteLog("INFO", "关闭后写入应被忽略")

	s, err := NewSQLiteStorage(Options{Path: path})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	logs, total, err := s.GetLogs(LogQueryParams{})
	if err != nil {
		t.Fatal(err)
	}
	if total != 3 || len(logs) != 3 {
		t.Fatalf("期望 3 条日志, 得到 total=%d len=%d", total, len(logs))
	}

	warn, total, err := s.GetLogs(LogQueryParams{Level: "warn"})
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 || warn[0].Message != "⚠️ 跳过买入信号" {
		t.Errorf("按级别过滤错误: %+v", warn)
	}

	hits, _, err := s.GetLogs(LogQueryParams{Keyword: "回测", Limit: 1})
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 {
		t.Errorf("分页后应只返回 1 条, 得到 %d", len(hits))
	}

	stats, err := s.GetLogStats()
	if err != nil {
		t.Fatal(err)
	}
	if stats.Total != 3 || stats.ByLevel["INFO"] != 2 || stats.OldestTime == nil {
		t.Errorf("统计错误: %+v", stats)
	}

	removed, err := s.CleanOldLogs(0)
	if err != nil {
		t.Fatal(err)
	}
	if removed != 3 {
		t.Errorf("应清理 3 条, 得到 %d", removed)
	}
}

func TestSystemMetricsStorage(t *testing.T) {
	s := openTestStorage(t)
	defer s.Close()

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		snap := &metrics.SystemSnapshot{
			Timestamp:  base.Add(time.Duration(i) * time.Minute),
			ProcessID:  42,
			CPUPercent: float64(i * 10),
			MemoryMB:   64,
			Goroutines: 8,
		}
		if err := s.SaveSystemSnapshot(snap); err != nil {
			t.Fatal(err)
		}
	}

	got, err := s.QuerySystemMetrics(base, base.Add(90*time.Second))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[1].CPUPercent != 10 || got[0].ProcessID != 42 {
		t.Errorf("查询结果错误: %+v", got)
	}

	removed, err := s.CleanupSystemMetrics(base.Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Errorf("应删除 1 条, 得到 %d", removed)
	}
}
