package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollector(t *testing.T) {
	mc := NewMetricsCollector()

	mc.RecordRun(10*time.Millisecond, -0.5, nil)
	mc.RecordRun(30*time.Millisecond, 0, errors.New("boom"))
	mc.RecordRun(20*time.Millisecond, 1.2, nil)

	s := mc.Snapshot()
	if s.TotalRuns != 3 || s.FailedRuns != 1 {
		t.Errorf("计数错误: %+v", s)
	}
	if s.AverageDuration != 20*time.Millisecond || s.LastDuration != 20*time.Millisecond {
		t.Errorf("耗时统计错误: %+v", s)
	}
	if s.BestSharpe != 1.2 {
		t.Errorf("最优夏普期望 1.2, 得到 %v", s.BestSharpe)
	}
}

func TestFirstSuccessfulRunSetsBestSharpe(t *testing.T) {
	mc := NewMetricsCollector()
	mc.RecordRun(time.Millisecond, -2, nil)
	if s := mc.Snapshot(); s.BestSharpe != -2 {
		t.Errorf("第一次成功运行应设置最优夏普, 得到 %v", s.BestSharpe)
	}
}

func TestRecordBacktestRun(t *testing.T) {
	pm := GetPrometheusMetrics()
	before := testutil.ToFloat64(backtestRunsTotal.WithLabelValues("METRICTEST", "success"))

	pm.RecordBacktestRun("METRICTEST", "success", 5*time.Millisecond)
	pm.RecordBacktestResult("METRICTEST", 4, 1, 12.5, -3.2, 1.1)

	if got := testutil.ToFloat64(backtestRunsTotal.WithLabelValues("METRICTEST", "success")); got != before+1 {
		t.Errorf("运行计数期望 %v, 得到 %v", before+1, got)
	}
	if got := testutil.ToFloat64(lastMaxDrawdownPct.WithLabelValues("METRICTEST")); got != -3.2 {
		t.Errorf("回撤 gauge 期望 -3.2, 得到 %v", got)
	}
	if got := testutil.ToFloat64(backtestRunsTotal.WithLabelValues("inline", "success")); got < 0 {
		t.Errorf("inline 标签不应为负: %v", got)
	}
}

func TestSystemCollector(t *testing.T) {
	smc := NewSystemMetricsCollector(time.Hour)
	if smc.Last() != nil {
		t.Fatal("采集前 Last 应为 nil")
	}
	snap := smc.Collect()
	if snap.Goroutines <= 0 || snap.ProcessID <= 0 {
		t.Errorf("快照错误: %+v", snap)
	}
	if smc.Last() != snap {
		t.Error("Last 应返回最近一次快照")
	}
}
