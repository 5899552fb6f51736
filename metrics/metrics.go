package metrics

import (
	"sync"
	"time"
)

// RunStats 进程内回测运行统计
type RunStats struct {
	TotalRuns       int64         `json:"total_runs"`
	FailedRuns      int64         `json:"failed_runs"`
	LastDuration    time.Duration `json:"last_duration_ns"`
	AverageDuration time.Duration `json:"average_duration_ns"`
	BestSharpe      float64       `json:"best_sharpe"`
	LastUpdate      time.Time     `json:"last_update"`
}

// MetricsCollector 运行统计收集器，供 API 直接查询
type MetricsCollector struct {
	mu    sync.RWMutex
	stats RunStats
	total time.Duration
}

// NewMetricsCollector 创建运行统计收集器
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{stats: RunStats{LastUpdate: time.Now()}}
}

// RecordRun 记录一次回测
func (mc *MetricsCollector) RecordRun(duration time.Duration, sharpe float64, err error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	mc.stats.TotalRuns++
	mc.stats.LastDuration = duration
	mc.total += duration
	mc.stats.AverageDuration = mc.total / time.Duration(mc.stats.TotalRuns)
	mc.stats.LastUpdate = time.Now()

	if err != nil {
		mc.stats.FailedRuns++
		return
	}
	if mc.stats.TotalRuns-mc.stats.FailedRuns == 1 || sharpe > mc.stats.BestSharpe {
		mc.stats.BestSharpe = sharpe
	}
}

// Snapshot 获取统计副本
func (mc *MetricsCollector) Snapshot() RunStats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return mc.stats
}
