package metrics

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemSnapshot 系统资源快照
type SystemSnapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	ProcessID     int       `json:"process_id"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	MemoryPercent float64   `json:"memory_percent"` // 占系统内存百分比
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
	NumGC         uint32    `json:"num_gc"`
}

// SystemMetricsCollector 系统指标采集器
type SystemMetricsCollector struct {
	pm       *PrometheusMetrics
	interval time.Duration
	proc     *process.Process
	lastGC   uint32

	mu   sync.RWMutex
	last *SystemSnapshot
	sink func(*SystemSnapshot)

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSystemMetricsCollector 创建系统指标采集器
func NewSystemMetricsCollector(interval time.Duration) *SystemMetricsCollector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	smc := &SystemMetricsCollector{
		pm:       GetPrometheusMetrics(),
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
	if p, err := process.NewProcess(int32(os.Getpid())); err == nil {
		smc.proc = p
	}
	return smc
}

// Start 启动采集
func (smc *SystemMetricsCollector) Start() {
	go smc.collectLoop()
}

// Stop 停止采集
func (smc *SystemMetricsCollector) Stop() {
	if smc.cancel != nil {
		smc.cancel()
	}
}

// SetSink 设置采样回调（如持久化），在采集协程中调用
func (smc *SystemMetricsCollector) SetSink(sink func(*SystemSnapshot)) {
	smc.mu.Lock()
	defer smc.mu.Unlock()
	smc.sink = sink
}

// Last 最近一次采集结果，尚未采集时为 nil
func (smc *SystemMetricsCollector) Last() *SystemSnapshot {
	smc.mu.RLock()
	defer smc.mu.RUnlock()
	return smc.last
}

func (smc *SystemMetricsCollector) collectLoop() {
	ticker := time.NewTicker(smc.interval)
	defer ticker.Stop()

	smc.Collect()

	for {
		select {
		case <-smc.ctx.Done():
			return
		case <-ticker.C:
			smc.Collect()
		}
	}
}

// Collect 立即采集一次
func (smc *SystemMetricsCollector) Collect() *SystemSnapshot {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snap := &SystemSnapshot{
		Timestamp:   time.Now(),
		ProcessID:   os.Getpid(),
		Goroutines:  runtime.NumGoroutine(),
		HeapAllocMB: float64(m.Alloc) / 1024 / 1024,
		NumGC:       m.NumGC,
	}

	smc.pm.SetGoroutineCount(snap.Goroutines)
	smc.pm.SetMemoryAlloc(m.Alloc)

	// PauseNs 是循环缓冲区，最新一次在 (NumGC+255)%256
	if m.NumGC > smc.lastGC {
		if pauseNs := m.PauseNs[(m.NumGC+255)%256]; pauseNs > 0 {
			smc.pm.RecordGCPause(time.Duration(pauseNs))
		}
		smc.lastGC = m.NumGC
	}

	if err := smc.collectProcess(snap); err == nil {
		smc.pm.SetProcessUsage(snap.CPUPercent, uint64(snap.MemoryMB*1024*1024))
	}

	smc.mu.Lock()
	smc.last = snap
	sink := smc.sink
	smc.mu.Unlock()

	if sink != nil {
		sink(snap)
	}
	return snap
}

func (smc *SystemMetricsCollector) collectProcess(snap *SystemSnapshot) error {
	if smc.proc == nil {
		return fmt.Errorf("进程信息不可用")
	}

	cpuPercent, err := smc.proc.CPUPercent()
	if err != nil {
		return fmt.Errorf("获取CPU占用率失败: %w", err)
	}
	memInfo, err := smc.proc.MemoryInfo()
	if err != nil {
		return fmt.Errorf("获取内存信息失败: %w", err)
	}

	snap.CPUPercent = cpuPercent
	snap.MemoryMB = float64(memInfo.RSS) / 1024 / 1024
	if vm, err := mem.VirtualMemory(); err == nil && vm.Total > 0 {
		snap.MemoryPercent = float64(memInfo.RSS) / float64(vm.Total) * 100
	}
	return nil
}
