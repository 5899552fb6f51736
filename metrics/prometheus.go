package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// 回测指标
	backtestRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeforge_backtest_runs_total",
			Help: "Total number of backtest runs by outcome",
		},
		[]string{"symbol", "outcome"},
	)

	backtestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeforge_backtest_duration_seconds",
			Help:    "Backtest run duration in seconds",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		},
		[]string{"symbol"},
	)

	backtestTradesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeforge_backtest_trades_total",
			Help: "Total number of simulated trades",
		},
		[]string{"symbol"},
	)

	backtestSkippedBuysTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeforge_backtest_skipped_buys_total",
			Help: "BUY signals skipped because of insufficient capital",
		},
		[]string{"symbol"},
	)

	lastReturnPct = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradeforge_backtest_last_return_pct",
			Help: "Total return of the latest backtest in percent",
		},
		[]string{"symbol"},
	)

	lastMaxDrawdownPct = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradeforge_backtest_last_max_drawdown_pct",
			Help: "Max drawdown of the latest backtest in percent",
		},
		[]string{"symbol"},
	)

	lastSharpeRatio = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradeforge_backtest_last_sharpe_ratio",
			Help: "Sharpe ratio of the latest backtest",
		},
		[]string{"symbol"},
	)

	// 行情数据指标
	marketDataFetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeforge_market_data_fetch_total",
			Help: "Historical data requests by source",
		},
		[]string{"source"},
	)

	// 分布式锁指标
	lockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeforge_lock_acquire_total",
			Help: "Total number of lock acquire attempts",
		},
		[]string{"status"},
	)

	// 系统指标
	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeforge_goroutines",
			Help: "Number of goroutines",
		},
	)

	memoryAlloc = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeforge_memory_alloc_bytes",
			Help: "Bytes of allocated heap objects",
		},
	)

	processCPUPercent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeforge_process_cpu_percent",
			Help: "Process CPU usage in percent",
		},
	)

	processRSS = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradeforge_process_rss_bytes",
			Help: "Process resident set size in bytes",
		},
	)

	gcPause = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradeforge_gc_pause_seconds",
			Help:    "GC pause duration in seconds",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1},
		},
	)
)

// PrometheusMetrics Prometheus 指标收集器
type PrometheusMetrics struct{}

// NewPrometheusMetrics 创建 Prometheus 指标收集器
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{}
}

func symbolLabel(symbol string) string {
	if symbol == "" {
		return "inline"
	}
	return symbol
}

// RecordBacktestRun 记录一次回测的结果与耗时
func (pm *PrometheusMetrics) RecordBacktestRun(symbol, outcome string, duration time.Duration) {
	symbol = symbolLabel(symbol)
	backtestRunsTotal.WithLabelValues(symbol, outcome).Inc()
	backtestDuration.WithLabelValues(symbol).Observe(duration.Seconds())
}

// RecordBacktestResult 记录回测核心指标
func (pm *PrometheusMetrics) RecordBacktestResult(symbol string, trades, skippedBuys int, returnPct, maxDrawdownPct, sharpe float64) {
	symbol = symbolLabel(symbol)
	backtestTradesTotal.WithLabelValues(symbol).Add(float64(trades))
	backtestSkippedBuysTotal.WithLabelValues(symbol).Add(float64(skippedBuys))
	lastReturnPct.WithLabelValues(symbol).Set(returnPct)
	lastMaxDrawdownPct.WithLabelValues(symbol).Set(maxDrawdownPct)
	lastSharpeRatio.WithLabelValues(symbol).Set(sharpe)
}

// RecordMarketDataFetch 记录行情数据来源（inline/cache/binance）
func (pm *PrometheusMetrics) RecordMarketDataFetch(source string) {
	marketDataFetchTotal.WithLabelValues(source).Inc()
}

// RecordLockAcquire 记录锁获取
func (pm *PrometheusMetrics) RecordLockAcquire(status string) {
	lockAcquireTotal.WithLabelValues(status).Inc()
}

// SetGoroutineCount 设置 Goroutine 数量
func (pm *PrometheusMetrics) SetGoroutineCount(count int) {
	goroutineCount.Set(float64(count))
}

// SetMemoryAlloc 设置内存分配
func (pm *PrometheusMetrics) SetMemoryAlloc(bytes uint64) {
	memoryAlloc.Set(float64(bytes))
}

// SetProcessUsage 设置进程 CPU 与 RSS
func (pm *PrometheusMetrics) SetProcessUsage(cpuPercent float64, rssBytes uint64) {
	processCPUPercent.Set(cpuPercent)
	processRSS.Set(float64(rssBytes))
}

// RecordGCPause 记录 GC 停顿
func (pm *PrometheusMetrics) RecordGCPause(duration time.Duration) {
	gcPause.Observe(duration.Seconds())
}

var globalPrometheusMetrics *PrometheusMetrics

// GetPrometheusMetrics 获取全局 Prometheus 指标收集器
func GetPrometheusMetrics() *PrometheusMetrics {
	once.Do(func() {
		globalPrometheusMetrics = NewPrometheusMetrics()
	})
	return globalPrometheusMetrics
}
