package web

import (
	"net/http/pprof"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tradeforge/backtest"
	"tradeforge/config"
	"tradeforge/database"
	"tradeforge/lock"
	"tradeforge/metrics"
	"tradeforge/storage"
)

// Version 服务版本，构建时通过 -ldflags 注入
var Version = "dev"

// Services 处理器依赖，可选项为 nil 时对应接口返回错误或空结果
type Services struct {
	Config  func() *config.Config // 当前配置（热更新后会变化）
	Fetcher *backtest.DataFetcher // 历史数据（缓存 + Binance）
	Cache   *backtest.CacheManager
	Reports *backtest.ReportGenerator // Markdown 报告与权益曲线 CSV
	Store   database.Store            // 报告持久化
	Lock    lock.DistributedLock      // 相同请求串行
	Stats   *metrics.MetricsCollector
	System  *metrics.SystemMetricsCollector
	Logs    *storage.SQLiteStorage
	Hub     *Hub
}

type handler struct {
	svc *Services
}

// SetupRoutes 设置路由
func SetupRoutes(r *gin.Engine, svc *Services) {
	if svc.Lock == nil {
		svc.Lock = lock.NewLocalLock()
	}
	if svc.Stats == nil {
		svc.Stats = metrics.NewMetricsCollector()
	}
	h := &handler{svc: svc}
	if svc.Cache == nil {
		svc.Cache = backtest.NewCacheManager(h.cfg().Backtest.CacheDir)
	}

	// Prometheus metrics 端点
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// pprof 性能分析端点
	pprofGroup := r.Group("/debug/pprof")
	{
		pprofGroup.GET("/", gin.WrapF(pprof.Index))
		pprofGroup.GET("/profile", gin.WrapF(pprof.Profile))
		pprofGroup.GET("/heap", gin.WrapH(pprof.Handler("heap")))
		pprofGroup.GET("/goroutine", gin.WrapH(pprof.Handler("goroutine")))
	}

	if svc.Hub != nil {
		r.GET("/ws", svc.Hub.ServeWS)
	}

	api := r.Group("/api")
	{
		api.GET("/version", h.getVersion)
		api.GET("/health", h.getHealth)

		backtestAPI := api.Group("/backtest")
		{
			backtestAPI.POST("/run", h.runBacktest)
			backtestAPI.POST("/sweep", h.runSweep)

			backtestAPI.GET("/reports", h.listReports)
			backtestAPI.GET("/reports/:id", h.getReport)
			backtestAPI.DELETE("/reports/:id", h.deleteReport)

			backtestAPI.GET("/cache/stats", h.getCacheStats)
			backtestAPI.GET("/cache/list", h.listCache)
			backtestAPI.DELETE("/cache/:key", h.deleteCache)
			backtestAPI.DELETE("/cache", h.clearCache)
		}

		system := api.Group("/system")
		{
			system.GET("/stats", h.getRunStats)
			system.GET("/metrics", h.getSystemMetrics)
			system.GET("/logs", h.getLogs)
			system.GET("/logs/stats", h.getLogStats)
		}
	}
}

func (h *handler) cfg() *config.Config {
	if h.svc.Config != nil {
		if cfg := h.svc.Config(); cfg != nil {
			return cfg
		}
	}
	return config.DefaultConfig()
}
