package web

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"tradeforge/backtest"
	"tradeforge/config"
	"tradeforge/database"
	"tradeforge/lock"
	"tradeforge/logger"
	"tradeforge/market"
	"tradeforge/metrics"
	"tradeforge/strategy"
)

// DataSource 行情来源：内联价格，或按时间范围从缓存/Binance 获取
type DataSource struct {
	Symbol    string             `json:"symbol"`
	Interval  string             `json:"interval"`
	StartTime *time.Time         `json:"start_time,omitempty"`
	EndTime   *time.Time         `json:"end_time,omitempty"`
	Prices    market.PriceSeries `json:"prices,omitempty"`
}

// RunRequest 回测请求，params 中未给出的字段取配置中的默认值
type RunRequest struct {
	DataSource
	Params json.RawMessage `json:"params,omitempty"`
	Save   *bool           `json:"save,omitempty"` // 默认在存储可用时保存
}

// RunResponse 回测响应
type RunResponse struct {
	Success    bool             `json:"success"`
	Message    string           `json:"message"`
	ReportID   string           `json:"report_id,omitempty"`
	ReportPath string           `json:"report_path,omitempty"`
	EquityCSV  string           `json:"equity_csv,omitempty"`
	Result     *backtest.Result `json:"result"`
}

// SweepRequest 参数扫描请求，快慢线周期做笛卡尔积，跳过 fast >= slow 的组合
type SweepRequest struct {
	DataSource
	Params      json.RawMessage `json:"params,omitempty"`
	FastWindows []int           `json:"fast_windows" binding:"required,min=1"`
	SlowWindows []int           `json:"slow_windows" binding:"required,min=1"`
}

// SweepRow 参数扫描的单行汇总
type SweepRow struct {
	Params         strategy.Params `json:"params"`
	FinalCapital   float64         `json:"final_capital"`
	TotalReturnPct float64         `json:"total_return_pct"`
	TotalTrades    int             `json:"total_trades"`
	WinRatePct     float64         `json:"win_rate_pct"`
	MaxDrawdownPct float64         `json:"max_drawdown_pct"`
	SharpeRatio    float64         `json:"sharpe_ratio"`
}

// SweepResponse 参数扫描响应
type SweepResponse struct {
	Success   bool       `json:"success"`
	Count     int        `json:"count"`
	Rows      []SweepRow `json:"rows"`
	BestIndex int        `json:"best_index"`
	Best      SweepRow   `json:"best"`
}

func (ds *DataSource) applyDefaults(cfg *config.Config) {
	if ds.Symbol == "" && len(ds.Prices) == 0 {
		ds.Symbol = cfg.Backtest.Symbol
	}
	ds.Symbol = strings.ToUpper(ds.Symbol)
	if ds.Interval == "" {
		ds.Interval = cfg.Backtest.Interval
	}
}

// resolveParams 在默认参数上叠加请求参数
func resolveParams(cfg *config.Config, raw json.RawMessage) (strategy.Params, error) {
	params := cfg.Backtest.Strategy
	if len(raw) == 0 || string(raw) == "null" {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return params, fmt.Errorf("params: %w", err)
	}
	return params, nil
}

// requestKey 相同数据与参数的请求得到相同的 key
func requestKey(kind string, ds *DataSource, params interface{}) string {
	payload, _ := json.Marshal(struct {
		Kind   string      `json:"kind"`
		Data   *DataSource `json:"data"`
		Params interface{} `json:"params"`
	}{kind, ds, params})
	sum := sha256.Sum256(payload)
	return kind + ":" + hex.EncodeToString(sum[:12])
}

// loadSeries 获取行情数据
func (h *handler) loadSeries(ctx context.Context, ds *DataSource) (market.PriceSeries, error) {
	if len(ds.Prices) > 0 {
		if err := ds.Prices.Validate(); err != nil {
			return nil, err
		}
		metrics.GetPrometheusMetrics().RecordMarketDataFetch("inline")
		return ds.Prices, nil
	}

	if ds.StartTime == nil || ds.EndTime == nil {
		return nil, market.InvalidParam("prices", nil, "either prices or start_time/end_time is required")
	}
	if h.svc.Fetcher == nil {
		return nil, fmt.Errorf("%w: market data download", errDisabled)
	}
	return h.svc.Fetcher.GetHistoricalData(ctx, ds.Symbol, ds.Interval, *ds.StartTime, *ds.EndTime)
}

// withRequestLock 相同请求串行执行，等待超时返回 context.DeadlineExceeded
func (h *handler) withRequestLock(c *gin.Context, key string, fn func() error) error {
	ttl := time.Duration(h.cfg().DistributedLock.DefaultTTL) * time.Second
	lockCtx, cancel := context.WithTimeout(c.Request.Context(), ttl)
	defer cancel()
	return lock.WithLock(lockCtx, h.svc.Lock, key, ttl, fn)
}

// runBacktest 运行回测
func (h *handler) runBacktest(c *gin.Context) {
	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	cfg := h.cfg()
	req.applyDefaults(cfg)
	params, err := resolveParams(cfg, req.Params)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	logger.Info("📊 收到回测请求: %s %s, fast=%d slow=%d",
		req.Symbol, req.Interval, params.FastWindow, params.SlowWindow)

	var result *backtest.Result
	start := time.Now()
	err = h.withRequestLock(c, requestKey("run", &req.DataSource, params), func() error {
		series, err := h.loadSeries(c.Request.Context(), &req.DataSource)
		if err != nil {
			return err
		}
		result, err = backtest.Run(series, params, backtest.RunOptions{Symbol: req.Symbol, Interval: req.Interval})
		return err
	})

	sharpe := 0.0
	if result != nil {
		sharpe = result.SharpeRatio
	}
	h.svc.Stats.RecordRun(time.Since(start), sharpe, err)

	if err != nil {
		respondError(c, err, nil)
		return
	}

	resp := RunResponse{
		Success: true,
		Message: T(c, "backtest_completed", map[string]interface{}{
			"Symbol": result.Symbol,
			"Return": strconv.FormatFloat(result.TotalReturnPct, 'f', 2, 64),
		}),
		Result: result,
	}
	h.persist(c.Request.Context(), cfg, req.Save, &resp)

	h.svc.Hub.Broadcast("backtest_completed", gin.H{
		"report_id":        resp.ReportID,
		"symbol":           result.Symbol,
		"interval":         result.Interval,
		"params":           result.Params,
		"total_return_pct": result.TotalReturnPct,
		"sharpe_ratio":     result.SharpeRatio,
		"max_drawdown_pct": result.MaxDrawdownPct,
		"total_trades":     result.TotalTrades,
	})

	c.JSON(http.StatusOK, resp)
}

// persist 写出报告文件并保存到数据库，失败只记录日志
func (h *handler) persist(ctx context.Context, cfg *config.Config, save *bool, resp *RunResponse) {
	result := resp.Result

	if cfg.Backtest.SaveReports && h.svc.Reports != nil {
		if path, err := h.svc.Reports.GenerateReport(result); err != nil {
			logger.Warn("⚠️ 生成报告失败: %v", err)
		} else {
			resp.ReportPath = path
		}
		if path, err := h.svc.Reports.SaveEquityCurveCSV(result); err != nil {
			logger.Warn("⚠️ 保存权益曲线失败: %v", err)
		} else {
			resp.EquityCSV = path
		}
	}

	if h.svc.Store == nil || (save != nil && !*save) {
		return
	}
	rec, err := database.ToRecord(result)
	if err == nil {
		err = h.svc.Store.SaveReport(ctx, rec)
	}
	if err != nil {
		logger.Warn("⚠️ 保存回测报告失败: %v", err)
		return
	}
	resp.ReportID = rec.ID
}

// runSweep 参数扫描
func (h *handler) runSweep(c *gin.Context) {
	var req SweepRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, err)
		return
	}

	cfg := h.cfg()
	req.applyDefaults(cfg)
	base, err := resolveParams(cfg, req.Params)
	if err != nil {
		respondBadRequest(c, err)
		return
	}

	var sets []strategy.Params
	for _, fast := range req.FastWindows {
		for _, slow := range req.SlowWindows {
			if fast >= slow {
				continue
			}
			p := base
			p.FastWindow, p.SlowWindow = fast, slow
			sets = append(sets, p)
		}
	}
	if len(sets) == 0 {
		respondError(c, market.InvalidParam("fast_windows", req.FastWindows, "no combination with fast < slow"), nil)
		return
	}
	if len(sets) > cfg.Backtest.MaxSweepSize {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{
			Success: false,
			Code:    CodeInvalidParameter,
			Message: T(c, "sweep_too_large", map[string]interface{}{"Count": len(sets), "Max": cfg.Backtest.MaxSweepSize}),
		})
		return
	}

	var results []*backtest.Result
	start := time.Now()
	err = h.withRequestLock(c, requestKey("sweep", &req.DataSource, sets), func() error {
		series, err := h.loadSeries(c.Request.Context(), &req.DataSource)
		if err != nil {
			return err
		}
		results, err = backtest.RunBatch(c.Request.Context(), series, sets,
			backtest.RunOptions{Symbol: req.Symbol, Interval: req.Interval}, cfg.Backtest.Concurrency)
		return err
	})

	best := backtest.Best(results)
	bestSharpe := 0.0
	if best != nil {
		bestSharpe = best.SharpeRatio
	}
	h.svc.Stats.RecordRun(time.Since(start), bestSharpe, err)

	if err != nil {
		respondError(c, err, nil)
		return
	}

	resp := SweepResponse{Success: true, Count: len(results), Rows: make([]SweepRow, len(results))}
	for i, r := range results {
		resp.Rows[i] = SweepRow{
			Params:         r.Params,
			FinalCapital:   r.FinalCapital,
			TotalReturnPct: r.TotalReturnPct,
			TotalTrades:    r.TotalTrades,
			WinRatePct:     r.WinRatePct,
			MaxDrawdownPct: r.MaxDrawdownPct,
			SharpeRatio:    r.SharpeRatio,
		}
		if r == best {
			resp.BestIndex = i
			resp.Best = resp.Rows[i]
		}
	}

	h.svc.Hub.Broadcast("sweep_completed", gin.H{
		"symbol":   req.Symbol,
		"interval": req.Interval,
		"count":    resp.Count,
		"best":     resp.Best,
	})

	c.JSON(http.StatusOK, resp)
}

// listReports 查询回测报告
func (h *handler) listReports(c *gin.Context) {
	if h.svc.Store == nil {
		respondError(c, errDisabled, map[string]interface{}{"Detail": "database"})
		return
	}

	filter := &database.ReportFilter{
		Symbol:   c.Query("symbol"),
		Strategy: c.Query("strategy"),
		OrderBy:  c.DefaultQuery("order_by", database.OrderByCreated),
	}
	var err error
	if filter.Limit, err = queryInt(c, "limit", 50); err != nil {
		respondBadRequest(c, err)
		return
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset, err = queryInt(c, "offset", 0); err != nil {
		respondBadRequest(c, err)
		return
	}
	if v := c.Query("min_sharpe"); v != "" {
		minSharpe, err := strconv.ParseFloat(v, 64)
		if err != nil {
			respondBadRequest(c, fmt.Errorf("min_sharpe: %w", err))
			return
		}
		filter.MinSharpe = &minSharpe
	}

	records, err := h.svc.Store.ListReports(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(records),
		"reports": records,
	})
}

// getReport 获取完整回测报告
func (h *handler) getReport(c *gin.Context) {
	if h.svc.Store == nil {
		respondError(c, errDisabled, map[string]interface{}{"Detail": "database"})
		return
	}

	id := c.Param("id")
	rec, err := h.svc.Store.GetReport(c.Request.Context(), id)
	if err != nil {
		respondError(c, err, map[string]interface{}{"ID": id})
		return
	}
	result, err := database.FromRecord(rec)
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"report":  rec,
		"result":  result,
	})
}

// deleteReport 删除回测报告
func (h *handler) deleteReport(c *gin.Context) {
	if h.svc.Store == nil {
		respondError(c, errDisabled, map[string]interface{}{"Detail": "database"})
		return
	}

	id := c.Param("id")
	if err := h.svc.Store.DeleteReport(c.Request.Context(), id); err != nil {
		respondError(c, err, map[string]interface{}{"ID": id})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": T(c, "report_deleted"),
	})
}

func (h *handler) cache() *backtest.CacheManager {
	return h.svc.Cache
}

// getCacheStats 获取缓存统计
func (h *handler) getCacheStats(c *gin.Context) {
	stats, err := h.cache().Stats()
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// listCache 列出所有缓存
func (h *handler) listCache(c *gin.Context) {
	caches, err := h.cache().List()
	if err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "caches": caches})
}

// deleteCache 删除指定缓存
func (h *handler) deleteCache(c *gin.Context) {
	key := c.Param("key")
	if err := h.cache().Delete(key); err != nil {
		respondError(c, err, map[string]interface{}{"Key": key})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": T(c, "cache_cleared", map[string]interface{}{"Count": 1}),
	})
}

// clearCache 清理所有缓存
func (h *handler) clearCache(c *gin.Context) {
	entries, err := h.cache().List()
	if err != nil {
		respondError(c, err, nil)
		return
	}
	if err := h.cache().Clear(); err != nil {
		respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": T(c, "cache_cleared", map[string]interface{}{"Count": len(entries)}),
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func errInvalidQuery(key, value string) error {
	return fmt.Errorf("%s: invalid value %q", key, value)
}
