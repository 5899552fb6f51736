package web

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"tradeforge/config"
	"tradeforge/database"
	tfi18n "tradeforge/i18n"
	"tradeforge/market"
)

func newTestRouter(t *testing.T, store database.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if err := tfi18n.Init("zh-CN"); err != nil {
		t.Fatalf("初始化 i18n 失败: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.Backtest.CacheDir = t.TempDir()
	cfg.Backtest.SaveReports = false

	r := gin.New()
	r.Use(I18nMiddleware())
	SetupRoutes(r, &Services{
		Config: func() *config.Config { return cfg },
		Store:  store,
	})
	return r
}

func newTestStore(t *testing.T) database.Store {
	t.Helper()
	store, err := database.NewGormStore(&database.DBConfig{
		Type: "sqlite",
		DSN:  filepath.Join(t.TempDir(), "reports.db"),
	})
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// vSeries 先跌后涨的日线序列
func vSeries(n int) market.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(market.PriceSeries, n)
	for i := range series {
		c := 100 + 2*float64(i)
		if i < n/2 {
			c = 130 - float64(i)
		}
		series[i] = market.PricePoint{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return series
}

func zeroCloseSeries() market.PriceSeries {
	series := vSeries(4)
	for i := range series {
		series[i].Close = 0
	}
	return series
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else {
			_ = json.NewEncoder(&buf).Encode(body)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("解析响应失败: %v, body=%s", err, w.Body.String())
	}
}

func TestRunBacktestInline(t *testing.T) {
	r := newTestRouter(t, newTestStore(t))

	w := doJSON(r, http.MethodPost, "/api/backtest/run", gin.H{
		"symbol": "ethusdt",
		"prices": vSeries(60),
		"params": gin.H{"fast_window": 5, "slow_window": 20},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body=%s", w.Code, w.Body.String())
	}

	var resp RunResponse
	decode(t, w, &resp)
	if !resp.Success || resp.Result == nil {
		t.Fatalf("回测应成功: %+v", resp)
	}
	if resp.Result.Symbol != "ETHUSDT" || resp.Result.Bars != 60 {
		t.Errorf("symbol=%s bars=%d", resp.Result.Symbol, resp.Result.Bars)
	}
	if resp.Result.Params.FastWindow != 5 || resp.Result.Params.SlowWindow != 20 {
		t.Errorf("参数未覆盖: %+v", resp.Result.Params)
	}
	if resp.Result.Params.InitialCapital != config.DefaultConfig().Backtest.Strategy.InitialCapital {
		t.Errorf("未给出的参数应取默认值: %+v", resp.Result.Params)
	}
	if resp.ReportID == "" {
		t.Fatal("存储可用时应返回报告 ID")
	}

	w = doJSON(r, http.MethodGet, "/api/backtest/reports/"+resp.ReportID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("查询报告状态码 = %d", w.Code)
	}
	var got struct {
		Report database.BacktestRecord `json:"report"`
	}
	decode(t, w, &got)
	if got.Report.Symbol != "ETHUSDT" || got.Report.TotalTrades != resp.Result.TotalTrades {
		t.Errorf("报告内容不一致: %+v", got.Report)
	}

	w = doJSON(r, http.MethodGet, "/api/backtest/reports?symbol=ethusdt", nil)
	var list struct {
		Count int `json:"count"`
	}
	decode(t, w, &list)
	if list.Count != 1 {
		t.Errorf("报告数量 = %d, 期望 1", list.Count)
	}

	w = doJSON(r, http.MethodDelete, "/api/backtest/reports/"+resp.ReportID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("删除状态码 = %d", w.Code)
	}
	w = doJSON(r, http.MethodDelete, "/api/backtest/reports/"+resp.ReportID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("重复删除状态码 = %d, 期望 404", w.Code)
	}
}

func TestRunBacktestSkipSave(t *testing.T) {
	r := newTestRouter(t, newTestStore(t))

	w := doJSON(r, http.MethodPost, "/api/backtest/run", gin.H{
		"prices": vSeries(60),
		"params": gin.H{"fast_window": 5, "slow_window": 20},
		"save":   false,
	})
	var resp RunResponse
	decode(t, w, &resp)
	if w.Code != http.StatusOK || resp.ReportID != "" {
		t.Errorf("save=false 时不应保存: code=%d id=%s", w.Code, resp.ReportID)
	}
}

func TestRunBacktestErrors(t *testing.T) {
	r := newTestRouter(t, nil)

	tests := []struct {
		name   string
		body   interface{}
		status int
		code   string
	}{
		{
			name:   "fast 不小于 slow",
			body:   gin.H{"prices": vSeries(60), "params": gin.H{"fast_window": 20, "slow_window": 20}},
			status: http.StatusBadRequest,
			code:   CodeInvalidParameter,
		},
		{
			name:   "数据不足",
			body:   gin.H{"prices": vSeries(10), "params": gin.H{"fast_window": 5, "slow_window": 20}},
			status: http.StatusBadRequest,
			code:   CodeInsufficientData,
		},
		{
			name:   "手续费率越界",
			body:   gin.H{"prices": vSeries(60), "params": gin.H{"fast_window": 5, "slow_window": 20, "commission_rate": 1.5}},
			status: http.StatusBadRequest,
			code:   CodeInvalidParameter,
		},
		{
			name:   "收盘价为 0",
			body:   gin.H{"prices": zeroCloseSeries(), "params": gin.H{"fast_window": 1, "slow_window": 2}},
			status: http.StatusBadRequest,
			code:   CodeInvalidParameter,
		},
		{
			name:   "缺少数据来源",
			body:   gin.H{"symbol": "BTCUSDT"},
			status: http.StatusBadRequest,
			code:   CodeInvalidParameter,
		},
		{
			name:   "请求体格式错误",
			body:   `{"prices": [`,
			status: http.StatusBadRequest,
			code:   CodeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(r, http.MethodPost, "/api/backtest/run", tt.body)
			if w.Code != tt.status {
				t.Fatalf("状态码 = %d, 期望 %d, body=%s", w.Code, tt.status, w.Body.String())
			}
			var resp ErrorResponse
			decode(t, w, &resp)
			if resp.Success || resp.Code != tt.code {
				t.Errorf("错误码 = %s, 期望 %s", resp.Code, tt.code)
			}
			if resp.Message == "" {
				t.Error("错误消息为空")
			}
		})
	}
}

func TestReportNotFoundLocalized(t *testing.T) {
	r := newTestRouter(t, newTestStore(t))

	w := doJSON(r, http.MethodGet, "/api/backtest/reports/missing?lang=en", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("状态码 = %d, 期望 404", w.Code)
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Code != CodeNotFound || resp.Message != "Backtest report not found: missing" {
		t.Errorf("响应 = %+v", resp)
	}
}

func TestReportsWithoutStore(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodGet, "/api/backtest/reports", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("状态码 = %d, 期望 503", w.Code)
	}
	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Code != CodeUnavailable {
		t.Errorf("错误码 = %s", resp.Code)
	}
}

func TestRunSweep(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodPost, "/api/backtest/sweep", gin.H{
		"prices":       vSeries(60),
		"fast_windows": []int{3, 5},
		"slow_windows": []int{5, 20},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("状态码 = %d, body=%s", w.Code, w.Body.String())
	}
	var resp SweepResponse
	decode(t, w, &resp)
	// (3,5) (3,20) (5,20)，跳过 (5,5)
	if resp.Count != 3 || len(resp.Rows) != 3 {
		t.Fatalf("组合数 = %d, 期望 3", resp.Count)
	}
	for i, row := range resp.Rows {
		if row.Params.FastWindow >= row.Params.SlowWindow {
			t.Errorf("第 %d 行参数非法: %+v", i, row.Params)
		}
		if row.SharpeRatio > resp.Best.SharpeRatio {
			t.Errorf("best 不是夏普最高的组合: %+v", resp.Best)
		}
	}
	if resp.Rows[resp.BestIndex] != resp.Best {
		t.Errorf("best_index 与 best 不一致")
	}

	w = doJSON(r, http.MethodPost, "/api/backtest/sweep", gin.H{
		"prices":       vSeries(60),
		"fast_windows": []int{30},
		"slow_windows": []int{10},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("没有合法组合时状态码 = %d, 期望 400", w.Code)
	}

	w = doJSON(r, http.MethodPost, "/api/backtest/sweep", gin.H{"prices": vSeries(60)})
	if w.Code != http.StatusBadRequest {
		t.Errorf("缺少周期列表时状态码 = %d, 期望 400", w.Code)
	}
}

func TestCacheEndpoints(t *testing.T) {
	r := newTestRouter(t, nil)

	w := doJSON(r, http.MethodGet, "/api/backtest/cache/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("缓存统计状态码 = %d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/api/backtest/cache/list", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("缓存列表状态码 = %d", w.Code)
	}
	w = doJSON(r, http.MethodDelete, "/api/backtest/cache/BTCUSDT_1d_20240101T000000_20240201T000000", nil)
	if w.Code != http.StatusOK {
		t.Errorf("删除不存在的缓存状态码 = %d, 期望 200", w.Code)
	}
	w = doJSON(r, http.MethodDelete, "/api/backtest/cache", nil)
	if w.Code != http.StatusOK {
		t.Errorf("清理缓存状态码 = %d", w.Code)
	}
}

func TestSystemEndpoints(t *testing.T) {
	r := newTestRouter(t, newTestStore(t))

	w := doJSON(r, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("健康检查状态码 = %d", w.Code)
	}
	w = doJSON(r, http.MethodGet, "/api/version", nil)
	if w.Code != http.StatusOK {
		t.Errorf("版本状态码 = %d", w.Code)
	}

	doJSON(r, http.MethodPost, "/api/backtest/run", gin.H{
		"prices": vSeries(60),
		"params": gin.H{"fast_window": 5, "slow_window": 20},
	})
	w = doJSON(r, http.MethodGet, "/api/system/stats", nil)
	var stats struct {
		Stats struct {
			TotalRuns int64 `json:"total_runs"`
		} `json:"stats"`
	}
	decode(t, w, &stats)
	if stats.Stats.TotalRuns != 1 {
		t.Errorf("total_runs = %d, 期望 1", stats.Stats.TotalRuns)
	}

	w = doJSON(r, http.MethodGet, "/api/system/logs", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("未启用日志存储时状态码 = %d, 期望 503", w.Code)
	}
}
