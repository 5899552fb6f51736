package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"tradeforge/logger"
	"tradeforge/market"
	"tradeforge/metrics"
	"tradeforge/strategy"
)

// RunOptions 回测附加信息，不影响计算结果
type RunOptions struct {
	Symbol   string
	Interval string
}

// Result 一次回测的完整结果
type Result struct {
	BacktestReport

	// 基本信息
	Symbol    string          `json:"symbol"`
	Interval  string          `json:"interval"`
	Strategy  string          `json:"strategy"`
	Params    strategy.Params `json:"params"`
	StartTime time.Time       `json:"start_time"`
	EndTime   time.Time       `json:"end_time"`
	Bars      int             `json:"bars"`

	Signals     []strategy.Signal `json:"signals"`
	Stats       SimStats          `json:"stats"`
	Metrics     Metrics           `json:"metrics"`
	RiskMetrics RiskMetrics       `json:"risk_metrics"`
}

// Run 运行一次均线交叉回测
//
// 所有参数在创建任何模拟状态之前校验完毕，失败时不返回部分结果。
func Run(series market.PriceSeries, params strategy.Params, opts RunOptions) (*Result, error) {
	start := time.Now()
	result, err := run(series, params, opts)

	outcome := "success"
	switch {
	case errors.Is(err, market.ErrInvalidParameter):
		outcome = "invalid_parameter"
	case errors.Is(err, market.ErrInsufficientData):
		outcome = "insufficient_data"
	case err != nil:
		outcome = "error"
	}
	pm := metrics.GetPrometheusMetrics()
	pm.RecordBacktestRun(opts.Symbol, outcome, time.Since(start))
	if result != nil {
		pm.RecordBacktestResult(opts.Symbol, result.TotalTrades, result.Stats.SkippedBuys,
			result.TotalReturnPct, result.MaxDrawdownPct, result.SharpeRatio)
	}

	return result, err
}

func run(series market.PriceSeries, params strategy.Params, opts RunOptions) (*Result, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}

	signals, err := strategy.GenerateSignals(series, params)
	if err != nil {
		return nil, err
	}

	cfg := SimConfig{
		InitialCapital:  params.InitialCapital,
		CommissionRate:  params.CommissionRate,
		PositionSizePct: params.PositionSizePct,
		WarmupIndex:     strategy.WarmupIndex(params),
	}

	logger.Info("🚀 开始回测: %s %s, %d 根K线, fast=%d slow=%d",
		strategy.Name, opts.Symbol, len(series), params.FastWindow, params.SlowWindow)

	trades, equity, stats, err := Simulate(series, signals, cfg)
	if err != nil {
		return nil, fmt.Errorf("simulate: %w", err)
	}

	report := Summarize(trades, equity, params.InitialCapital)

	logger.Info("✅ 回测完成: %d 笔成交, 收益率 %.2f%%, 最大回撤 %.2f%%",
		report.TotalTrades, report.TotalReturnPct, report.MaxDrawdownPct)

	return &Result{
		BacktestReport: report,
		Symbol:         opts.Symbol,
		Interval:       opts.Interval,
		Strategy:       strategy.Name,
		Params:         params,
		StartTime:      series.Start(),
		EndTime:        series.End(),
		Bars:           len(series),
		Signals:        signals,
		Stats:          stats,
		Metrics:        CalculateMetrics(equity, trades, params.InitialCapital),
		RiskMetrics:    CalculateRiskMetrics(equity),
	}, nil
}

// RunBatch 并发运行多组参数，结果顺序与输入一致
//
// 每次回测独立持有自己的状态，series 只读共享。任何一组失败都会取消尚未开始的回测。
func RunBatch(ctx context.Context, series market.PriceSeries, paramSets []strategy.Params, opts RunOptions, concurrency int) ([]*Result, error) {
	if len(paramSets) == 0 {
		return nil, market.InvalidParam("params", 0, "at least one parameter set is required")
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]*Result, len(paramSets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, p := range paramSets {
		i, p := i, p
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := Run(series, p, opts)
			if err != nil {
				return fmt.Errorf("param set %d (fast=%d slow=%d): %w", i, p.FastWindow, p.SlowWindow, err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	logger.Info("📊 参数扫描完成: %d 组参数", len(paramSets))
	return results, nil
}

// Best 按夏普比率挑出最优结果，夏普相同时取收益率更高的
func Best(results []*Result) *Result {
	var best *Result
	for _, r := range results {
		if r == nil {
			continue
		}
		if best == nil || r.SharpeRatio > best.SharpeRatio ||
			(r.SharpeRatio == best.SharpeRatio && r.TotalReturnPct > best.TotalReturnPct) {
			best = r
		}
	}
	return best
}
