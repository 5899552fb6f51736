package backtest

import (
	"errors"
	"math"
	"testing"
	"time"

	"tradeforge/market"
	"tradeforge/strategy"
)

func buildSeries(closes ...float64) market.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(market.PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = market.PricePoint{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1000}
	}
	return series
}

func linear(n int, start, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return closes
}

// zigzag 生成反复涨跌的震荡行情
func zigzag(cycles, leg int, base, step float64) []float64 {
	closes := make([]float64, 0, cycles*leg*2)
	for c := 0; c < cycles; c++ {
		closes = append(closes, linear(leg, base, step)...)
		closes = append(closes, linear(leg, base+step*float64(leg), -step)...)
	}
	return closes
}

func near(a, b float64) bool {
	return math.Abs(a-b) <= 1e-9*math.Max(1, math.Abs(b))
}

func buyAt(i int, price float64) strategy.Signal {
	return strategy.Signal{Index: i, Kind: strategy.Buy, Price: price}
}

func sellAt(i int, price float64) strategy.Signal {
	return strategy.Signal{Index: i, Kind: strategy.Sell, Price: price}
}

func TestSimulateBuySell(t *testing.T) {
	series := buildSeries(10, 10, 10, 12, 12, 8, 8)
	signals := []strategy.Signal{
		buyAt(1, 10),
		buyAt(2, 10), // 持仓中，丢弃
		sellAt(3, 12),
		sellAt(4, 12), // 空仓中，丢弃
	}
	cfg := SimConfig{InitialCapital: 1000, CommissionRate: 0, PositionSizePct: 50}

	trades, equity, stats, err := Simulate(series, signals, cfg)
	if err != nil {
		t.Fatalf("模拟失败: %v", err)
	}

	if len(trades) != 2 {
		t.Fatalf("期望 2 笔成交, 得到 %d", len(trades))
	}
	buy, sell := trades[0], trades[1]
	if buy.Kind != strategy.Buy || buy.Shares != 50 || buy.Cash != 500 || buy.Closed() {
		t.Errorf("买入记录错误: %+v", buy)
	}
	if sell.Kind != strategy.Sell || sell.Shares != 50 || sell.Cash != 1100 {
		t.Errorf("卖出记录错误: %+v", sell)
	}
	if !sell.Closed() || *sell.PnL != 100 || *sell.PnLPct != 20 {
		t.Errorf("卖出盈亏错误: pnl=%v pnl_pct=%v", sell.PnL, sell.PnLPct)
	}
	if stats.IgnoredSignals != 2 || stats.SkippedBuys != 0 || stats.OpenAtEnd {
		t.Errorf("统计错误: %+v", stats)
	}

	want := []float64{1000, 1000, 1000, 1100, 1100, 1100, 1100}
	if len(equity) != len(want) {
		t.Fatalf("权益曲线长度期望 %d, 得到 %d", len(want), len(equity))
	}
	for i, w := range want {
		if equity[i].Equity != w {
			t.Errorf("权益[%d] 期望 %.2f, 得到 %.2f", i, w, equity[i].Equity)
		}
	}
}

func TestSimulateCommission(t *testing.T) {
	series := buildSeries(10, 10, 11)
	cfg := SimConfig{InitialCapital: 1000, CommissionRate: 0.01, PositionSizePct: 50}

	trades, equity, _, err := Simulate(series, []strategy.Signal{buyAt(0, 10), sellAt(2, 11)}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 2 {
		t.Fatalf("期望 2 笔成交, 得到 %d", len(trades))
	}

	// 买入: 50 股, 成本 505; 卖出: 收入 50*11*0.99 = 544.5
	if !near(trades[0].Cash, 495) || !near(trades[0].Commission, 5) {
		t.Errorf("买入后现金/手续费错误: %+v", trades[0])
	}
	if !near(*trades[1].PnL, 44.5) || !near(*trades[1].PnLPct, 8.9) {
		t.Errorf("盈亏错误: pnl=%v pnl_pct=%v", *trades[1].PnL, *trades[1].PnLPct)
	}
	if !near(equity[len(equity)-1].Equity, 1039.5) {
		t.Errorf("最终权益期望 1039.5, 得到 %v", equity[len(equity)-1].Equity)
	}
}

func TestSimulateInsufficientCapitalIsNoop(t *testing.T) {
	series := buildSeries(10, 10, 12, 12)
	// 全仓 + 手续费: 成本必然超过现金
	cfg := SimConfig{InitialCapital: 1000, CommissionRate: 0.001, PositionSizePct: 100}

	trades, equity, stats, err := Simulate(series, []strategy.Signal{buyAt(1, 10), sellAt(2, 12)}, cfg)
	if err != nil {
		t.Fatalf("资金不足不应返回错误: %v", err)
	}
	if len(trades) != 0 {
		t.Errorf("资金不足不应成交, 得到 %+v", trades)
	}
	if stats.SkippedBuys != 1 || stats.IgnoredSignals != 1 {
		t.Errorf("统计错误: %+v", stats)
	}
	for _, p := range equity {
		if p.Equity != 1000 {
			t.Errorf("权益应保持初始资金, 得到 %v", p.Equity)
		}
	}
}

func TestSimulateWarmupAlignment(t *testing.T) {
	series := buildSeries(linear(30, 100, 1)...)
	cfg := SimConfig{InitialCapital: 1000, PositionSizePct: 50, WarmupIndex: 9}

	_, equity, stats, err := Simulate(series, []strategy.Signal{buyAt(3, 103)}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(equity) != len(series)-cfg.WarmupIndex {
		t.Errorf("权益曲线长度期望 %d, 得到 %d", len(series)-cfg.WarmupIndex, len(equity))
	}
	if equity[0].Index != 9 || !equity[0].Timestamp.Equal(series[9].Timestamp) {
		t.Errorf("权益曲线应从预热结束处开始: %+v", equity[0])
	}
	if stats.IgnoredSignals != 1 {
		t.Errorf("预热期内的信号应被丢弃, 统计 %+v", stats)
	}
}

func TestSimulateOpenAtEndMarkedToMarket(t *testing.T) {
	series := buildSeries(10, 10, 20)
	cfg := SimConfig{InitialCapital: 1000, PositionSizePct: 100}

	trades, equity, stats, err := Simulate(series, []strategy.Signal{buyAt(1, 10)}, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 1 || !stats.OpenAtEnd {
		t.Fatalf("期望持仓到结束: trades=%d stats=%+v", len(trades), stats)
	}
	if last := equity[len(equity)-1]; last.Equity != 2000 || last.Cash != 0 || last.Position != 2000 {
		t.Errorf("期末按收盘价估值错误: %+v", last)
	}
}

// TestSimulateInvalidSignalPrice 手工构造的信号价格为 0 或 NaN 时不能开仓
func TestSimulateInvalidSignalPrice(t *testing.T) {
	series := buildSeries(10, 10, 10, 10)
	cfg := SimConfig{InitialCapital: 1000, PositionSizePct: 50}
	signals := []strategy.Signal{buyAt(1, 0), buyAt(2, math.NaN()), sellAt(3, math.Inf(1))}

	trades, equity, stats, err := Simulate(series, signals, cfg)
	if err != nil {
		t.Fatal(err)
	}
	if len(trades) != 0 || stats.OpenAtEnd {
		t.Fatalf("非法价格不应成交: %+v", trades)
	}
	if stats.IgnoredSignals != 3 {
		t.Errorf("非法价格信号应被丢弃, 统计 %+v", stats)
	}
	for _, e := range equity {
		if e.Cash != 1000 || e.Equity != 1000 {
			t.Errorf("现金应保持不变: %+v", e)
		}
	}
}

func TestSimulateInvalidConfig(t *testing.T) {
	series := buildSeries(1, 2, 3)
	configs := []SimConfig{
		{InitialCapital: 0, PositionSizePct: 50},
		{InitialCapital: -1, PositionSizePct: 50},
		{InitialCapital: 100, CommissionRate: -0.1, PositionSizePct: 50},
		{InitialCapital: 100, PositionSizePct: 0},
		{InitialCapital: 100, PositionSizePct: 101},
		{InitialCapital: 100, PositionSizePct: math.NaN()},
	}
	for i, cfg := range configs {
		if _, _, _, err := Simulate(series, nil, cfg); !errors.Is(err, market.ErrInvalidParameter) {
			t.Errorf("配置 %d: 期望 ErrInvalidParameter, 得到 %v", i, err)
		}
	}

	cfg := SimConfig{InitialCapital: 100, PositionSizePct: 50, WarmupIndex: 3}
	if _, _, _, err := Simulate(series, nil, cfg); !errors.Is(err, market.ErrInsufficientData) {
		t.Errorf("预热超过序列长度应返回 ErrInsufficientData, 得到 %v", err)
	}
}

func TestSimulateInvariants(t *testing.T) {
	series := buildSeries(zigzag(8, 15, 50, 3)...)

	for _, pct := range []float64{10, 50, 95, 100} {
		p := strategy.DefaultParams()
		p.FastWindow, p.SlowWindow = 3, 7
		p.PositionSizePct = pct

		signals, err := strategy.GenerateSignals(series, p)
		if err != nil {
			t.Fatal(err)
		}
		cfg := SimConfig{
			InitialCapital:  p.InitialCapital,
			CommissionRate:  p.CommissionRate,
			PositionSizePct: pct,
			WarmupIndex:     strategy.WarmupIndex(p),
		}
		trades, equity, _, err := Simulate(series, signals, cfg)
		if err != nil {
			t.Fatal(err)
		}

		// 现金非负
		for _, e := range equity {
			if e.Cash < 0 {
				t.Fatalf("pct=%.0f: 下标 %d 现金为负 %v", pct, e.Index, e.Cash)
			}
		}

		// 单仓位: BUY/SELL 严格交替，从 BUY 开始，卖出数量等于持仓数量
		var held float64
		for i, tr := range trades {
			wantKind := strategy.Buy
			if i%2 == 1 {
				wantKind = strategy.Sell
			}
			if tr.Kind != wantKind {
				t.Fatalf("pct=%.0f: 第 %d 笔成交期望 %s, 得到 %s", pct, i, wantKind, tr.Kind)
			}
			if tr.Cash < 0 {
				t.Fatalf("pct=%.0f: 成交后现金为负", pct)
			}
			if tr.Kind == strategy.Buy {
				held = tr.Shares
			} else if tr.Shares != held {
				t.Fatalf("pct=%.0f: 卖出 %v 股, 持有 %v 股", pct, tr.Shares, held)
			}
		}
	}
}
