package backtest

import (
	"math"
	"time"

	"tradeforge/logger"
	"tradeforge/market"
	"tradeforge/strategy"
)

// SimConfig 执行模拟器配置
type SimConfig struct {
	InitialCapital  float64
	CommissionRate  float64
	PositionSizePct float64
	WarmupIndex     int // 第一个慢线有效的下标，权益曲线从这里开始
}

// Validate 校验模拟器配置，失败时不会创建任何模拟状态
func (c SimConfig) Validate() error {
	if math.IsNaN(c.InitialCapital) || math.IsInf(c.InitialCapital, 0) || c.InitialCapital <= 0 {
		return market.InvalidParam("initial_capital", c.InitialCapital, "must be positive")
	}
	if math.IsNaN(c.CommissionRate) || c.CommissionRate < 0 || c.CommissionRate > 1 {
		return market.InvalidParam("commission_rate", c.CommissionRate, "must be in [0, 1]")
	}
	if math.IsNaN(c.PositionSizePct) || c.PositionSizePct <= 0 || c.PositionSizePct > 100 {
		return market.InvalidParam("position_size_pct", c.PositionSizePct, "must be in (0, 100]")
	}
	if c.WarmupIndex < 0 {
		return market.InvalidParam("warmup_index", c.WarmupIndex, "must not be negative")
	}
	return nil
}

// EquityPoint 权益点
type EquityPoint struct {
	Index     int       `json:"index"`
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Position  float64   `json:"position_value"`
}

// Trade 成交记录，只追加不修改
type Trade struct {
	Index      int                 `json:"index"`
	Date       time.Time           `json:"date"`
	Kind       strategy.SignalKind `json:"type"`
	Price      float64             `json:"price"`
	Shares     float64             `json:"shares"`
	Commission float64             `json:"commission"`
	Cash       float64             `json:"cash"`              // 成交后现金
	PnL        *float64            `json:"pnl,omitempty"`     // 仅 SELL
	PnLPct     *float64            `json:"pnl_pct,omitempty"` // 仅 SELL
}

// Closed 是否为平仓成交（带盈亏）
func (t Trade) Closed() bool {
	return t.PnL != nil
}

// SimStats 模拟过程统计
type SimStats struct {
	SkippedBuys    int  `json:"skipped_buys"`    // 资金不足跳过的 BUY
	IgnoredSignals int  `json:"ignored_signals"` // 与持仓状态不匹配被丢弃的信号
	OpenAtEnd      bool `json:"open_at_end"`
}

// position 单仓位状态，只在一次模拟内部使用
type position struct {
	open       bool
	shares     float64
	entryPrice float64
	cash       float64
}

func (p *position) value(price float64) float64 {
	if !p.open {
		return 0
	}
	return p.shares * price
}

// simulator 执行模拟器
type simulator struct {
	cfg    SimConfig
	pos    position
	trades []Trade
	equity []EquityPoint
	stats  SimStats
}

// Simulate 按顺序消费信号，生成成交记录与权益曲线
//
// 每个信号只被消费一次：空仓时只接受 BUY，持仓时只接受 SELL，其余直接丢弃。
// 从 WarmupIndex 开始，每根 K 线都按当根收盘价记录一次权益。
func Simulate(series market.PriceSeries, signals []strategy.Signal, cfg SimConfig) ([]Trade, []EquityPoint, SimStats, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, SimStats{}, err
	}
	if len(series) == 0 {
		return nil, nil, SimStats{}, &market.DataError{Have: 0, Need: 1}
	}
	if cfg.WarmupIndex >= len(series) {
		return nil, nil, SimStats{}, &market.DataError{Have: len(series), Need: cfg.WarmupIndex + 1}
	}

	sim := &simulator{
		cfg:    cfg,
		pos:    position{cash: cfg.InitialCapital},
		trades: make([]Trade, 0),
		equity: make([]EquityPoint, 0, len(series)-cfg.WarmupIndex),
	}

	next := 0
	for i := cfg.WarmupIndex; i < len(series); i++ {
		bar := series[i]

		// 预热期内的信号不会出现，出现也一并丢弃
		for next < len(signals) && signals[next].Index < i {
			sim.stats.IgnoredSignals++
			next++
		}
		for next < len(signals) && signals[next].Index == i {
			sim.apply(bar, signals[next])
			next++
		}

		posValue := sim.pos.value(bar.Close)
		sim.equity = append(sim.equity, EquityPoint{
			Index:     i,
			Timestamp: bar.Timestamp,
			Equity:    sim.pos.cash + posValue,
			Cash:      sim.pos.cash,
			Position:  posValue,
		})
	}
	sim.stats.IgnoredSignals += len(signals) - next
	sim.stats.OpenAtEnd = sim.pos.open

	if sim.stats.SkippedBuys > 0 {
		logger.Debug("⚠️ 资金不足跳过 %d 个 BUY 信号", sim.stats.SkippedBuys)
	}

	return sim.trades, sim.equity, sim.stats, nil
}

func (s *simulator) apply(bar market.PricePoint, sig strategy.Signal) {
	switch {
	case !market.ValidPrice(sig.Price):
		s.stats.IgnoredSignals++
	case sig.Kind == strategy.Buy && !s.pos.open:
		s.buy(bar, sig)
	case sig.Kind == strategy.Sell && s.pos.open:
		s.sell(bar, sig)
	default:
		s.stats.IgnoredSignals++
	}
}

// buy 开仓，成本超过现金时静默跳过
func (s *simulator) buy(bar market.PricePoint, sig strategy.Signal) {
	positionValue := s.pos.cash * s.cfg.PositionSizePct / 100
	shares := positionValue / sig.Price
	cost := shares * sig.Price * (1 + s.cfg.CommissionRate)

	if sig.Price <= 0 || math.IsNaN(cost) || math.IsInf(shares, 0) || cost > s.pos.cash || shares <= 0 {
		s.stats.SkippedBuys++
		return
	}

	s.pos.cash -= cost
	s.pos.open = true
	s.pos.shares = shares
	s.pos.entryPrice = sig.Price

	s.trades = append(s.trades, Trade{
		Index:      sig.Index,
		Date:       bar.Timestamp,
		Kind:       strategy.Buy,
		Price:      sig.Price,
		Shares:     shares,
		Commission: shares * sig.Price * s.cfg.CommissionRate,
		Cash:       s.pos.cash,
	})

	logger.Debug("📈 买入: 价格=%.4f, 数量=%.6f, 剩余现金=%.2f", sig.Price, shares, s.pos.cash)
}

// sell 全部平仓
func (s *simulator) sell(bar market.PricePoint, sig strategy.Signal) {
	shares := s.pos.shares
	gross := shares * sig.Price
	proceeds := gross * (1 - s.cfg.CommissionRate)
	basis := shares * s.pos.entryPrice
	pnl := proceeds - basis
	pnlPct := pnl / basis * 100

	s.pos.cash += proceeds
	s.pos.open = false
	s.pos.shares = 0
	s.pos.entryPrice = 0

	s.trades = append(s.trades, Trade{
		Index:      sig.Index,
		Date:       bar.Timestamp,
		Kind:       strategy.Sell,
		Price:      sig.Price,
		Shares:     shares,
		Commission: gross * s.cfg.CommissionRate,
		Cash:       s.pos.cash,
		PnL:        &pnl,
		PnLPct:     &pnlPct,
	})

	logger.Debug("📉 卖出: 价格=%.4f, 数量=%.6f, 盈亏=%.2f (%.2f%%)", sig.Price, shares, pnl, pnlPct)
}
