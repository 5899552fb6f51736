package strategy

import (
	"math"

	"tradeforge/market"
)

// Params 均线交叉策略参数，每次调用显式传入，策略本身不保存状态
type Params struct {
	FastWindow      int     `yaml:"fast_window" json:"fast_window"`             // 快线周期
	SlowWindow      int     `yaml:"slow_window" json:"slow_window"`             // 慢线周期
	StopLossPct     float64 `yaml:"stop_loss_pct" json:"stop_loss_pct"`         // 止损百分比（2 表示 2%）
	TakeProfitPct   float64 `yaml:"take_profit_pct" json:"take_profit_pct"`     // 止盈百分比
	PositionSizePct float64 `yaml:"position_size_pct" json:"position_size_pct"` // 每次开仓使用现金的百分比 (0,100]
	InitialCapital  float64 `yaml:"initial_capital" json:"initial_capital"`     // 初始资金
	CommissionRate  float64 `yaml:"commission_rate" json:"commission_rate"`     // 手续费率（0.001 表示 0.1%）
}

// DefaultParams 默认参数
func DefaultParams() Params {
	return Params{
		FastWindow:      20,
		SlowWindow:      50,
		StopLossPct:     2.0,
		TakeProfitPct:   5.0,
		PositionSizePct: 95.0,
		InitialCapital:  10000.0,
		CommissionRate:  0.001,
	}
}

// ValidateWindows 校验均线周期：均为正数且快线周期小于慢线周期
func (p Params) ValidateWindows() error {
	if p.FastWindow <= 0 {
		return market.InvalidParam("fast_window", p.FastWindow, "must be positive")
	}
	if p.SlowWindow <= 0 {
		return market.InvalidParam("slow_window", p.SlowWindow, "must be positive")
	}
	if p.FastWindow >= p.SlowWindow {
		return market.InvalidParam("fast_window", p.FastWindow, "must be less than slow_window")
	}
	return nil
}

// ValidateExits 校验止损止盈百分比
func (p Params) ValidateExits() error {
	if !finite(p.StopLossPct) || p.StopLossPct < 0 || p.StopLossPct >= 100 {
		return market.InvalidParam("stop_loss_pct", p.StopLossPct, "must be in [0, 100)")
	}
	if !finite(p.TakeProfitPct) || p.TakeProfitPct < 0 {
		return market.InvalidParam("take_profit_pct", p.TakeProfitPct, "must not be negative")
	}
	return nil
}

// ValidateExecution 校验资金、手续费率与仓位比例
func (p Params) ValidateExecution() error {
	if !finite(p.InitialCapital) || p.InitialCapital <= 0 {
		return market.InvalidParam("initial_capital", p.InitialCapital, "must be positive")
	}
	if !finite(p.CommissionRate) || p.CommissionRate < 0 || p.CommissionRate > 1 {
		return market.InvalidParam("commission_rate", p.CommissionRate, "must be in [0, 1]")
	}
	if !finite(p.PositionSizePct) || p.PositionSizePct <= 0 || p.PositionSizePct > 100 {
		return market.InvalidParam("position_size_pct", p.PositionSizePct, "must be in (0, 100]")
	}
	return nil
}

// Validate 校验全部参数
func (p Params) Validate() error {
	if err := p.ValidateWindows(); err != nil {
		return err
	}
	if err := p.ValidateExits(); err != nil {
		return err
	}
	return p.ValidateExecution()
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
