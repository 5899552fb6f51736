package strategy

import (
	"tradeforge/indicators"
	"tradeforge/logger"
	"tradeforge/market"
)

// Name 策略名称
const Name = "sma_crossover"

// direction 快慢线相对位置：+1 快线在上，-1 快线在下，0 相等或未定义
func direction(fast, slow indicators.IndicatorSeries, i int) int {
	f, okF := fast.At(i)
	s, okS := slow.At(i)
	if !okF || !okS {
		return 0
	}
	switch {
	case f > s:
		return 1
	case f < s:
		return -1
	default:
		return 0
	}
}

// GenerateSignals 扫描价格序列生成金叉/死叉信号
//
// 信号只在方向从 -1 变为 +1（BUY）或从 +1 变为 -1（SELL）的那根 K 线上触发，
// 中间经过的 0（相等或未定义）不单独产生信号，也不改变参考方向。
// 预热期的参考方向视为 -1，因此慢线首次可用时快线已在上方也会产生 BUY。
func GenerateSignals(series market.PriceSeries, p Params) ([]Signal, error) {
	if err := p.ValidateWindows(); err != nil {
		return nil, err
	}
	if err := p.ValidateExits(); err != nil {
		return nil, err
	}
	if err := series.Validate(); err != nil {
		return nil, err
	}
	if len(series) < p.SlowWindow {
		return nil, &market.DataError{Have: len(series), Need: p.SlowWindow}
	}

	fast, err := indicators.MovingAverage(series, p.FastWindow)
	if err != nil {
		return nil, err
	}
	slow, err := indicators.MovingAverage(series, p.SlowWindow)
	if err != nil {
		return nil, err
	}

	signals := make([]Signal, 0)
	last := -1

	for i, bar := range series {
		state := direction(fast, slow, i)
		if state == 0 {
			continue
		}

		if state != last {
			sig := Signal{
				Index:     i,
				Timestamp: bar.Timestamp,
				Price:     bar.Close,
				FastMA:    fast.Values[i],
				SlowMA:    slow.Values[i],
			}
			if state > 0 {
				stopLoss := bar.Close * (1 - p.StopLossPct/100)
				takeProfit := bar.Close * (1 + p.TakeProfitPct/100)
				sig.Kind = Buy
				sig.Reason = reasonGoldenCross
				sig.StopLoss = &stopLoss
				sig.TakeProfit = &takeProfit
				sig.PositionSizePct = p.PositionSizePct
			} else {
				sig.Kind = Sell
				sig.Reason = reasonDeathCross
			}
			signals = append(signals, sig)
			logger.Debug("📍 %s 信号: index=%d, price=%.4f, fast=%.4f, slow=%.4f",
				sig.Kind, i, sig.Price, sig.FastMA, sig.SlowMA)
		}
		last = state
	}

	return signals, nil
}

// CurrentSignal 返回最后一根 K 线上触发的信号类型，没有信号时 ok 为 false
func CurrentSignal(series market.PriceSeries, p Params) (kind SignalKind, ok bool, err error) {
	signals, err := GenerateSignals(series, p)
	if err != nil {
		return "", false, err
	}
	if n := len(signals); n > 0 && signals[n-1].Index == len(series)-1 {
		return signals[n-1].Kind, true, nil
	}
	return "", false, nil
}

// WarmupIndex 慢线第一个有效值的下标，回测从这里开始推进
func WarmupIndex(p Params) int {
	return p.SlowWindow - 1
}
