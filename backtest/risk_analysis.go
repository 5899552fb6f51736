package backtest

import (
	"math"
	"sort"
)

// RiskMetrics 风险指标（百分比，正数表示损失）
type RiskMetrics struct {
	VaR95  float64 `json:"var_95"`  // 95% 置信度的风险价值
	VaR99  float64 `json:"var_99"`  // 99% 置信度的风险价值
	CVaR95 float64 `json:"cvar_95"` // 95% 置信度的条件风险价值
	CVaR99 float64 `json:"cvar_99"` // 99% 置信度的条件风险价值
}

// CalculateRiskMetrics 历史模拟法计算权益收益率的 VaR/CVaR
func CalculateRiskMetrics(equity []EquityPoint) RiskMetrics {
	returns := calculateReturns(equity)
	if len(returns) == 0 {
		return RiskMetrics{}
	}

	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	return RiskMetrics{
		VaR95:  historicalVaR(sorted, 0.95) * 100,
		VaR99:  historicalVaR(sorted, 0.99) * 100,
		CVaR95: expectedShortfall(sorted, 0.95) * 100,
		CVaR99: expectedShortfall(sorted, 0.99) * 100,
	}
}

func tailIndex(n int, confidence float64) int {
	index := int(float64(n) * (1 - confidence))
	if index >= n {
		index = n - 1
	}
	if index < 0 {
		index = 0
	}
	return index
}

// historicalVaR sorted 必须升序
func historicalVaR(sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return lossOf(sorted[tailIndex(len(sorted), confidence)])
}

// expectedShortfall 尾部（含 VaR 分位点）平均损失
func expectedShortfall(sorted []float64, confidence float64) float64 {
	if len(sorted) == 0 {
		return 0
	}

	index := tailIndex(len(sorted), confidence)
	sum := 0.0
	for i := 0; i <= index; i++ {
		sum += sorted[i]
	}

	return lossOf(sum / float64(index+1))
}

// lossOf 收益为正时没有损失
func lossOf(r float64) float64 {
	if r >= 0 {
		return 0
	}
	return math.Abs(r)
}
