package backtest

import (
	"math"
)

// TradingDaysPerYear 夏普比率年化系数
const TradingDaysPerYear = 252

// BacktestReport 回测报告，返回后不再修改
type BacktestReport struct {
	InitialCapital float64       `json:"initial_capital"`
	FinalCapital   float64       `json:"final_capital"`
	TotalReturnPct float64       `json:"total_return_pct"`
	TotalTrades    int           `json:"total_trades"`   // BUY 与 SELL 都计入
	WinningTrades  int           `json:"winning_trades"` // 盈利的平仓次数
	WinRatePct     float64       `json:"win_rate_pct"`
	MaxDrawdownPct float64       `json:"max_drawdown_pct"` // <= 0
	SharpeRatio    float64       `json:"sharpe_ratio"`
	Trades         []Trade       `json:"trades"`
	EquityCurve    []EquityPoint `json:"equity_curve"`
}

// Metrics 扩展指标，与核心报告并列，不影响核心报告
type Metrics struct {
	// 收益指标
	AnnualizedReturn float64 `json:"annualized_return"` // 年化收益率 (%)

	// 风险指标
	MaxDrawdownDuration int     `json:"max_drawdown_duration"` // 最长回撤持续 K 线数
	Volatility          float64 `json:"volatility"`            // 年化波动率 (%)

	// 风险调整收益
	SortinoRatio float64 `json:"sortino_ratio"`
	CalmarRatio  float64 `json:"calmar_ratio"`

	// 交易指标
	ClosedTrades int     `json:"closed_trades"`
	ProfitFactor float64 `json:"profit_factor"` // 总盈利 / 总亏损
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
	TotalFees    float64 `json:"total_fees"`

	// 连续性指标
	MaxConsecutiveWins   int `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int `json:"max_consecutive_losses"`
}

// Summarize 由成交记录与权益曲线计算核心报告，纯函数
func Summarize(trades []Trade, equity []EquityPoint, initialCapital float64) BacktestReport {
	final := initialCapital
	if len(equity) > 0 {
		final = equity[len(equity)-1].Equity
	}

	closed, winning := 0, 0
	for _, t := range trades {
		if !t.Closed() {
			continue
		}
		closed++
		if *t.PnL > 0 {
			winning++
		}
	}

	report := BacktestReport{
		InitialCapital: initialCapital,
		FinalCapital:   final,
		TotalTrades:    len(trades),
		WinningTrades:  winning,
		MaxDrawdownPct: calculateMaxDrawdown(equity),
		SharpeRatio:    calculateSharpeRatio(calculateReturns(equity)),
		Trades:         trades,
		EquityCurve:    equity,
	}
	if initialCapital != 0 {
		report.TotalReturnPct = (final - initialCapital) / initialCapital * 100
	}
	if closed > 0 {
		report.WinRatePct = float64(winning) / float64(closed) * 100
	}

	return report
}

// CalculateMetrics 计算扩展指标
func CalculateMetrics(equity []EquityPoint, trades []Trade, initialCapital float64) Metrics {
	if len(equity) == 0 {
		return Metrics{}
	}

	returns := calculateReturns(equity)
	pnls := closedPnLs(trades)

	m := Metrics{
		AnnualizedReturn:    calculateAnnualizedReturn(equity, initialCapital),
		MaxDrawdownDuration: calculateMaxDrawdownDuration(equity),
		Volatility:          calculateVolatility(returns),
		SortinoRatio:        calculateSortinoRatio(returns),
		ClosedTrades:        len(pnls),
		ProfitFactor:        calculateProfitFactor(pnls),
	}

	if maxDD := calculateMaxDrawdown(equity); maxDD < 0 {
		m.CalmarRatio = m.AnnualizedReturn / math.Abs(maxDD)
	}

	wins, losses := 0, 0
	totalWin, totalLoss := 0.0, 0.0
	for _, pnl := range pnls {
		switch {
		case pnl > 0:
			wins++
			totalWin += pnl
			m.LargestWin = math.Max(m.LargestWin, pnl)
		case pnl < 0:
			losses++
			totalLoss += -pnl
			m.LargestLoss = math.Max(m.LargestLoss, -pnl)
		}
	}
	if wins > 0 {
		m.AvgWin = totalWin / float64(wins)
	}
	if losses > 0 {
		m.AvgLoss = totalLoss / float64(losses)
	}

	for _, t := range trades {
		m.TotalFees += t.Commission
	}

	m.MaxConsecutiveWins = maxStreak(pnls, func(p float64) bool { return p > 0 })
	m.MaxConsecutiveLosses = maxStreak(pnls, func(p float64) bool { return p < 0 })

	return m
}

// calculateReturns 计算逐根收益率序列 r[t] = eq[t]/eq[t-1] - 1
func calculateReturns(equity []EquityPoint) []float64 {
	if len(equity) < 2 {
		return []float64{}
	}

	returns := make([]float64, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1].Equity > 0 {
			returns[i-1] = equity[i].Equity/equity[i-1].Equity - 1
		}
	}

	return returns
}

// calculateMaxDrawdown 计算最大回撤 (%)，以负数表示，权益不下降时为 0
func calculateMaxDrawdown(equity []EquityPoint) float64 {
	if len(equity) == 0 {
		return 0
	}

	maxDrawdown := 0.0
	peak := equity[0].Equity

	for _, point := range equity {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			drawdown := (point.Equity - peak) / peak * 100
			if drawdown < maxDrawdown {
				maxDrawdown = drawdown
			}
		}
	}

	return maxDrawdown
}

// calculateMaxDrawdownDuration 计算最长回撤持续的 K 线数
func calculateMaxDrawdownDuration(equity []EquityPoint) int {
	maxDuration := 0
	currentDuration := 0
	peak := math.Inf(-1)

	for _, point := range equity {
		if point.Equity >= peak {
			peak = point.Equity
			currentDuration = 0
			continue
		}
		currentDuration++
		if currentDuration > maxDuration {
			maxDuration = currentDuration
		}
	}

	return maxDuration
}

func meanStd(values []float64) (mean, std float64) {
	n := len(values)
	if n == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)
	if n < 2 {
		return mean, 0
	}

	variance := 0.0
	for _, v := range values {
		diff := v - mean
		variance += diff * diff
	}
	variance /= float64(n - 1)

	return mean, math.Sqrt(variance)
}

// calculateSharpeRatio 年化夏普比率，样本标准差，不扣无风险利率
func calculateSharpeRatio(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}

	mean, stdDev := meanStd(returns)
	if stdDev == 0 || math.IsNaN(stdDev) {
		return 0
	}

	return mean / stdDev * math.Sqrt(TradingDaysPerYear)
}

// calculateVolatility 年化波动率 (%)
func calculateVolatility(returns []float64) float64 {
	_, stdDev := meanStd(returns)
	return stdDev * math.Sqrt(TradingDaysPerYear) * 100
}

// calculateSortinoRatio 索提诺比率（只考虑下行波动）
func calculateSortinoRatio(returns []float64) float64 {
	if len(returns) == 0 {
		return 0
	}

	mean, _ := meanStd(returns)

	downVariance := 0.0
	downCount := 0
	for _, r := range returns {
		if r < 0 {
			downVariance += r * r
			downCount++
		}
	}
	if downCount == 0 {
		return 0
	}

	downStdDev := math.Sqrt(downVariance / float64(downCount))
	if downStdDev == 0 {
		return 0
	}

	return mean / downStdDev * math.Sqrt(TradingDaysPerYear)
}

// calculateAnnualizedReturn 按权益曲线首尾时间折算年化收益率 (%)
func calculateAnnualizedReturn(equity []EquityPoint, initialCapital float64) float64 {
	if len(equity) < 2 || initialCapital <= 0 {
		return 0
	}

	days := equity[len(equity)-1].Timestamp.Sub(equity[0].Timestamp).Hours() / 24
	if days <= 0 {
		return 0
	}

	growth := equity[len(equity)-1].Equity / initialCapital
	if growth <= 0 {
		return -100
	}

	// 周期过短时复利折算会溢出
	annualized := (math.Pow(growth, 365/days) - 1) * 100
	if math.IsInf(annualized, 0) || math.IsNaN(annualized) {
		return 0
	}
	return annualized
}

func closedPnLs(trades []Trade) []float64 {
	pnls := make([]float64, 0, len(trades)/2)
	for _, t := range trades {
		if t.Closed() {
			pnls = append(pnls, *t.PnL)
		}
	}
	return pnls
}

// calculateProfitFactor 利润因子，没有亏损时为 0
func calculateProfitFactor(pnls []float64) float64 {
	totalProfit, totalLoss := 0.0, 0.0
	for _, pnl := range pnls {
		if pnl > 0 {
			totalProfit += pnl
		} else {
			totalLoss += -pnl
		}
	}

	if totalLoss == 0 {
		return 0
	}

	return totalProfit / totalLoss
}

func maxStreak(pnls []float64, match func(float64) bool) int {
	best, current := 0, 0
	for _, pnl := range pnls {
		if match(pnl) {
			current++
			if current > best {
				best = current
			}
		} else {
			current = 0
		}
	}
	return best
}
