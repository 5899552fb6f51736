package backtest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/shopspring/decimal"
)

// ReportGenerator 将回测结果写为 Markdown 报告与权益曲线 CSV
type ReportGenerator struct {
	dir string
	now func() time.Time
}

// NewReportGenerator 创建报告生成器，dir 为空时使用 backtest/reports
func NewReportGenerator(dir string) *ReportGenerator {
	if dir == "" {
		dir = filepath.Join("backtest", "reports")
	}
	return &ReportGenerator{dir: dir, now: time.Now}
}

// Dir 报告目录
func (g *ReportGenerator) Dir() string {
	return g.dir
}

// GenerateReport 生成 Markdown 回测报告，返回文件路径
func (g *ReportGenerator) GenerateReport(result *Result) (string, error) {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	content, err := RenderMarkdown(result, g.now())
	if err != nil {
		return "", fmt.Errorf("渲染报告模板失败: %w", err)
	}

	reportPath := filepath.Join(g.dir, g.baseName(result)+".md")
	if err := os.WriteFile(reportPath, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("写入报告文件失败: %w", err)
	}

	return reportPath, nil
}

// SaveEquityCurveCSV 保存权益曲线到 CSV
func (g *ReportGenerator) SaveEquityCurveCSV(result *Result) (string, error) {
	if err := os.MkdirAll(g.dir, 0755); err != nil {
		return "", fmt.Errorf("创建报告目录失败: %w", err)
	}

	csvPath := filepath.Join(g.dir, g.baseName(result)+"_equity.csv")
	file, err := os.Create(csvPath)
	if err != nil {
		return "", fmt.Errorf("创建 CSV 文件失败: %w", err)
	}
	defer file.Close()

	if err := WriteEquityCSV(file, result.EquityCurve); err != nil {
		return "", err
	}

	return csvPath, nil
}

func (g *ReportGenerator) baseName(result *Result) string {
	symbol := result.Symbol
	if symbol == "" {
		symbol = "series"
	}
	return fmt.Sprintf("%s_%s_%d_%d_%s",
		result.Strategy, symbol, result.Params.FastWindow, result.Params.SlowWindow,
		g.now().Format("2006-01-02_15-04-05"))
}

// WriteEquityCSV 写出权益曲线，金额保留两位小数
func WriteEquityCSV(w io.Writer, equity []EquityPoint) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"index", "timestamp", "equity", "cash", "position_value"}); err != nil {
		return err
	}
	for _, p := range equity {
		record := []string{
			strconv.Itoa(p.Index),
			p.Timestamp.UTC().Format(time.RFC3339),
			money(p.Equity),
			money(p.Cash),
			money(p.Position),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func money(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

func percent(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2) + "%"
}

func ratio(v float64) string {
	return decimal.NewFromFloat(v).StringFixed(2)
}

// ReportData 报告模板数据
type ReportData struct {
	Strategy       string
	Symbol         string
	Interval       string
	FastWindow     int
	SlowWindow     int
	GeneratedAt    string
	StartDate      string
	EndDate        string
	Bars           int
	InitialCapital string
	FinalCapital   string

	TotalReturn      string
	AnnualizedReturn string

	MaxDrawdown         string
	MaxDrawdownDuration int
	Volatility          string

	SharpeRatio  string
	SortinoRatio string
	CalmarRatio  string

	TotalTrades          int
	ClosedTrades         int
	WinningTrades        int
	WinRate              string
	ProfitFactor         string
	AvgWin               string
	AvgLoss              string
	LargestWin           string
	LargestLoss          string
	TotalFees            string
	MaxConsecutiveWins   int
	MaxConsecutiveLosses int
	SkippedBuys          int

	Trades []TradeRow

	VaR95  string
	VaR99  string
	CVaR95 string
	CVaR99 string

	Conclusion string
}

// TradeRow 交易行
type TradeRow struct {
	Time   string
	Type   string
	Price  string
	Shares string
	Cash   string
	PnL    string
}

const maxReportTrades = 20

func prepareReportData(result *Result, generatedAt time.Time) ReportData {
	m := result.Metrics

	rows := make([]TradeRow, 0, maxReportTrades)
	for _, t := range result.Trades {
		if len(rows) >= maxReportTrades {
			break
		}
		row := TradeRow{
			Time:   t.Date.Format("2006-01-02 15:04"),
			Type:   string(t.Kind),
			Price:  money(t.Price),
			Shares: decimal.NewFromFloat(t.Shares).StringFixed(6),
			Cash:   money(t.Cash),
			PnL:    "-",
		}
		if t.Closed() {
			row.PnL = fmt.Sprintf("%s (%s)", money(*t.PnL), percent(*t.PnLPct))
		}
		rows = append(rows, row)
	}

	return ReportData{
		Strategy:       result.Strategy,
		Symbol:         result.Symbol,
		Interval:       result.Interval,
		FastWindow:     result.Params.FastWindow,
		SlowWindow:     result.Params.SlowWindow,
		GeneratedAt:    generatedAt.Format("2006-01-02 15:04:05"),
		StartDate:      result.StartTime.Format("2006-01-02"),
		EndDate:        result.EndTime.Format("2006-01-02"),
		Bars:           result.Bars,
		InitialCapital: money(result.InitialCapital),
		FinalCapital:   money(result.FinalCapital),

		TotalReturn:      percent(result.TotalReturnPct),
		AnnualizedReturn: percent(m.AnnualizedReturn),

		MaxDrawdown:         percent(result.MaxDrawdownPct),
		MaxDrawdownDuration: m.MaxDrawdownDuration,
		Volatility:          percent(m.Volatility),

		SharpeRatio:  ratio(result.SharpeRatio),
		SortinoRatio: ratio(m.SortinoRatio),
		CalmarRatio:  ratio(m.CalmarRatio),

		TotalTrades:          result.TotalTrades,
		ClosedTrades:         m.ClosedTrades,
		WinningTrades:        result.WinningTrades,
		WinRate:              percent(result.WinRatePct),
		ProfitFactor:         ratio(m.ProfitFactor),
		AvgWin:               money(m.AvgWin),
		AvgLoss:              money(m.AvgLoss),
		LargestWin:           money(m.LargestWin),
		LargestLoss:          money(m.LargestLoss),
		TotalFees:            money(m.TotalFees),
		MaxConsecutiveWins:   m.MaxConsecutiveWins,
		MaxConsecutiveLosses: m.MaxConsecutiveLosses,
		SkippedBuys:          result.Stats.SkippedBuys,

		Trades: rows,

		VaR95:  percent(result.RiskMetrics.VaR95),
		VaR99:  percent(result.RiskMetrics.VaR99),
		CVaR95: percent(result.RiskMetrics.CVaR95),
		CVaR99: percent(result.RiskMetrics.CVaR99),

		Conclusion: generateConclusion(result),
	}
}

// generateConclusion 生成结论
func generateConclusion(result *Result) string {
	var conclusions []string

	switch {
	case result.TotalReturnPct > 50:
		conclusions = append(conclusions, "✅ 策略表现优秀，总收益率超过 50%")
	case result.TotalReturnPct > 20:
		conclusions = append(conclusions, "✅ 策略表现良好，总收益率超过 20%")
	case result.TotalReturnPct > 0:
		conclusions = append(conclusions, "⚠️ 策略盈利，但收益率较低")
	default:
		conclusions = append(conclusions, "❌ 策略未盈利，需要调整均线周期")
	}

	switch {
	case result.MaxDrawdownPct > -10:
		conclusions = append(conclusions, "✅ 风险控制良好，最大回撤小于 10%")
	case result.MaxDrawdownPct > -20:
		conclusions = append(conclusions, "⚠️ 风险适中，最大回撤在 10-20% 之间")
	default:
		conclusions = append(conclusions, "❌ 风险较高，最大回撤超过 20%")
	}

	switch {
	case result.SharpeRatio > 2:
		conclusions = append(conclusions, "✅ 风险调整收益优秀，夏普比率 > 2")
	case result.SharpeRatio > 1:
		conclusions = append(conclusions, "✅ 风险调整收益良好，夏普比率 > 1")
	case result.SharpeRatio > 0:
		conclusions = append(conclusions, "⚠️ 风险调整收益一般，夏普比率 < 1")
	default:
		conclusions = append(conclusions, "❌ 夏普比率不为正")
	}

	if result.Metrics.ClosedTrades == 0 {
		conclusions = append(conclusions, "⚠️ 没有完成的平仓交易，胜率无法评估")
	} else if result.WinRatePct > 50 {
		conclusions = append(conclusions, "✅ 胜率超过 50%")
	} else {
		conclusions = append(conclusions, "⚠️ 胜率较低")
	}

	return strings.Join(conclusions, "\n\n")
}

var reportTemplate = template.Must(template.New("report").Parse(`# {{.Strategy}} 回测报告

生成时间: {{.GeneratedAt}}

## 执行摘要

- **交易对**: {{.Symbol}} {{.Interval}}
- **均线参数**: fast={{.FastWindow}}, slow={{.SlowWindow}}
- **回测期间**: {{.StartDate}} 至 {{.EndDate}} ({{.Bars}} 根K线)
- **初始资金**: {{.InitialCapital}}
- **最终资金**: {{.FinalCapital}}
- **总收益率**: {{.TotalReturn}}
- **最大回撤**: {{.MaxDrawdown}}
- **夏普比率**: {{.SharpeRatio}}

## 收益与风险

| 指标 | 数值 |
|------|------|
| 总收益率 | {{.TotalReturn}} |
| 年化收益率 | {{.AnnualizedReturn}} |
| 最大回撤 | {{.MaxDrawdown}} |
| 最长回撤持续 | {{.MaxDrawdownDuration}} 根K线 |
| 波动率（年化） | {{.Volatility}} |
| 夏普比率 | {{.SharpeRatio}} |
| 索提诺比率 | {{.SortinoRatio}} |
| 卡玛比率 | {{.CalmarRatio}} |

## 交易指标

| 指标 | 数值 |
|------|------|
| 成交次数 | {{.TotalTrades}} |
| 平仓次数 | {{.ClosedTrades}} |
| 盈利次数 | {{.WinningTrades}} |
| 胜率 | {{.WinRate}} |
| 利润因子 | {{.ProfitFactor}} |
| 平均盈利 | {{.AvgWin}} |
| 平均亏损 | {{.AvgLoss}} |
| 最大单笔盈利 | {{.LargestWin}} |
| 最大单笔亏损 | {{.LargestLoss}} |
| 手续费合计 | {{.TotalFees}} |
| 最大连续盈利 | {{.MaxConsecutiveWins}} 笔 |
| 最大连续亏损 | {{.MaxConsecutiveLosses}} 笔 |
| 资金不足跳过 | {{.SkippedBuys}} 次 |

## 成交明细（前20笔）

| 时间 | 类型 | 价格 | 数量 | 成交后现金 | 盈亏 |
|------|------|------|------|------|------|
{{range .Trades}}| {{.Time}} | {{.Type}} | {{.Price}} | {{.Shares}} | {{.Cash}} | {{.PnL}} |
{{end}}
## 高级风险指标

| 指标 | 数值 |
|------|------|
| VaR (95%) | {{.VaR95}} |
| VaR (99%) | {{.VaR99}} |
| CVaR (95%) | {{.CVaR95}} |
| CVaR (99%) | {{.CVaR99}} |

## 结论

{{.Conclusion}}
`))

// RenderMarkdown 渲染 Markdown 报告内容
func RenderMarkdown(result *Result, generatedAt time.Time) (string, error) {
	var buf strings.Builder
	if err := reportTemplate.Execute(&buf, prepareReportData(result, generatedAt)); err != nil {
		return "", err
	}
	return buf.String(), nil
}
