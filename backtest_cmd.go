package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"tradeforge/backtest"
	"tradeforge/config"
	"tradeforge/database"
	"tradeforge/logger"
	"tradeforge/market"
)

// runBacktestCommand 命令行单次回测:
//
//	tradeforge backtest -csv prices.csv -fast 10 -slow 30
//	tradeforge backtest -symbol ETHUSDT -interval 4h -start 2024-01-01 -end 2024-06-30
func runBacktestCommand(args []string) int {
	fs := flag.NewFlagSet("backtest", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "配置文件（不存在时使用默认配置）")
	csvPath := fs.String("csv", "", "价格 CSV 文件: timestamp,open,high,low,close,volume")
	symbol := fs.String("symbol", "", "交易对，默认取配置")
	interval := fs.String("interval", "", "K线周期，默认取配置")
	startDate := fs.String("start", "", "开始日期 2006-01-02（从 Binance 下载时必填）")
	endDate := fs.String("end", "", "结束日期 2006-01-02")
	fast := fs.Int("fast", 0, "快线周期")
	slow := fs.Int("slow", 0, "慢线周期")
	stopLoss := fs.Float64("stop-loss", -1, "止损百分比")
	takeProfit := fs.Float64("take-profit", -1, "止盈百分比")
	position := fs.Float64("position", 0, "仓位百分比 (0,100]")
	capital := fs.Float64("capital", 0, "初始资金")
	commission := fs.Float64("commission", -1, "手续费率")
	report := fs.Bool("report", false, "写出 Markdown 报告和权益曲线 CSV")
	save := fs.Bool("save", false, "保存到报告数据库")
	asJSON := fs.Bool("json", false, "以 JSON 输出完整结果")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	cfg := config.DefaultConfig()
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "配置验证失败: %v\n", err)
		return 1
	}
	if _, err := os.Stat(*configPath); err == nil {
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
			return 1
		}
	}
	if err := applyAmbient(cfg); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer logger.Close()

	params := cfg.Backtest.Strategy
	if *fast > 0 {
		params.FastWindow = *fast
	}
	if *slow > 0 {
		params.SlowWindow = *slow
	}
	if *stopLoss >= 0 {
		params.StopLossPct = *stopLoss
	}
	if *takeProfit >= 0 {
		params.TakeProfitPct = *takeProfit
	}
	if *position > 0 {
		params.PositionSizePct = *position
	}
	if *capital > 0 {
		params.InitialCapital = *capital
	}
	if *commission >= 0 {
		params.CommissionRate = *commission
	}

	sym := strings.ToUpper(*symbol)
	if sym == "" && *csvPath == "" {
		sym = cfg.Backtest.Symbol
	}
	iv := *interval
	if iv == "" {
		iv = cfg.Backtest.Interval
	}

	series, err := loadCommandSeries(cfg, *csvPath, sym, iv, *startDate, *endDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载行情失败: %v\n", err)
		return 1
	}

	result, err := backtest.Run(series, params, backtest.RunOptions{Symbol: sym, Interval: iv})
	if err != nil {
		fmt.Fprintf(os.Stderr, "回测失败: %v\n", err)
		return 1
	}

	if *report {
		gen := backtest.NewReportGenerator(cfg.Backtest.ReportDir)
		if path, err := gen.GenerateReport(result); err != nil {
			logger.Warn("⚠️ 生成报告失败: %v", err)
		} else {
			logger.Info("📄 报告已生成: %s", path)
		}
		if path, err := gen.SaveEquityCurveCSV(result); err != nil {
			logger.Warn("⚠️ 保存权益曲线失败: %v", err)
		} else {
			logger.Info("📈 权益曲线已保存: %s", path)
		}
	}

	if *save {
		if id, err := saveResult(cfg, result); err != nil {
			logger.Warn("⚠️ 保存回测报告失败: %v", err)
		} else {
			logger.Info("💾 回测报告已保存: %s", id)
		}
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		return 0
	}

	fmt.Printf("交易对:     %s %s (%d 根K线)\n", result.Symbol, result.Interval, result.Bars)
	fmt.Printf("参数:       fast=%d slow=%d\n", result.Params.FastWindow, result.Params.SlowWindow)
	fmt.Printf("最终资金:   %.2f\n", result.FinalCapital)
	fmt.Printf("总收益率:   %.2f%%\n", result.TotalReturnPct)
	fmt.Printf("成交笔数:   %d (胜率 %.2f%%)\n", result.TotalTrades, result.WinRatePct)
	fmt.Printf("最大回撤:   %.2f%%\n", result.MaxDrawdownPct)
	fmt.Printf("夏普比率:   %.4f\n", result.SharpeRatio)
	return 0
}

func loadCommandSeries(cfg *config.Config, csvPath, symbol, interval, startDate, endDate string) (market.PriceSeries, error) {
	if csvPath != "" {
		f, err := os.Open(csvPath)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return market.ReadCSV(f)
	}

	if startDate == "" || endDate == "" {
		return nil, market.InvalidParam("start/end", nil, "either -csv or -start/-end is required")
	}
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return nil, market.InvalidParam("start", startDate, err.Error())
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return nil, market.InvalidParam("end", endDate, err.Error())
	}

	cache := backtest.NewCacheManager(cfg.Backtest.CacheDir)
	source := backtest.NewBinanceSource(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.Testnet)
	fetcher := backtest.NewDataFetcher(source, cache, cfg.Binance.RequestsPerSecond)
	return fetcher.GetHistoricalData(context.Background(), symbol, interval, start, end)
}

func saveResult(cfg *config.Config, result *backtest.Result) (string, error) {
	store, err := database.NewStore(&database.Config{
		Type:     cfg.Database.Type,
		DSN:      cfg.Database.DSN,
		LogLevel: cfg.Database.LogLevel,
	})
	if err != nil {
		return "", err
	}
	defer store.Close()

	rec, err := database.ToRecord(result)
	if err != nil {
		return "", err
	}
	if err := store.SaveReport(context.Background(), rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}
