package database

import (
	"encoding/json"
	"fmt"

	"tradeforge/backtest"
)

// ToRecord 把回测结果转换为数据库记录
func ToRecord(result *backtest.Result) (*BacktestRecord, error) {
	params, err := json.Marshal(result.Params)
	if err != nil {
		return nil, fmt.Errorf("序列化参数失败: %w", err)
	}
	full, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("序列化回测结果失败: %w", err)
	}

	return &BacktestRecord{
		Symbol:         result.Symbol,
		Interval:       result.Interval,
		Strategy:       result.Strategy,
		Params:         string(params),
		StartTime:      result.StartTime,
		EndTime:        result.EndTime,
		Bars:           result.Bars,
		InitialCapital: result.InitialCapital,
		FinalCapital:   result.FinalCapital,
		TotalReturnPct: result.TotalReturnPct,
		TotalTrades:    result.TotalTrades,
		WinRatePct:     result.WinRatePct,
		MaxDrawdownPct: result.MaxDrawdownPct,
		SharpeRatio:    result.SharpeRatio,
		ResultJSON:     string(full),
	}, nil
}

// FromRecord 从记录还原完整回测结果
func FromRecord(rec *BacktestRecord) (*backtest.Result, error) {
	if rec.ResultJSON == "" {
		return nil, fmt.Errorf("报告 %s 没有完整结果", rec.ID)
	}
	var result backtest.Result
	if err := json.Unmarshal([]byte(rec.ResultJSON), &result); err != nil {
		return nil, fmt.Errorf("解析回测结果失败: %w", err)
	}
	return &result, nil
}
