package database

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound 报告不存在
var ErrNotFound = errors.New("report not found")

// Store 回测报告存储接口
type Store interface {
	SaveReport(ctx context.Context, rec *BacktestRecord) error
	GetReport(ctx context.Context, id string) (*BacktestRecord, error)
	ListReports(ctx context.Context, filter *ReportFilter) ([]*BacktestRecord, error)
	DeleteReport(ctx context.Context, id string) error

	// 健康检查
	Ping(ctx context.Context) error

	// 关闭连接
	Close() error
}

// BacktestRecord 回测报告记录，汇总列用于查询，完整结果保存在 ResultJSON
type BacktestRecord struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Symbol    string    `gorm:"index:idx_symbol_created;size:50" json:"symbol"`
	Interval  string    `gorm:"size:10" json:"interval"`
	Strategy  string    `gorm:"index;size:50" json:"strategy"`
	Params    string    `gorm:"type:text" json:"params"` // JSON
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Bars      int       `json:"bars"`

	InitialCapital float64 `json:"initial_capital"`
	FinalCapital   float64 `json:"final_capital"`
	TotalReturnPct float64 `json:"total_return_pct"`
	TotalTrades    int     `json:"total_trades"`
	WinRatePct     float64 `json:"win_rate_pct"`
	MaxDrawdownPct float64 `json:"max_drawdown_pct"`
	SharpeRatio    float64 `gorm:"index" json:"sharpe_ratio"`

	ResultJSON string    `gorm:"type:text" json:"-"`
	CreatedAt  time.Time `gorm:"index:idx_symbol_created" json:"created_at"`
}

// TableName 表名
func (BacktestRecord) TableName() string {
	return "backtest_reports"
}

// 排序字段
const (
	OrderByCreated = "created"
	OrderBySharpe  = "sharpe"
	OrderByReturn  = "return"
)

// ReportFilter 报告过滤器
type ReportFilter struct {
	Symbol    string
	Strategy  string
	StartTime *time.Time // 按 CreatedAt 过滤
	EndTime   *time.Time
	MinSharpe *float64
	OrderBy   string // created（默认）, sharpe, return
	Limit     int
	Offset    int
}
