// Package strategy 均线交叉（金叉/死叉）信号生成
package strategy

import "time"

// SignalKind 信号类型
type SignalKind string

const (
	Buy  SignalKind = "BUY"
	Sell SignalKind = "SELL"
)

// Signal 交易信号，生成后按下标严格递增，由回测执行器消费一次
type Signal struct {
	Index      int        `json:"index"`
	Timestamp  time.Time  `json:"timestamp"`
	Kind       SignalKind `json:"kind"`
	Price      float64    `json:"price"`
	Reason     string     `json:"reason"`
	StopLoss   *float64   `json:"stop_loss,omitempty"`   // 仅 BUY
	TakeProfit *float64   `json:"take_profit,omitempty"` // 仅 BUY

	PositionSizePct float64 `json:"position_size_pct,omitempty"` // 仅 BUY
	FastMA          float64 `json:"fast_ma"`
	SlowMA          float64 `json:"slow_ma"`
}

const (
	reasonGoldenCross = "Golden Cross (Fast SMA crossed above Slow SMA)"
	reasonDeathCross  = "Death Cross (Fast SMA crossed below Slow SMA)"
)
