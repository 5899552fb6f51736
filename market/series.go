// Package market 行情数据模型（OHLCV 价格序列）
package market

import (
	"fmt"
	"math"
	"time"
)

// PricePoint 单根 K 线（OHLCV），入库后不可变
type PricePoint struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// PriceSeries 按时间严格递增的价格序列
type PriceSeries []PricePoint

// Validate 校验序列：非空、时间戳严格递增、OHLC 为正的有限数
func (s PriceSeries) Validate() error {
	if len(s) == 0 {
		return &DataError{Have: 0, Need: 1}
	}
	for i, p := range s {
		for _, f := range []struct {
			name  string
			value float64
		}{{"open", p.Open}, {"high", p.High}, {"low", p.Low}, {"close", p.Close}} {
			if !ValidPrice(f.value) {
				return InvalidParam(fmt.Sprintf("series[%d].%s", i, f.name), f.value, "must be a positive finite number")
			}
		}
		if math.IsNaN(p.Volume) || math.IsInf(p.Volume, 0) || p.Volume < 0 {
			return InvalidParam(fmt.Sprintf("series[%d].volume", i), p.Volume, "must not be negative")
		}
		if i > 0 && !p.Timestamp.After(s[i-1].Timestamp) {
			return InvalidParam(fmt.Sprintf("series[%d].timestamp", i), p.Timestamp,
				"timestamps must be strictly increasing")
		}
	}
	return nil
}

// ValidPrice 价格必须为正的有限数
func ValidPrice(v float64) bool {
	return v > 0 && !math.IsInf(v, 0)
}

// Closes 返回收盘价副本
func (s PriceSeries) Closes() []float64 {
	closes := make([]float64, len(s))
	for i, p := range s {
		closes[i] = p.Close
	}
	return closes
}

// Start 序列起始时间
func (s PriceSeries) Start() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[0].Timestamp
}

// End 序列结束时间
func (s PriceSeries) End() time.Time {
	if len(s) == 0 {
		return time.Time{}
	}
	return s[len(s)-1].Timestamp
}

// Between 截取 [start, end] 区间内的数据（共享底层数组，调用方不得修改）
func (s PriceSeries) Between(start, end time.Time) PriceSeries {
	lo, hi := -1, -1
	for i, p := range s {
		if p.Timestamp.Before(start) || p.Timestamp.After(end) {
			continue
		}
		if lo < 0 {
			lo = i
		}
		hi = i
	}
	if lo < 0 {
		return PriceSeries{}
	}
	return s[lo : hi+1]
}
