// Package indicators 技术指标库
// 指标结果与价格序列逐位对齐，预热期内的值为 NaN（未定义）
package indicators

import (
	"math"

	"tradeforge/market"
)

// Indicator 指标接口
type Indicator interface {
	// Name 指标名称
	Name() string
	// Period 计算所需的最小周期数
	Period() int
	// Calculate 计算指标值（不修改输入）
	Calculate(series market.PriceSeries) (IndicatorSeries, error)
}

// IndicatorSeries 指标序列
type IndicatorSeries struct {
	Name   string    `json:"name"`
	Window int       `json:"window"`
	Values []float64 `json:"values"`
}

// Len 序列长度（等于价格序列长度）
func (s IndicatorSeries) Len() int {
	return len(s.Values)
}

// Defined 第 i 个值是否已定义
func (s IndicatorSeries) Defined(i int) bool {
	return i >= 0 && i < len(s.Values) && !math.IsNaN(s.Values[i])
}

// At 返回第 i 个值及其是否已定义
func (s IndicatorSeries) At(i int) (float64, bool) {
	if !s.Defined(i) {
		return math.NaN(), false
	}
	return s.Values[i], true
}

// FirstDefined 第一个已定义值的下标，全部未定义时返回 -1
func (s IndicatorSeries) FirstDefined() int {
	for i := range s.Values {
		if !math.IsNaN(s.Values[i]) {
			return i
		}
	}
	return -1
}
