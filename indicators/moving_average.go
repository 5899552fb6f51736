package indicators

import (
	"fmt"
	"math"

	"tradeforge/market"
)

// SMA 简单移动平均
type SMA struct {
	window int
}

// NewSMA 创建简单移动平均指标
func NewSMA(window int) *SMA {
	return &SMA{window: window}
}

func (s *SMA) Name() string {
	return fmt.Sprintf("SMA(%d)", s.window)
}

func (s *SMA) Period() int {
	return s.window
}

func (s *SMA) Calculate(series market.PriceSeries) (IndicatorSeries, error) {
	return MovingAverage(series, s.window)
}

// MovingAverage 计算收盘价的简单移动平均
// 每个窗口独立求和，不使用滑动累加，保证与逐窗口重算的舍入结果完全一致
func MovingAverage(series market.PriceSeries, window int) (IndicatorSeries, error) {
	if window <= 0 {
		return IndicatorSeries{}, market.InvalidParam("window", window, "must be positive")
	}
	if window > len(series) {
		return IndicatorSeries{}, market.InvalidParam("window", window,
			fmt.Sprintf("exceeds series length %d", len(series)))
	}

	values := make([]float64, len(series))
	for i := range series {
		if i < window-1 {
			values[i] = math.NaN()
			continue
		}

		sum := 0.0
		for j := i - window + 1; j <= i; j++ {
			sum += series[j].Close
		}
		values[i] = sum / float64(window)
	}

	return IndicatorSeries{
		Name:   fmt.Sprintf("SMA(%d)", window),
		Window: window,
		Values: values,
	}, nil
}
