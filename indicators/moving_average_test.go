package indicators

import (
	"errors"
	"testing"
	"time"

	"tradeforge/market"
)

func buildSeries(closes ...float64) market.PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(market.PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = market.PricePoint{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return series
}

func TestMovingAverageValues(t *testing.T) {
	series := buildSeries(1, 2, 3, 4, 5, 6)

	ma, err := MovingAverage(series, 3)
	if err != nil {
		t.Fatalf("计算均线失败: %v", err)
	}

	expected := map[int]float64{2: 2, 3: 3, 4: 4, 5: 5}
	for i, want := range expected {
		got, ok := ma.At(i)
		if !ok || got != want {
			t.Errorf("下标 %d: 期望 %.2f, 得到 %.2f (defined=%v)", i, want, got, ok)
		}
	}
	if ma.FirstDefined() != 2 {
		t.Errorf("首个有效下标期望 2, 得到 %d", ma.FirstDefined())
	}
}

func TestMovingAverageWarmup(t *testing.T) {
	series := buildSeries(5, 3, 8, 1, 9, 2, 7, 4, 6, 10)

	for window := 1; window <= len(series); window++ {
		ma, err := MovingAverage(series, window)
		if err != nil {
			t.Fatalf("窗口 %d 计算失败: %v", window, err)
		}
		if ma.Len() != len(series) {
			t.Fatalf("窗口 %d: 长度期望 %d, 得到 %d", window, len(series), ma.Len())
		}
		for i := 0; i < len(series); i++ {
			if ma.Defined(i) != (i >= window-1) {
				t.Errorf("窗口 %d 下标 %d: defined=%v", window, i, ma.Defined(i))
			}
		}
	}
}

func TestMovingAverageMatchesNaiveSum(t *testing.T) {
	closes := []float64{0.1, 0.2, 0.3, 0.7, 1.1, 0.05, 3.3, 2.2, 0.9}
	series := buildSeries(closes...)

	ma, err := MovingAverage(series, 4)
	if err != nil {
		t.Fatal(err)
	}
	for i := 3; i < len(closes); i++ {
		sum := 0.0
		for j := i - 3; j <= i; j++ {
			sum += closes[j]
		}
		if want := sum / 4; ma.Values[i] != want {
			t.Errorf("下标 %d: 期望 %v, 得到 %v", i, want, ma.Values[i])
		}
	}
}

func TestMovingAverageDoesNotMutateInput(t *testing.T) {
	series := buildSeries(1, 2, 3, 4)
	before := series.Closes()

	if _, err := MovingAverage(series, 2); err != nil {
		t.Fatal(err)
	}
	if _, err := MovingAverage(series, 4); err != nil {
		t.Fatal(err)
	}
	for i, c := range series.Closes() {
		if c != before[i] {
			t.Errorf("输入被修改: 下标 %d", i)
		}
	}
}

func TestMovingAverageInvalidWindow(t *testing.T) {
	series := buildSeries(1, 2, 3)
	for _, window := range []int{0, -1, 4} {
		if _, err := MovingAverage(series, window); !errors.Is(err, market.ErrInvalidParameter) {
			t.Errorf("窗口 %d 应返回 ErrInvalidParameter, 得到 %v", window, err)
		}
	}
}

func TestSMAIndicator(t *testing.T) {
	var ind Indicator = NewSMA(2)
	if ind.Name() != "SMA(2)" || ind.Period() != 2 {
		t.Errorf("指标元信息错误: %s %d", ind.Name(), ind.Period())
	}
	out, err := ind.Calculate(buildSeries(2, 4, 6))
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := out.At(2); v != 5 {
		t.Errorf("期望 5, 得到 %v", v)
	}
}
