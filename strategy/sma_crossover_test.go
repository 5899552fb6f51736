package strategy

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
		series[i] = market.PricePoint{Timestamp: start.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c, Volume: 1}
	}
	return series
}

func linear(n int, start, step float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = start + step*float64(i)
	}
	return closes
}

func testParams(fast, slow int) Params {
	p := DefaultParams()
	p.FastWindow = fast
	p.SlowWindow = slow
	return p
}

func TestRisingSeriesSingleGoldenCross(t *testing.T) {
	series := buildSeries(linear(60, 100, 1)...)
	p := testParams(5, 20)

	signals, err := GenerateSignals(series, p)
	if err != nil {
		t.Fatalf("生成信号失败: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("期望 1 个信号, 得到 %d: %+v", len(signals), signals)
	}

	sig := signals[0]
	if sig.Kind != Buy || sig.Index != 19 {
		t.Errorf("期望 index=19 的 BUY, 得到 %s@%d", sig.Kind, sig.Index)
	}
	if sig.Price != 119 {
		t.Errorf("信号价格期望 119, 得到 %v", sig.Price)
	}
	if sig.StopLoss == nil || *sig.StopLoss != 119*(1-p.StopLossPct/100) {
		t.Errorf("止损价错误: %v", sig.StopLoss)
	}
	if sig.TakeProfit == nil || *sig.TakeProfit != 119*(1+p.TakeProfitPct/100) {
		t.Errorf("止盈价错误: %v", sig.TakeProfit)
	}
	if sig.FastMA <= sig.SlowMA {
		t.Errorf("金叉时快线应在慢线上方: fast=%v slow=%v", sig.FastMA, sig.SlowMA)
	}
}

func TestFallingSeriesNoSignal(t *testing.T) {
	signals, err := GenerateSignals(buildSeries(linear(40, 200, -1)...), testParams(5, 20))
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 0 {
		t.Errorf("单边下跌不应产生信号, 得到 %+v", signals)
	}
}

func TestFlatSeriesNoSignal(t *testing.T) {
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 100
	}
	signals, err := GenerateSignals(buildSeries(closes...), testParams(5, 20))
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) != 0 {
		t.Errorf("横盘不应产生信号, 得到 %+v", signals)
	}
}

func TestCrossThroughEquality(t *testing.T) {
	// fast=1, slow=2: 方向等价于收盘价相对上一根的涨跌，平盘为 0
	series := buildSeries(10, 9, 9, 10, 10, 10, 9, 8, 8, 8, 7)

	signals, err := GenerateSignals(series, testParams(1, 2))
	if err != nil {
		t.Fatal(err)
	}

	want := []struct {
		kind  SignalKind
		index int
	}{{Buy, 3}, {Sell, 6}}
	if len(signals) != len(want) {
		t.Fatalf("期望 %d 个信号, 得到 %d: %+v", len(want), len(signals), signals)
	}
	for i, w := range want {
		if signals[i].Kind != w.kind || signals[i].Index != w.index {
			t.Errorf("第 %d 个信号: 期望 %s@%d, 得到 %s@%d", i, w.kind, w.index, signals[i].Kind, signals[i].Index)
		}
	}
	if signals[1].StopLoss != nil || signals[1].TakeProfit != nil {
		t.Error("SELL 信号不应带止损止盈")
	}
}

func TestSignalOrderingAndAlternation(t *testing.T) {
	closes := make([]float64, 0, 200)
	for cycle := 0; cycle < 5; cycle++ {
		closes = append(closes, linear(20, 100, 2)...)
		closes = append(closes, linear(20, 140, -2)...)
	}
	signals, err := GenerateSignals(buildSeries(closes...), testParams(3, 8))
	if err != nil {
		t.Fatal(err)
	}
	if len(signals) < 4 {
		t.Fatalf("震荡行情应产生多个信号, 得到 %d", len(signals))
	}
	for i := 1; i < len(signals); i++ {
		if signals[i].Index <= signals[i-1].Index {
			t.Errorf("信号下标未严格递增: %d -> %d", signals[i-1].Index, signals[i].Index)
		}
		if signals[i].Kind == signals[i-1].Kind {
			t.Errorf("信号类型应交替出现: 第 %d 个与前一个均为 %s", i, signals[i].Kind)
		}
	}
}

func TestGenerateSignalsErrors(t *testing.T) {
	series := buildSeries(linear(30, 100, 1)...)

	cases := []struct {
		name string
		p    Params
		s    market.PriceSeries
		want error
	}{
		{"fast>=slow", testParams(20, 5), series, market.ErrInvalidParameter},
		{"fast==slow", testParams(5, 5), series, market.ErrInvalidParameter},
		{"zero fast", testParams(0, 5), series, market.ErrInvalidParameter},
		{"short series", testParams(5, 20), buildSeries(linear(10, 100, 1)...), market.ErrInsufficientData},
	}

	for _, c := range cases {
		if _, err := GenerateSignals(c.s, c.p); !errors.Is(err, c.want) {
			t.Errorf("%s: 期望 %v, 得到 %v", c.name, c.want, err)
		}
	}
}

func TestCurrentSignal(t *testing.T) {
	p := testParams(5, 20)

	kind, ok, err := CurrentSignal(buildSeries(linear(20, 100, 1)...), p)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || kind != Buy {
		t.Errorf("最后一根应为 BUY, 得到 %q ok=%v", kind, ok)
	}

	_, ok, err = CurrentSignal(buildSeries(linear(25, 100, 1)...), p)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("最后一根没有信号时 ok 应为 false")
	}
}

func TestParamsValidate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("默认参数应有效: %v", err)
	}

	mutations := map[string]func(*Params){
		"capital":        func(p *Params) { p.InitialCapital = 0 },
		"commission":     func(p *Params) { p.CommissionRate = -0.01 },
		"position zero":  func(p *Params) { p.PositionSizePct = 0 },
		"position > 100": func(p *Params) { p.PositionSizePct = 100.5 },
		"stop loss":      func(p *Params) { p.StopLossPct = -1 },
	}
	for name, mutate := range mutations {
		p := DefaultParams()
		mutate(&p)
		if err := p.Validate(); !errors.Is(err, market.ErrInvalidParameter) {
			t.Errorf("%s: 期望 ErrInvalidParameter, 得到 %v", name, err)
		}
	}
}
