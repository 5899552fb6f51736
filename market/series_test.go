package market

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"
)

func buildSeries(closes ...float64) PriceSeries {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	series := make(PriceSeries, len(closes))
	for i, c := range closes {
		series[i] = PricePoint{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c * 1.01,
			Low:       c * 0.99,
			Close:     c,
			Volume:    1000 + float64(i),
		}
	}
	return series
}

func TestValidate(t *testing.T) {
	if err := buildSeries(1, 2, 3).Validate(); err != nil {
		t.Fatalf("有效序列验证失败: %v", err)
	}

	if err := (PriceSeries{}).Validate(); !errors.Is(err, ErrInsufficientData) {
		t.Errorf("空序列应返回 ErrInsufficientData, 得到 %v", err)
	}

	dup := buildSeries(1, 2, 3)
	dup[2].Timestamp = dup[1].Timestamp
	if err := dup.Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("重复时间戳应返回 ErrInvalidParameter, 得到 %v", err)
	}

	nan := buildSeries(1, 2, 3)
	nan[1].Close = math.NaN()
	if err := nan.Validate(); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("NaN 收盘价应返回 ErrInvalidParameter, 得到 %v", err)
	}

	tests := []struct {
		name  string
		patch func(p *PricePoint)
	}{
		{"zero close", func(p *PricePoint) { p.Close = 0 }},
		{"negative close", func(p *PricePoint) { p.Close = -1 }},
		{"zero open", func(p *PricePoint) { p.Open = 0 }},
		{"inf high", func(p *PricePoint) { p.High = math.Inf(1) }},
		{"nan low", func(p *PricePoint) { p.Low = math.NaN() }},
		{"negative volume", func(p *PricePoint) { p.Volume = -5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := buildSeries(1, 2, 3)
			tt.patch(&s[1])
			if err := s.Validate(); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("期望 ErrInvalidParameter, 得到 %v", err)
			}
		})
	}
}

func TestParameterErrorUnwrap(t *testing.T) {
	err := InvalidParam("fast_window", 0, "must be positive")
	var pe *ParameterError
	if !errors.As(err, &pe) || pe.Field != "fast_window" {
		t.Fatalf("errors.As 失败: %v", err)
	}
	if errors.Is(err, ErrInsufficientData) {
		t.Error("参数错误不应匹配 ErrInsufficientData")
	}
}

func TestBetween(t *testing.T) {
	s := buildSeries(1, 2, 3, 4, 5)
	sub := s.Between(s[1].Timestamp, s[3].Timestamp)
	if len(sub) != 3 || sub[0].Close != 2 || sub[2].Close != 4 {
		t.Errorf("区间截取错误: %+v", sub)
	}
	if got := s.Between(s[4].Timestamp.Add(time.Hour), s[4].Timestamp.Add(2*time.Hour)); len(got) != 0 {
		t.Errorf("区间外应返回空序列, 得到 %d 条", len(got))
	}
}

func TestCSVRoundTrip(t *testing.T) {
	s := buildSeries(100.1, 100.2, 99.97, 101.333333333)

	var buf bytes.Buffer
	if err := WriteCSV(&buf, s); err != nil {
		t.Fatalf("写入 CSV 失败: %v", err)
	}

	got, err := ReadCSV(&buf)
	if err != nil {
		t.Fatalf("读取 CSV 失败: %v", err)
	}
	if len(got) != len(s) {
		t.Fatalf("期望 %d 条, 得到 %d 条", len(s), len(got))
	}
	for i := range s {
		if !got[i].Timestamp.Equal(s[i].Timestamp) || got[i].Close != s[i].Close || got[i].High != s[i].High {
			t.Errorf("第 %d 条不一致: 期望 %+v, 得到 %+v", i, s[i], got[i])
		}
	}
}

func TestReadCSVBadRecord(t *testing.T) {
	data := "timestamp,open,high,low,close,volume\n1704067200000,1,2,0.5,abc,10\n"
	if _, err := ReadCSV(bytes.NewBufferString(data)); err == nil {
		t.Error("非法数值应该报错")
	}
}
