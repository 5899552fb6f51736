package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

var csvHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// ReadCSV 读取 CSV 价格序列（timestamp 为毫秒时间戳，首行为表头）
func ReadCSV(r io.Reader) (PriceSeries, error) {
	reader := csv.NewReader(r)
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("读取 CSV 失败: %w", err)
	}

	if len(records) < 2 {
		return nil, fmt.Errorf("CSV 文件为空或格式错误")
	}

	// 跳过表头
	series := make(PriceSeries, 0, len(records)-1)
	for i := 1; i < len(records); i++ {
		point, err := parseCSVRecord(records[i])
		if err != nil {
			return nil, fmt.Errorf("解析第 %d 行失败: %w", i, err)
		}
		series = append(series, point)
	}

	return series, nil
}

// parseCSVRecord 解析单行记录
func parseCSVRecord(record []string) (PricePoint, error) {
	if len(record) < 6 {
		return PricePoint{}, fmt.Errorf("记录字段数量错误: 期望6个，实际%d个", len(record))
	}

	ms, err := strconv.ParseInt(record[0], 10, 64)
	if err != nil {
		return PricePoint{}, fmt.Errorf("解析 timestamp 失败: %w", err)
	}

	values := make([]float64, 5)
	for i := range values {
		v, err := strconv.ParseFloat(record[i+1], 64)
		if err != nil {
			return PricePoint{}, fmt.Errorf("解析 %s 失败: %w", csvHeader[i+1], err)
		}
		values[i] = v
	}

	return PricePoint{
		Timestamp: time.UnixMilli(ms).UTC(),
		Open:      values[0],
		High:      values[1],
		Low:       values[2],
		Close:     values[3],
		Volume:    values[4],
	}, nil
}

// WriteCSV 写入 CSV 价格序列。浮点数使用最短可还原表示，读回后逐位相等
func WriteCSV(w io.Writer, series PriceSeries) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("写入表头失败: %w", err)
	}

	for _, p := range series {
		record := []string{
			strconv.FormatInt(p.Timestamp.UnixMilli(), 10),
			strconv.FormatFloat(p.Open, 'g', -1, 64),
			strconv.FormatFloat(p.High, 'g', -1, 64),
			strconv.FormatFloat(p.Low, 'g', -1, 64),
			strconv.FormatFloat(p.Close, 'g', -1, 64),
			strconv.FormatFloat(p.Volume, 'g', -1, 64),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("写入数据失败: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}
