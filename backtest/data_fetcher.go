package backtest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2"
	"golang.org/x/time/rate"

	"tradeforge/logger"
	"tradeforge/market"
	"tradeforge/metrics"
)

// klineBatchLimit Binance 单次最多返回 1000 根
const klineBatchLimit = 1000

// KlineSource K线数据源
type KlineSource interface {
	Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*binance.Kline, error)
}

// binanceSource Binance 现货K线
type binanceSource struct {
	client *binance.Client
}

// NewBinanceSource 创建 Binance 现货数据源，历史K线无需 API Key
func NewBinanceSource(apiKey, secretKey string, testnet bool) KlineSource {
	binance.UseTestnet = testnet
	if testnet {
		logger.Info("🌐 [Binance] 使用测试网模式")
	}
	return &binanceSource{client: binance.NewClient(apiKey, secretKey)}
}

func (s *binanceSource) Klines(ctx context.Context, symbol, interval string, startMs, endMs int64, limit int) ([]*binance.Kline, error) {
	klines, err := s.client.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		StartTime(startMs).
		EndTime(endMs).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取历史K线失败: %w", err)
	}
	return klines, nil
}

// DataFetcher 历史数据获取（优先缓存）
type DataFetcher struct {
	source  KlineSource
	cache   *CacheManager
	limiter *rate.Limiter
}

// NewDataFetcher 创建数据获取器，requestsPerSecond <= 0 时默认每秒 5 次
func NewDataFetcher(source KlineSource, cache *CacheManager, requestsPerSecond float64) *DataFetcher {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &DataFetcher{
		source:  source,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// GetHistoricalData 获取 [start, end] 区间的K线，命中缓存时不访问网络
func (f *DataFetcher) GetHistoricalData(ctx context.Context, symbol, interval string, start, end time.Time) (market.PriceSeries, error) {
	if !end.After(start) {
		return nil, market.InvalidParam("end", end, "must be after start")
	}
	if _, err := IntervalDuration(interval); err != nil {
		return nil, err
	}

	symbol = strings.ToUpper(symbol)
	cacheKey := CacheKey(symbol, interval, start, end)
	if f.cache != nil {
		series, err := f.cache.Load(cacheKey)
		if err == nil {
			logger.Info("✅ 从缓存加载: %s (%d 根K线)", cacheKey, len(series))
			metrics.GetPrometheusMetrics().RecordMarketDataFetch("cache")
			return series, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			logger.Warn("⚠️ 读取缓存失败，重新下载: %v", err)
		}
	}
	if f.source == nil {
		return nil, fmt.Errorf("没有可用的数据源: %s", cacheKey)
	}

	logger.Info("⬇️ 从 Binance 下载: %s %s (%s 至 %s)",
		symbol, interval, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))

	series, err := f.download(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, &market.DataError{Have: 0, Need: 1}
	}
	metrics.GetPrometheusMetrics().RecordMarketDataFetch("binance")

	if f.cache != nil {
		if err := f.cache.Save(cacheKey, symbol, interval, series); err != nil {
			logger.Warn("⚠️ 缓存保存失败: %v", err)
		} else {
			logger.Info("💾 已缓存: %s", cacheKey)
		}
	}

	return series, nil
}

// download 分批下载，每批之间由限流器控制节奏
func (f *DataFetcher) download(ctx context.Context, symbol, interval string, start, end time.Time) (market.PriceSeries, error) {
	all := make(market.PriceSeries, 0)
	cursor := start.UnixMilli()
	endMs := end.UnixMilli()
	batch := 0

	for cursor <= endMs {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		batch++

		klines, err := f.source.Klines(ctx, symbol, interval, cursor, endMs, klineBatchLimit)
		if err != nil {
			return nil, fmt.Errorf("获取第 %d 批数据失败: %w", batch, err)
		}
		if len(klines) == 0 {
			break
		}

		points, err := KlinesToSeries(klines)
		if err != nil {
			return nil, err
		}
		for _, p := range points {
			ms := p.Timestamp.UnixMilli()
			if ms < cursor || ms > endMs {
				continue
			}
			all = append(all, p)
		}

		next := klines[len(klines)-1].OpenTime + 1
		if next <= cursor {
			break
		}
		cursor = next

		logger.Debug("📊 下载进度: 第 %d 批, 已获取 %d 根K线", batch, len(all))
		if len(klines) < klineBatchLimit {
			break
		}
	}

	logger.Info("✅ 下载完成: 共 %d 根K线", len(all))
	return all, nil
}

// KlinesToSeries 将 Binance K线转换为价格序列
func KlinesToSeries(klines []*binance.Kline) (market.PriceSeries, error) {
	series := make(market.PriceSeries, 0, len(klines))
	for i, k := range klines {
		var vals [5]float64
		for j, raw := range []string{k.Open, k.High, k.Low, k.Close, k.Volume} {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("解析第 %d 根K线失败: %w", i, err)
			}
			vals[j] = v
		}
		series = append(series, market.PricePoint{
			Timestamp: time.UnixMilli(k.OpenTime).UTC(),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return series, nil
}

// IntervalDuration K线周期对应的时长
func IntervalDuration(interval string) (time.Duration, error) {
	switch interval {
	case "1m":
		return time.Minute, nil
	case "3m":
		return 3 * time.Minute, nil
	case "5m":
		return 5 * time.Minute, nil
	case "15m":
		return 15 * time.Minute, nil
	case "30m":
		return 30 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "2h":
		return 2 * time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "6h":
		return 6 * time.Hour, nil
	case "8h":
		return 8 * time.Hour, nil
	case "12h":
		return 12 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	case "3d":
		return 3 * 24 * time.Hour, nil
	case "1w":
		return 7 * 24 * time.Hour, nil
	default:
		return 0, market.InvalidParam("interval", interval, "unsupported interval")
	}
}
