package backtest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"tradeforge/logger"
	"tradeforge/market"
)

// ErrCacheMiss 缓存不存在
var ErrCacheMiss = errors.New("cache miss")

const cacheIndexFile = "cache_index.json"

// CacheInfo 缓存信息
type CacheInfo struct {
	Name     string    `json:"name"`
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Candles  int       `json:"candles"`
	SizeMB   float64   `json:"size_mb"`
	Created  time.Time `json:"created"`
}

// CacheStats 缓存统计
type CacheStats struct {
	FileCount int     `json:"file_count"`
	TotalSize int64   `json:"total_size"`
	SizeMB    float64 `json:"size_mb"`
}

// CacheManager 历史K线 CSV 缓存，附带 JSON 索引
type CacheManager struct {
	dir string
	mu  sync.Mutex
}

// NewCacheManager 创建缓存管理器，dir 为空时使用 backtest/cache
func NewCacheManager(dir string) *CacheManager {
	if dir == "" {
		dir = filepath.Join("backtest", "cache")
	}
	return &CacheManager{dir: dir}
}

const cacheKeyTimeLayout = "20060102T150405"

// CacheKey 生成缓存键，格式: BTCUSDT_1h_20230101T000000_20230630T000000
func CacheKey(symbol, interval string, start, end time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s",
		strings.ToUpper(symbol), interval,
		start.UTC().Format(cacheKeyTimeLayout), end.UTC().Format(cacheKeyTimeLayout))
}

func validKey(key string) error {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return market.InvalidParam("cache_key", key, "invalid cache key")
	}
	return nil
}

func (m *CacheManager) csvPath(key string) string {
	return filepath.Join(m.dir, key+".csv")
}

// Load 从 CSV 加载
func (m *CacheManager) Load(key string) (market.PriceSeries, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}

	file, err := os.Open(m.csvPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("打开缓存文件失败: %w", err)
	}
	defer file.Close()

	series, err := market.ReadCSV(file)
	if err != nil {
		return nil, fmt.Errorf("解析缓存 %s 失败: %w", key, err)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("缓存文件为空: %s", key)
	}
	return series, nil
}

// Save 保存到 CSV 并更新索引
func (m *CacheManager) Save(key, symbol, interval string, series market.PriceSeries) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("创建缓存目录失败: %w", err)
	}

	file, err := os.Create(m.csvPath(key))
	if err != nil {
		return fmt.Errorf("创建缓存文件失败: %w", err)
	}
	if err := market.WriteCSV(file, series); err != nil {
		file.Close()
		return fmt.Errorf("写入缓存失败: %w", err)
	}
	if err := file.Close(); err != nil {
		return err
	}

	var size int64
	if info, err := os.Stat(m.csvPath(key)); err == nil {
		size = info.Size()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndex()
	if err != nil {
		logger.Warn("⚠️ 缓存索引损坏，重建: %v", err)
		index = make(map[string]CacheInfo)
	}
	index[key] = CacheInfo{
		Name:     key,
		Symbol:   symbol,
		Interval: interval,
		Start:    series.Start(),
		End:      series.End(),
		Candles:  len(series),
		SizeMB:   float64(size) / 1024 / 1024,
		Created:  time.Now(),
	}
	return m.writeIndex(index)
}

func (m *CacheManager) readIndex() (map[string]CacheInfo, error) {
	index := make(map[string]CacheInfo)
	data, err := os.ReadFile(filepath.Join(m.dir, cacheIndexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return index, nil
		}
		return nil, fmt.Errorf("读取缓存索引失败: %w", err)
	}
	if err := json.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("解析缓存索引失败: %w", err)
	}
	return index, nil
}

func (m *CacheManager) writeIndex(index map[string]CacheInfo) error {
	data, err := json.MarshalIndent(index, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.dir, cacheIndexFile), data, 0644)
}

// List 列出所有缓存，按名称排序
func (m *CacheManager) List() ([]CacheInfo, error) {
	m.mu.Lock()
	index, err := m.readIndex()
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	caches := make([]CacheInfo, 0, len(index))
	for name, entry := range index {
		entry.Name = name
		caches = append(caches, entry)
	}
	sort.Slice(caches, func(i, j int) bool { return caches[i].Name < caches[j].Name })
	return caches, nil
}

// Delete 删除指定缓存
func (m *CacheManager) Delete(key string) error {
	if err := validKey(key); err != nil {
		return err
	}
	if err := os.Remove(m.csvPath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("删除缓存文件失败: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	index, err := m.readIndex()
	if err != nil {
		return err
	}
	if _, ok := index[key]; !ok {
		return nil
	}
	delete(index, key)
	return m.writeIndex(index)
}

// Clear 删除缓存目录下的 CSV 文件与索引，目录本身及其他文件保留
func (m *CacheManager) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	files, err := filepath.Glob(filepath.Join(m.dir, "*.csv"))
	if err != nil {
		return fmt.Errorf("读取缓存目录失败: %w", err)
	}
	files = append(files, filepath.Join(m.dir, cacheIndexFile))
	for _, file := range files {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("清理缓存失败: %w", err)
		}
	}
	return nil
}

// Stats 获取缓存统计
func (m *CacheManager) Stats() (CacheStats, error) {
	files, err := filepath.Glob(filepath.Join(m.dir, "*.csv"))
	if err != nil {
		return CacheStats{}, fmt.Errorf("读取缓存目录失败: %w", err)
	}

	var totalSize int64
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		totalSize += info.Size()
	}

	return CacheStats{
		FileCount: len(files),
		TotalSize: totalSize,
		SizeMB:    float64(totalSize) / 1024 / 1024,
	}, nil
}

// CleanOlderThan 清理创建时间早于 maxAge 的缓存，返回删除数量
func (m *CacheManager) CleanOlderThan(maxAge time.Duration) (int, error) {
	caches, err := m.List()
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0
	for _, c := range caches {
		if !c.Created.Before(cutoff) {
			continue
		}
		if err := m.Delete(c.Name); err != nil {
			return deleted, fmt.Errorf("删除过期缓存 %s 失败: %w", c.Name, err)
		}
		deleted++
	}

	if deleted > 0 {
		logger.Info("✅ 已清理 %d 个过期缓存", deleted)
	}
	return deleted, nil
}
