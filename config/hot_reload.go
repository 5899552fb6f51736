package config

import (
	"fmt"
	"sync"
)

// HotReloader 配置热更新器
type HotReloader struct {
	mu              sync.RWMutex
	currentConfig   *Config
	updateCallbacks []ConfigUpdateCallback
}

// ConfigUpdateCallback 配置更新回调函数类型
type ConfigUpdateCallback func(oldConfig, newConfig *Config, changes []ConfigChange) error

// NewHotReloader 创建热更新器
func NewHotReloader(initialConfig *Config) *HotReloader {
	return &HotReloader{currentConfig: initialConfig}
}

// RegisterCallback 注册配置更新回调
func (hr *HotReloader) RegisterCallback(callback ConfigUpdateCallback) {
	hr.mu.Lock()
	defer hr.mu.Unlock()
	hr.updateCallbacks = append(hr.updateCallbacks, callback)
}

// UpdateConfig 更新配置（热更新）
// 需要重启的变更不会生效，保留旧值，diff 中仍会列出以便提示
func (hr *HotReloader) UpdateConfig(newConfig *Config) (*ConfigDiff, error) {
	hr.mu.Lock()
	defer hr.mu.Unlock()

	diff := DiffConfig(hr.currentConfig, newConfig)
	if diff.Empty() {
		return diff, nil
	}

	applied := newConfig
	hotChanges := diff.Changes
	if diff.RequiresRestart {
		applied, hotChanges = hr.mergeHotReloadable(hr.currentConfig, newConfig, diff.Changes)
	}

	for _, callback := range hr.updateCallbacks {
		if err := callback(hr.currentConfig, applied, hotChanges); err != nil {
			return nil, fmt.Errorf("配置更新回调执行失败: %w", err)
		}
	}

	hr.currentConfig = applied
	return diff, nil
}

// mergeHotReloadable 以旧配置为基础，只拷贝可以热更新的段
func (hr *HotReloader) mergeHotReloadable(oldConfig, newConfig *Config, changes []ConfigChange) (*Config, []ConfigChange) {
	result := oldConfig.Clone()
	hot := make([]ConfigChange, 0, len(changes))

	for _, change := range changes {
		if change.RequiresRestart {
			continue
		}
		hot = append(hot, change)
		switch change.Path {
		case "system.log_level":
			result.System.LogLevel = newConfig.System.LogLevel
		case "system.language":
			result.System.Language = newConfig.System.Language
		case "metrics.collect_interval":
			result.Metrics.CollectInterval = newConfig.Metrics.CollectInterval
		case "binance.api_key", "binance.secret_key", "binance.requests_per_second":
			result.Binance.APIKey = newConfig.Binance.APIKey
			result.Binance.SecretKey = newConfig.Binance.SecretKey
			result.Binance.RequestsPerSecond = newConfig.Binance.RequestsPerSecond
		default:
			// backtest.* 整段替换
			result.Backtest = newConfig.Backtest
		}
	}
	return result, hot
}

// GetCurrentConfig 获取当前配置
func (hr *HotReloader) GetCurrentConfig() *Config {
	hr.mu.RLock()
	defer hr.mu.RUnlock()
	return hr.currentConfig
}
