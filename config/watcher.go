package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"tradeforge/logger"
)

// ConfigWatcher 配置文件监控器
type ConfigWatcher struct {
	configPath    string
	watcher       *fsnotify.Watcher
	hotReloader   *HotReloader
	backupManager *BackupManager

	mu          sync.Mutex
	isWatching  bool
	lastModTime time.Time
	lastData    []byte

	updateChan chan *ConfigDiff
	errorChan  chan error
}

// NewConfigWatcher 创建配置监控器，backupManager 可以为 nil
func NewConfigWatcher(configPath string, hotReloader *HotReloader, backupManager *BackupManager) (*ConfigWatcher, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("解析配置路径失败: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("创建文件监控器失败: %w", err)
	}

	cw := &ConfigWatcher{
		configPath:    absPath,
		watcher:       watcher,
		hotReloader:   hotReloader,
		backupManager: backupManager,
		updateChan:    make(chan *ConfigDiff, 1),
		errorChan:     make(chan error, 10),
	}
	if info, err := os.Stat(absPath); err == nil {
		cw.lastModTime = info.ModTime()
	}
	cw.lastData, _ = os.ReadFile(absPath)
	return cw, nil
}

// Start 开始监控配置文件（监控所在目录，编辑器常用 rename 方式保存）
func (cw *ConfigWatcher) Start(ctx context.Context) error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.isWatching {
		return fmt.Errorf("配置监控器已经在运行")
	}
	if err := cw.watcher.Add(filepath.Dir(cw.configPath)); err != nil {
		return fmt.Errorf("添加监控目录失败: %w", err)
	}
	cw.isWatching = true

	go cw.watchLoop(ctx)
	logger.Info("👀 开始监控配置文件: %s", cw.configPath)
	return nil
}

// Stop 停止监控
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.isWatching {
		return nil
	}
	cw.isWatching = false
	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if event.Name == cw.configPath && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// 等待写入完成
				time.Sleep(100 * time.Millisecond)
				cw.handleConfigChange()
			}

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.reportError(err)

		case <-ticker.C:
			// fsnotify 在部分文件系统上不可靠，按修改时间兜底
			cw.handleConfigChange()
		}
	}
}

// handleConfigChange 重新加载并热更新
func (cw *ConfigWatcher) handleConfigChange() {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	info, err := os.Stat(cw.configPath)
	if err != nil {
		cw.reportError(fmt.Errorf("获取文件信息失败: %w", err))
		return
	}
	if !info.ModTime().After(cw.lastModTime) {
		return
	}
	cw.lastModTime = info.ModTime()

	data, err := os.ReadFile(cw.configPath)
	if err != nil {
		cw.reportError(fmt.Errorf("读取配置文件失败: %w", err))
		return
	}
	newConfig, err := LoadConfigFromBytes(data)
	if err != nil {
		cw.reportError(fmt.Errorf("重新加载配置失败: %w", err))
		return
	}

	diff, err := cw.hotReloader.UpdateConfig(newConfig)
	if err != nil {
		cw.reportError(fmt.Errorf("配置热更新失败: %w", err))
		return
	}
	if diff.Empty() {
		return
	}

	if cw.backupManager != nil && len(cw.lastData) > 0 {
		if _, err := cw.backupManager.CreateBackup(cw.lastData); err != nil {
			logger.Warn("⚠️ 备份旧配置失败: %v", err)
		}
	}
	cw.lastData = data

	logger.Info("🔄 配置已重新加载，%d 项变更", len(diff.Changes))
	if diff.RequiresRestart {
		logger.Warn("⚠️ 部分配置变更需要重启才能生效")
	}

	select {
	case cw.updateChan <- diff:
	default:
	}
}

func (cw *ConfigWatcher) reportError(err error) {
	select {
	case cw.errorChan <- err:
	default:
		logger.Error("❌ %v", err)
	}
}

// GetUpdateChan 获取配置变更通道
func (cw *ConfigWatcher) GetUpdateChan() <-chan *ConfigDiff {
	return cw.updateChan
}

// GetErrorChan 获取错误通道
func (cw *ConfigWatcher) GetErrorChan() <-chan error {
	return cw.errorChan
}
