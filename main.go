package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeforge/backtest"
	"tradeforge/config"
	"tradeforge/database"
	"tradeforge/i18n"
	"tradeforge/lock"
	"tradeforge/logger"
	"tradeforge/metrics"
	"tradeforge/storage"
	"tradeforge/web"
)

// Version 版本号，构建时通过 -ldflags "-X main.Version=..." 注入
var Version = "dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "-version", "--version":
			fmt.Printf("TradeForge Backtest Service\n")
			fmt.Printf("Version: %s\n", Version)
			os.Exit(0)
		case "backtest":
			os.Exit(runBacktestCommand(os.Args[2:]))
		}
	}

	configPath := "config.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	if err := serve(configPath); err != nil {
		logger.Error("❌ %v", err)
		logger.Close()
		os.Exit(1)
	}
}

// loadConfig 加载 .env 与配置文件，配置文件不存在时写出默认配置
func loadConfig(configPath string) (*config.Config, error) {
	if err := config.LoadEnvFile(); err != nil {
		log.Printf("[WARN] %v", err)
	}

	if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
		cfg := config.DefaultConfig()
		cfg.ApplyEnv()
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		if err := config.SaveConfig(cfg, configPath); err != nil {
			log.Printf("[WARN] 写出默认配置失败: %v", err)
		} else {
			log.Printf("[INFO] 配置文件不存在，已写出默认配置: %s", configPath)
		}
		return cfg, nil
	}

	return config.LoadConfig(configPath)
}

// applyAmbient 日志级别、日志目录、时区与语言
func applyAmbient(cfg *config.Config) error {
	logger.SetLevel(logger.ParseLogLevel(cfg.System.LogLevel))
	logger.SetLogDir(cfg.System.LogDir)
	loc, err := logger.LoadLocation(cfg.System.Timezone)
	if err != nil {
		return err
	}
	logger.SetLocation(loc)

	if err := i18n.Init(cfg.System.Language); err != nil {
		return fmt.Errorf("初始化 i18n 失败: %w", err)
	}
	return nil
}

func serve(configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("加载配置失败: %w", err)
	}
	if err := applyAmbient(cfg); err != nil {
		return err
	}

	logger.Info("🚀 TradeForge 回测服务启动...")
	logger.Info("📦 版本号: %s", Version)
	web.Version = Version

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 日志与系统监控持久化
	var logStore *storage.SQLiteStorage
	if cfg.Storage.Enabled {
		logStore, err = storage.NewSQLiteStorage(storage.Options{
			Path:          cfg.Storage.Path,
			BufferSize:    cfg.Storage.BufferSize,
			BatchSize:     cfg.Storage.BatchSize,
			FlushInterval: time.Duration(cfg.Storage.FlushInterval) * time.Second,
		})
		if err != nil {
			logger.Warn("⚠️ 初始化日志存储失败: %v，将继续运行但不保存日志到数据库", err)
			logStore = nil
		} else {
			logger.InitLogStorage(logStore.WriteLog)
			logger.Info("✅ 日志存储已初始化: %s", cfg.Storage.Path)
			go runRetention(ctx, cfg, logStore)
		}
	}

	// 回测报告数据库
	store, err := database.NewStore(&database.Config{
		Type:            cfg.Database.Type,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: time.Duration(cfg.Database.ConnMaxLifetime) * time.Second,
		LogLevel:        cfg.Database.LogLevel,
	})
	if err != nil {
		logger.Warn("⚠️ 报告数据库不可用: %v，回测结果将不会保存", err)
		store = nil
	}

	distLock, err := lock.NewDistributedLock(&lock.Config{
		Enabled:    cfg.DistributedLock.Enabled,
		Type:       cfg.DistributedLock.Type,
		Prefix:     cfg.DistributedLock.Prefix,
		DefaultTTL: time.Duration(cfg.DistributedLock.DefaultTTL) * time.Second,
		Redis: lock.RedisConfig{
			Addr:     cfg.DistributedLock.Redis.Addr,
			Password: cfg.DistributedLock.Redis.Password,
			DB:       cfg.DistributedLock.Redis.DB,
			PoolSize: cfg.DistributedLock.Redis.PoolSize,
		},
	})
	if err != nil {
		logger.Warn("⚠️ 分布式锁初始化失败: %v，回退到进程内锁", err)
		distLock = lock.NewLocalLock()
	}

	// 系统监控
	var systemCollector *metrics.SystemMetricsCollector
	if cfg.Metrics.Enabled {
		systemCollector = metrics.NewSystemMetricsCollector(time.Duration(cfg.Metrics.CollectInterval) * time.Second)
		if logStore != nil {
			systemCollector.SetSink(func(snap *metrics.SystemSnapshot) {
				if err := logStore.SaveSystemSnapshot(snap); err != nil {
					logger.Warn("⚠️ 保存系统监控数据失败: %v", err)
				}
			})
		}
		systemCollector.Start()
		logger.Info("✅ 系统监控已启动，采集间隔 %d 秒", cfg.Metrics.CollectInterval)
	}

	// 行情缓存与下载
	cache := backtest.NewCacheManager(cfg.Backtest.CacheDir)
	if cfg.Backtest.CacheMaxAgeDays > 0 {
		if n, err := cache.CleanOlderThan(time.Duration(cfg.Backtest.CacheMaxAgeDays) * 24 * time.Hour); err != nil {
			logger.Warn("⚠️ 清理过期缓存失败: %v", err)
		} else if n > 0 {
			logger.Info("🧹 已清理 %d 个过期行情缓存", n)
		}
	}
	source := backtest.NewBinanceSource(cfg.Binance.APIKey, cfg.Binance.SecretKey, cfg.Binance.Testnet)
	fetcher := backtest.NewDataFetcher(source, cache, cfg.Binance.RequestsPerSecond)

	// 配置热更新
	hotReloader := config.NewHotReloader(cfg)
	hub := web.NewHub()
	go hub.Run(ctx)

	hotReloader.RegisterCallback(func(oldConfig, newConfig *config.Config, changes []config.ConfigChange) error {
		if oldConfig.System.LogLevel != newConfig.System.LogLevel {
			logger.SetLevel(logger.ParseLogLevel(newConfig.System.LogLevel))
			logger.Info("🔧 日志级别已更新: %s", newConfig.System.LogLevel)
		}
		if oldConfig.System.Language != newConfig.System.Language {
			i18n.SetSystemLanguage(newConfig.System.Language)
			logger.Info("🔧 默认语言已更新: %s", i18n.GetSystemLanguage())
		}
		if systemCollector != nil && oldConfig.Metrics.CollectInterval != newConfig.Metrics.CollectInterval {
			logger.Info("ℹ️ 采集间隔将在重启后生效: %d 秒", newConfig.Metrics.CollectInterval)
		}
		return nil
	})

	backupManager := config.NewBackupManager("", 0)
	watcher, err := config.NewConfigWatcher(configPath, hotReloader, backupManager)
	if err != nil {
		logger.Warn("⚠️ 创建配置监控器失败: %v，配置热更新不可用", err)
	} else if err := watcher.Start(ctx); err != nil {
		logger.Warn("⚠️ 启动配置监控失败: %v", err)
		watcher = nil
	} else {
		go forwardConfigEvents(ctx, watcher, hub)
	}

	// Web 服务
	if cfg.Web.Enabled {
		if err := logger.InitWebLogger(); err != nil {
			logger.Warn("⚠️ %v", err)
		}
	}
	server := web.NewWebServer(cfg, &web.Services{
		Config:  hotReloader.GetCurrentConfig,
		Fetcher: fetcher,
		Cache:   cache,
		Reports: backtest.NewReportGenerator(cfg.Backtest.ReportDir),
		Store:   store,
		Lock:    distLock,
		Stats:   metrics.NewMetricsCollector(),
		System:  systemCollector,
		Logs:    logStore,
		Hub:     hub,
	})
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("启动 Web 服务失败: %w", err)
	}

	logger.Info("✅ 系统初始化完成，程序正在运行中...")
	logger.Info("💡 按 Ctrl+C 退出程序")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("🛑 收到退出信号，开始优雅关闭...")

	server.Stop()
	cancel()

	if watcher != nil {
		watcher.Stop()
	}
	if systemCollector != nil {
		systemCollector.Stop()
	}
	if err := distLock.Close(); err != nil {
		logger.Warn("⚠️ 关闭分布式锁失败: %v", err)
	}
	if store != nil {
		if err := store.Close(); err != nil {
			logger.Warn("⚠️ 关闭报告数据库失败: %v", err)
		}
	}

	logger.Info("✅ 系统已安全退出 TradeForge")

	logger.Close()
	if logStore != nil {
		if err := logStore.Close(); err != nil {
			log.Printf("[ERROR] 关闭日志存储失败: %v", err)
		}
	}
	return nil
}

// forwardConfigEvents 把配置变更与错误推送到 WebSocket
func forwardConfigEvents(ctx context.Context, watcher *config.ConfigWatcher, hub *web.Hub) {
	for {
		select {
		case <-ctx.Done():
			return
		case diff := <-watcher.GetUpdateChan():
			if diff == nil {
				continue
			}
			if diff.RequiresRestart {
				logger.Warn("⚠️ 配置变更需要重启才能完全生效")
			}
			// 只推送路径，变更值可能包含密钥
			paths := make([]string, 0, len(diff.Changes))
			for _, c := range diff.Changes {
				paths = append(paths, c.Path)
			}
			hub.Broadcast("config_reloaded", map[string]interface{}{
				"paths":            paths,
				"requires_restart": diff.RequiresRestart,
			})
		case err := <-watcher.GetErrorChan():
			logger.Warn("⚠️ 配置热更新失败: %v", err)
		}
	}
}

// runRetention 每天凌晨 2 点清理过期日志和系统监控数据
func runRetention(ctx context.Context, cfg *config.Config, logStore *storage.SQLiteStorage) {
	days := cfg.Storage.RetentionDays
	if days <= 0 {
		return
	}

	now := time.Now()
	next := time.Date(now.Year(), now.Month(), now.Day(), 2, 0, 0, 0, now.Location())
	if next.Before(now) {
		next = next.Add(24 * time.Hour)
	}
	timer := time.NewTimer(next.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		logger.Info("🧹 开始定期清理日志...")
		if n, err := logStore.CleanOldLogs(days); err != nil {
			logger.Warn("⚠️ 清理日志失败: %v", err)
		} else {
			logger.Info("✅ 已清理 %d 条日志（%d 天前）", n, days)
		}
		if n, err := logStore.CleanupSystemMetrics(time.Now().AddDate(0, 0, -days)); err != nil {
			logger.Warn("⚠️ 清理系统监控数据失败: %v", err)
		} else if n > 0 {
			logger.Info("✅ 已清理 %d 条系统监控数据", n)
		}
		if err := logStore.Vacuum(); err != nil {
			logger.Warn("⚠️ 数据库优化失败: %v", err)
		}

		timer.Reset(24 * time.Hour)
	}
}
