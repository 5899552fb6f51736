package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"tradeforge/logger"
	"tradeforge/strategy"
)

// Config 服务配置
type Config struct {
	App struct {
		Name string `yaml:"name"` // 实例名称，默认 tradeforge
		Env  string `yaml:"env"`  // 运行环境: dev, prod
	} `yaml:"app"`

	System struct {
		LogLevel string `yaml:"log_level"`
		LogDir   string `yaml:"log_dir"`  // 日志目录，默认 logs
		Timezone string `yaml:"timezone"` // 时区，如 "Asia/Shanghai"
		Language string `yaml:"language"` // 默认语言: zh-CN, en-US, id-ID
	} `yaml:"system"`

	// 数据库配置（支持 SQLite、PostgreSQL、MySQL），保存回测报告
	Database struct {
		Type            string `yaml:"type"`              // sqlite, postgres, mysql，默认 sqlite
		DSN             string `yaml:"dsn"`               // 默认 ./data/tradeforge.db
		MaxOpenConns    int    `yaml:"max_open_conns"`    // 默认 20
		MaxIdleConns    int    `yaml:"max_idle_conns"`    // 默认 5
		ConnMaxLifetime int    `yaml:"conn_max_lifetime"` // 秒，默认 3600
		LogLevel        string `yaml:"log_level"`         // silent, error, warn, info，默认 error
	} `yaml:"database"`

	// 日志持久化（SQLite）
	Storage struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`           // 默认 ./data/logs.db
		BufferSize    int    `yaml:"buffer_size"`    // 默认 1000
		BatchSize     int    `yaml:"batch_size"`     // 默认 100
		FlushInterval int    `yaml:"flush_interval"` // 秒，默认 5
		RetentionDays int    `yaml:"retention_days"` // 默认 30，0 表示不清理
	} `yaml:"storage"`

	// 分布式锁：相同参数的回测请求在多实例间串行
	DistributedLock struct {
		Enabled    bool   `yaml:"enabled"`
		Type       string `yaml:"type"`        // 目前只支持 redis
		Prefix     string `yaml:"prefix"`      // 默认 "tradeforge:lock:"
		DefaultTTL int    `yaml:"default_ttl"` // 秒，默认 30

		Redis struct {
			Addr     string `yaml:"addr"` // 默认 localhost:6379
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			PoolSize int    `yaml:"pool_size"` // 默认 10
		} `yaml:"redis"`
	} `yaml:"distributed_lock"`

	// Web 服务配置
	Web struct {
		Enabled      bool   `yaml:"enabled"`
		Host         string `yaml:"host"`          // 默认 0.0.0.0
		Port         int    `yaml:"port"`          // 默认 8080
		ReadTimeout  int    `yaml:"read_timeout"`  // 秒，默认 15
		WriteTimeout int    `yaml:"write_timeout"` // 秒，默认 60
	} `yaml:"web"`

	// 监控配置
	Metrics struct {
		Enabled         bool `yaml:"enabled"`
		CollectInterval int  `yaml:"collect_interval"` // 秒，默认 15
	} `yaml:"metrics"`

	// 回测配置
	Backtest struct {
		Strategy        strategy.Params `yaml:"strategy"`           // 默认策略参数
		Symbol          string          `yaml:"symbol"`             // 默认交易对
		Interval        string          `yaml:"interval"`           // 默认K线周期，默认 1d
		ReportDir       string          `yaml:"report_dir"`         // 默认 ./backtest/reports
		CacheDir        string          `yaml:"cache_dir"`          // 默认 ./backtest/cache
		CacheMaxAgeDays int             `yaml:"cache_max_age_days"` // 0 表示不清理
		Concurrency     int             `yaml:"concurrency"`        // 参数扫描并发数，默认 4
		MaxSweepSize    int             `yaml:"max_sweep_size"`     // 单次参数扫描上限，默认 200
		SaveReports     bool            `yaml:"save_reports"`       // 是否写出 Markdown 报告
	} `yaml:"backtest"`

	// Binance 行情下载（只读公开数据，无需下单权限）
	Binance struct {
		APIKey            string  `yaml:"api_key"`
		SecretKey         string  `yaml:"secret_key"`
		Testnet           bool    `yaml:"testnet"`
		RequestsPerSecond float64 `yaml:"requests_per_second"` // 默认 5
	} `yaml:"binance"`
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Web.Enabled = true
	cfg.Metrics.Enabled = true
	cfg.Backtest.Strategy = strategy.DefaultParams()
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return cfg
}

// LoadEnvFile 加载 .env 文件，文件不存在时忽略
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	existing := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("加载 .env 失败: %w", err)
	}
	return nil
}

// LoadConfig 加载配置文件，环境变量覆盖敏感项
func LoadConfig(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	return LoadConfigFromBytes(data)
}

// LoadConfigFromBytes 从字节数组加载配置
func LoadConfigFromBytes(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	return &cfg, nil
}

// SaveConfig 保存配置到文件
func SaveConfig(cfg *Config, configPath string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("配置验证失败: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}

	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}

	return nil
}

// ApplyEnv 用环境变量覆盖配置
func (c *Config) ApplyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}

	setString("TRADEFORGE_LOG_LEVEL", &c.System.LogLevel)
	setString("TRADEFORGE_DB_TYPE", &c.Database.Type)
	setString("TRADEFORGE_DB_DSN", &c.Database.DSN)
	setString("TRADEFORGE_REDIS_ADDR", &c.DistributedLock.Redis.Addr)
	setString("TRADEFORGE_REDIS_PASSWORD", &c.DistributedLock.Redis.Password)
	setString("BINANCE_API_KEY", &c.Binance.APIKey)
	setString("BINANCE_SECRET_KEY", &c.Binance.SecretKey)

	if v := os.Getenv("TRADEFORGE_WEB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Web.Port = port
		} else {
			logger.Warn("⚠️ 忽略非法的 TRADEFORGE_WEB_PORT: %s", v)
		}
	}
}

// Validate 验证配置并填充默认值
func (c *Config) Validate() error {
	if c.App.Name == "" {
		c.App.Name = "tradeforge"
	}

	// 系统
	if c.System.LogLevel == "" {
		c.System.LogLevel = "INFO"
	}
	if c.System.LogDir == "" {
		c.System.LogDir = "logs"
	}
	if c.System.Timezone != "" {
		if _, err := logger.LoadLocation(c.System.Timezone); err != nil {
			return fmt.Errorf("无效的时区 %s: %w", c.System.Timezone, err)
		}
	}
	if c.System.Language == "" {
		c.System.Language = "zh-CN"
	}

	// 数据库
	c.Database.Type = strings.ToLower(c.Database.Type)
	switch c.Database.Type {
	case "":
		c.Database.Type = "sqlite"
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("不支持的数据库类型: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		if c.Database.Type != "sqlite" {
			return errors.New("database.dsn 不能为空")
		}
		c.Database.DSN = "./data/tradeforge.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 20
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime <= 0 {
		c.Database.ConnMaxLifetime = 3600
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "error"
	}

	// 日志存储
	if c.Storage.Path == "" {
		c.Storage.Path = "./data/logs.db"
	}
	if c.Storage.BufferSize <= 0 {
		c.Storage.BufferSize = 1000
	}
	if c.Storage.BatchSize <= 0 {
		c.Storage.BatchSize = 100
	}
	if c.Storage.FlushInterval <= 0 {
		c.Storage.FlushInterval = 5
	}
	if c.Storage.RetentionDays < 0 {
		return errors.New("storage.retention_days 不能为负数")
	}

	// 分布式锁
	if c.DistributedLock.Type == "" {
		c.DistributedLock.Type = "redis"
	}
	if c.DistributedLock.Enabled && c.DistributedLock.Type != "redis" {
		return fmt.Errorf("不支持的分布式锁类型: %s", c.DistributedLock.Type)
	}
	if c.DistributedLock.Prefix == "" {
		c.DistributedLock.Prefix = "tradeforge:lock:"
	}
	if c.DistributedLock.DefaultTTL <= 0 {
		c.DistributedLock.DefaultTTL = 30
	}
	if c.DistributedLock.Redis.Addr == "" {
		c.DistributedLock.Redis.Addr = "localhost:6379"
	}
	if c.DistributedLock.Redis.PoolSize <= 0 {
		c.DistributedLock.Redis.PoolSize = 10
	}

	// Web
	if c.Web.Host == "" {
		c.Web.Host = "0.0.0.0"
	}
	if c.Web.Port == 0 {
		c.Web.Port = 8080
	}
	if c.Web.Port < 0 || c.Web.Port > 65535 {
		return fmt.Errorf("无效的 web.port: %d", c.Web.Port)
	}
	if c.Web.ReadTimeout <= 0 {
		c.Web.ReadTimeout = 15
	}
	if c.Web.WriteTimeout <= 0 {
		c.Web.WriteTimeout = 60
	}

	// 监控
	if c.Metrics.CollectInterval <= 0 {
		c.Metrics.CollectInterval = 15
	}

	// 回测
	if err := c.validateBacktest(); err != nil {
		return err
	}

	// Binance
	if c.Binance.RequestsPerSecond <= 0 {
		c.Binance.RequestsPerSecond = 5
	}

	return nil
}

func (c *Config) validateBacktest() error {
	bt := &c.Backtest
	defaults := strategy.DefaultParams()

	if bt.Strategy == (strategy.Params{}) {
		bt.Strategy = defaults
	}
	if bt.Strategy.FastWindow == 0 && bt.Strategy.SlowWindow == 0 {
		bt.Strategy.FastWindow, bt.Strategy.SlowWindow = defaults.FastWindow, defaults.SlowWindow
	}
	if bt.Strategy.InitialCapital == 0 {
		bt.Strategy.InitialCapital = defaults.InitialCapital
	}
	if bt.Strategy.PositionSizePct == 0 {
		bt.Strategy.PositionSizePct = defaults.PositionSizePct
	}
	if err := bt.Strategy.Validate(); err != nil {
		return fmt.Errorf("backtest.strategy: %w", err)
	}

	if bt.Symbol == "" {
		bt.Symbol = "BTCUSDT"
	}
	bt.Symbol = strings.ToUpper(bt.Symbol)
	if bt.Interval == "" {
		bt.Interval = "1d"
	}
	if bt.ReportDir == "" {
		bt.ReportDir = "./backtest/reports"
	}
	if bt.CacheDir == "" {
		bt.CacheDir = "./backtest/cache"
	}
	if bt.CacheMaxAgeDays < 0 {
		return errors.New("backtest.cache_max_age_days 不能为负数")
	}
	if bt.Concurrency <= 0 {
		bt.Concurrency = 4
	}
	if bt.MaxSweepSize <= 0 {
		bt.MaxSweepSize = 200
	}
	return nil
}

// Clone 复制配置，Config 只包含值类型字段
func (c *Config) Clone() *Config {
	cp := *c
	return &cp
}
