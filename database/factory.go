package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"tradeforge/logger"
)

// Config 数据库配置
type Config struct {
	Type            string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

// NewStore 根据配置创建存储实例
func NewStore(config *Config) (Store, error) {
	dbType := strings.ToLower(config.Type)
	switch dbType {
	case "", "sqlite":
		dbType = "sqlite"
		if dir := filepath.Dir(config.DSN); dir != "" && !strings.HasPrefix(config.DSN, "file:") {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("创建数据库目录失败: %w", err)
			}
		}
	case "postgres", "postgresql", "mysql":
	default:
		return nil, fmt.Errorf("unsupported database type: %s", config.Type)
	}

	store, err := NewGormStore(&DBConfig{
		Type:            dbType,
		DSN:             config.DSN,
		MaxOpenConns:    config.MaxOpenConns,
		MaxIdleConns:    config.MaxIdleConns,
		ConnMaxLifetime: config.ConnMaxLifetime,
		LogLevel:        config.LogLevel,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("✅ 报告数据库已连接 (%s)", dbType)
	return store, nil
}
