package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// GormStore GORM 实现
type GormStore struct {
	db *gorm.DB
}

// DBConfig 数据库配置
type DBConfig struct {
	Type            string        // sqlite, postgres, mysql
	DSN             string        // 数据源名称
	MaxOpenConns    int           // 最大打开连接数
	MaxIdleConns    int           // 最大空闲连接数
	ConnMaxLifetime time.Duration // 连接最大生命周期
	LogLevel        string        // 日志级别: silent, error, warn, info
}

func dialectorFor(dbType, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(dbType) {
	case "sqlite", "":
		return sqlite.Open(dsn), nil
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", dbType)
	}
}

// NewGormStore 创建 GORM 存储并自动迁移
func NewGormStore(config *DBConfig) (*GormStore, error) {
	dialector, err := dialectorFor(config.Type, config.DSN)
	if err != nil {
		return nil, err
	}

	logLevel := gormlogger.Silent
	switch config.LogLevel {
	case "error":
		logLevel = gormlogger.Error
	case "warn":
		logLevel = gormlogger.Warn
	case "info":
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	if err := db.AutoMigrate(&BacktestRecord{}); err != nil {
		return nil, fmt.Errorf("failed to auto migrate: %w", err)
	}

	return &GormStore{db: db}, nil
}

// SaveReport 保存报告，ID 为空时生成 UUID
func (g *GormStore) SaveReport(ctx context.Context, rec *BacktestRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	return g.db.WithContext(ctx).Save(rec).Error
}

// GetReport 按 ID 获取报告
func (g *GormStore) GetReport(ctx context.Context, id string) (*BacktestRecord, error) {
	var rec BacktestRecord
	err := g.db.WithContext(ctx).Where("id = ?", id).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListReports 查询报告列表（不加载 ResultJSON）
func (g *GormStore) ListReports(ctx context.Context, filter *ReportFilter) ([]*BacktestRecord, error) {
	if filter == nil {
		filter = &ReportFilter{}
	}
	query := g.db.WithContext(ctx).Model(&BacktestRecord{}).Omit("result_json")

	if filter.Symbol != "" {
		query = query.Where("symbol = ?", strings.ToUpper(filter.Symbol))
	}
	if filter.Strategy != "" {
		query = query.Where("strategy = ?", filter.Strategy)
	}
	if filter.StartTime != nil {
		query = query.Where("created_at >= ?", filter.StartTime)
	}
	if filter.EndTime != nil {
		query = query.Where("created_at <= ?", filter.EndTime)
	}
	if filter.MinSharpe != nil {
		query = query.Where("sharpe_ratio >= ?", *filter.MinSharpe)
	}

	switch filter.OrderBy {
	case OrderBySharpe:
		query = query.Order("sharpe_ratio DESC")
	case OrderByReturn:
		query = query.Order("total_return_pct DESC")
	default:
		query = query.Order("created_at DESC")
	}

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	var records []*BacktestRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// DeleteReport 删除报告
func (g *GormStore) DeleteReport(ctx context.Context, id string) error {
	res := g.db.WithContext(ctx).Where("id = ?", id).Delete(&BacktestRecord{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Ping 健康检查
func (g *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close 关闭连接
func (g *GormStore) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
