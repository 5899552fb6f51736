package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStorage 运行数据存储：日志与系统监控采样
type SQLiteStorage struct {
	db   *sql.DB
	opts Options

	mu     sync.RWMutex
	logCh  chan LogRecord
	done   chan struct{}
	closed bool
}

// NewSQLiteStorage 打开（或创建）SQLite 存储，并启动异步日志写入协程
func NewSQLiteStorage(opts Options) (*SQLiteStorage, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("存储路径不能为空")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = 5 * time.Second
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 使用 WAL 模式提高并发性能
	db, err := sql.Open("sqlite3", opts.Path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite 并发限制
	db.SetMaxIdleConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("创建表失败: %w", err)
	}

	s := &SQLiteStorage{
		db:    db,
		opts:  opts,
		logCh: make(chan LogRecord, opts.BufferSize),
		done:  make(chan struct{}),
	}
	go s.processLogs()
	return s, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_timestamp ON logs(timestamp);
	CREATE INDEX IF NOT EXISTS idx_logs_level ON logs(level);

	CREATE TABLE IF NOT EXISTS system_metrics (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		cpu_percent REAL,
		memory_mb REAL,
		memory_percent REAL,
		goroutines INTEGER,
		heap_alloc_mb REAL,
		process_id INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_system_metrics_timestamp ON system_metrics(timestamp);
	`
	_, err := db.Exec(schema)
	return err
}

// Close 刷新剩余日志并关闭数据库
func (s *SQLiteStorage) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.logCh)
	s.mu.Unlock()

	<-s.done
	return s.db.Close()
}

// Vacuum 回收空间
func (s *SQLiteStorage) Vacuum() error {
	_, err := s.db.Exec("VACUUM")
	return err
}
