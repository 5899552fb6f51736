package storage

import "time"

// LogRecord 日志记录
type LogRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// LogQueryParams 日志查询参数
type LogQueryParams struct {
	StartTime time.Time
	EndTime   time.Time
	Level     string
	Keyword   string
	Limit     int // 默认 100，最大 1000
	Offset    int
}

// LogStats 日志统计
type LogStats struct {
	Total      int64            `json:"total"`
	ByLevel    map[string]int64 `json:"by_level"`
	OldestTime *time.Time       `json:"oldest_time,omitempty"`
	NewestTime *time.Time       `json:"newest_time,omitempty"`
}

// SystemMetrics 系统监控采样
type SystemMetrics struct {
	ID            int64     `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpu_percent"`
	MemoryMB      float64   `json:"memory_mb"`
	MemoryPercent float64   `json:"memory_percent"`
	Goroutines    int       `json:"goroutines"`
	HeapAllocMB   float64   `json:"heap_alloc_mb"`
	ProcessID     int       `json:"process_id"`
}

// Options 存储配置
type Options struct {
	Path          string
	BufferSize    int           // 日志队列长度，默认 1000
	BatchSize     int           // 批量写入条数，默认 100
	FlushInterval time.Duration // 默认 5s
}
