package storage

import (
	"fmt"
	"time"

	"tradeforge/metrics"
)

// SaveSystemSnapshot 保存一次系统采样
func (s *SQLiteStorage) SaveSystemSnapshot(snap *metrics.SystemSnapshot) error {
	if snap == nil {
		return nil
	}
	_, err := s.db.Exec(`
		INSERT INTO system_metrics
			(timestamp, cpu_percent, memory_mb, memory_percent, goroutines, heap_alloc_mb, process_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, snap.Timestamp.UTC(), snap.CPUPercent, snap.MemoryMB, snap.MemoryPercent,
		snap.Goroutines, snap.HeapAllocMB, snap.ProcessID)
	if err != nil {
		return fmt.Errorf("保存系统监控数据失败: %w", err)
	}
	return nil
}

// QuerySystemMetrics 查询时间范围内的系统采样
func (s *SQLiteStorage) QuerySystemMetrics(startTime, endTime time.Time) ([]*SystemMetrics, error) {
	rows, err := s.db.Query(`
		SELECT id, timestamp, cpu_percent, memory_mb, memory_percent, goroutines, heap_alloc_mb, process_id
		FROM system_metrics
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, startTime.UTC(), endTime.UTC())
	if err != nil {
		return nil, fmt.Errorf("查询系统监控数据失败: %w", err)
	}
	defer rows.Close()

	var out []*SystemMetrics
	for rows.Next() {
		m := &SystemMetrics{}
		if err := rows.Scan(&m.ID, &m.Timestamp, &m.CPUPercent, &m.MemoryMB, &m.MemoryPercent,
			&m.Goroutines, &m.HeapAllocMB, &m.ProcessID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// CleanupSystemMetrics 删除指定时间之前的采样
func (s *SQLiteStorage) CleanupSystemMetrics(before time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM system_metrics WHERE timestamp < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理系统监控数据失败: %w", err)
	}
	return res.RowsAffected()
}
