package storage

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// WriteLog 写入日志（异步，不阻塞），队列满时丢弃
func (s *SQLiteStorage) WriteLog(level, message string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}

	select {
	case s.logCh <- LogRecord{Timestamp: time.Now().UTC(), Level: level, Message: message}:
	default:
	}
}

// processLogs 批量写入日志，通道关闭时刷新剩余内容后退出
func (s *SQLiteStorage) processLogs() {
	defer close(s.done)

	buffer := make([]LogRecord, 0, s.opts.BatchSize)
	ticker := time.NewTicker(s.opts.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		if err := s.batchInsert(buffer); err != nil {
			// logger 会回调 WriteLog，这里只能写标准错误
			fmt.Fprintf(os.Stderr, "写入日志数据库失败: %v\n", err)
		}
		buffer = buffer[:0]
	}

	for {
		select {
		case entry, ok := <-s.logCh:
			if !ok {
				flush()
				return
			}
			buffer = append(buffer, entry)
			if len(buffer) >= s.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

func (s *SQLiteStorage) batchInsert(entries []LogRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO logs (timestamp, level, message) VALUES (?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.Timestamp, e.Level, e.Message); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetLogs 查询日志，返回当前页与总数
func (s *SQLiteStorage) GetLogs(params LogQueryParams) ([]*LogRecord, int, error) {
	where := []string{"1=1"}
	args := []interface{}{}

	if !params.StartTime.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, params.StartTime.UTC())
	}
	if !params.EndTime.IsZero() {
		where = append(where, "timestamp <= ?")
		args = append(args, params.EndTime.UTC())
	}
	if params.Level != "" {
		where = append(where, "level = ?")
		args = append(args, strings.ToUpper(params.Level))
	}
	if params.Keyword != "" {
		where = append(where, "message LIKE ?")
		args = append(args, "%"+params.Keyword+"%")
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM logs WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("查询日志总数失败: %w", err)
	}

	if params.Limit <= 0 {
		params.Limit = 100
	}
	if params.Limit > 1000 {
		params.Limit = 1000
	}

	query := fmt.Sprintf(`
		SELECT id, timestamp, level, message
		FROM logs
		WHERE %s
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, whereClause)
	args = append(args, params.Limit, params.Offset)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("查询日志失败: %w", err)
	}
	defer rows.Close()

	logs := make([]*LogRecord, 0, params.Limit)
	for rows.Next() {
		var rec LogRecord
		if err := rows.Scan(&rec.ID, &rec.Timestamp, &rec.Level, &rec.Message); err != nil {
			return nil, 0, err
		}
		logs = append(logs, &rec)
	}
	return logs, total, rows.Err()
}

// CleanOldLogs 清理超过指定天数的日志，返回删除条数
func (s *SQLiteStorage) CleanOldLogs(days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := s.db.Exec(`DELETE FROM logs WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetLogStats 日志统计
func (s *SQLiteStorage) GetLogStats() (*LogStats, error) {
	stats := &LogStats{ByLevel: make(map[string]int64)}

	rows, err := s.db.Query(`SELECT level, COUNT(*) FROM logs GROUP BY level`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var level string
		var count int64
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		stats.ByLevel[level] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		var oldest, newest time.Time
		err := s.db.QueryRow(`SELECT timestamp FROM logs ORDER BY timestamp ASC LIMIT 1`).Scan(&oldest)
		if err == nil {
			err = s.db.QueryRow(`SELECT timestamp FROM logs ORDER BY timestamp DESC LIMIT 1`).Scan(&newest)
		}
		if err == nil {
			stats.OldestTime, stats.NewestTime = &oldest, &newest
		}
	}
	return stats, nil
}
