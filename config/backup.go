package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"tradeforge/logger"
)

const (
	backupPrefix     = "config.backup."
	backupSuffix     = ".yaml"
	backupTimeLayout = "20060102150405.000"
)

// BackupInfo 备份信息
type BackupInfo struct {
	ID        string    `json:"id"` // 文件名
	Timestamp time.Time `json:"timestamp"`
	FilePath  string    `json:"file_path"`
	Size      int64     `json:"size"`
}

// BackupManager 保存每次成功热加载前的配置文件
type BackupManager struct {
	backupDir  string
	maxBackups int
	now        func() time.Time
}

// NewBackupManager 创建备份管理器
func NewBackupManager(dir string, maxBackups int) *BackupManager {
	if dir == "" {
		dir = "./config_backups"
	}
	if maxBackups <= 0 {
		maxBackups = 20
	}
	return &BackupManager{backupDir: dir, maxBackups: maxBackups, now: time.Now}
}

// CreateBackup 备份配置内容
func (bm *BackupManager) CreateBackup(data []byte) (*BackupInfo, error) {
	if err := os.MkdirAll(bm.backupDir, 0755); err != nil {
		return nil, fmt.Errorf("创建备份目录失败: %w", err)
	}

	ts := bm.now().UTC()
	name := backupPrefix + ts.Format(backupTimeLayout) + backupSuffix
	path := filepath.Join(bm.backupDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("写入备份文件失败: %w", err)
	}

	if _, err := bm.CleanOldBackups(); err != nil {
		logger.Warn("⚠️ 清理旧配置备份失败: %v", err)
	}

	return &BackupInfo{ID: name, Timestamp: ts, FilePath: path, Size: int64(len(data))}, nil
}

// ListBackups 列出所有备份，最新的在前
func (bm *BackupManager) ListBackups() ([]*BackupInfo, error) {
	entries, err := os.ReadDir(bm.backupDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*BackupInfo{}, nil
		}
		return nil, fmt.Errorf("读取备份目录失败: %w", err)
	}

	backups := make([]*BackupInfo, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, backupPrefix) || !strings.HasSuffix(name, backupSuffix) {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(name, backupPrefix), backupSuffix)
		ts, err := time.Parse(backupTimeLayout, raw)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, &BackupInfo{
			ID:        name,
			Timestamp: ts,
			FilePath:  filepath.Join(bm.backupDir, name),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].Timestamp.After(backups[j].Timestamp)
	})
	return backups, nil
}

// RestoreBackup 用备份覆盖配置文件，备份内容必须能通过校验
func (bm *BackupManager) RestoreBackup(id, configPath string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("非法的备份ID: %q", id)
	}
	data, err := os.ReadFile(filepath.Join(bm.backupDir, id))
	if err != nil {
		return fmt.Errorf("读取备份失败: %w", err)
	}
	if _, err := LoadConfigFromBytes(data); err != nil {
		return fmt.Errorf("备份配置无效: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("恢复配置失败: %w", err)
	}
	logger.Info("✅ 已从备份 %s 恢复配置", id)
	return nil
}

// CleanOldBackups 只保留最新的 maxBackups 个备份，返回删除数量
func (bm *BackupManager) CleanOldBackups() (int, error) {
	backups, err := bm.ListBackups()
	if err != nil {
		return 0, err
	}
	removed := 0
	for i := bm.maxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].FilePath); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("删除备份失败: %w", err)
		}
		removed++
	}
	return removed, nil
}
