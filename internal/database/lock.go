package database

import (
	"os"
	"path/filepath"
	"time"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/logger"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const lockSuffix = ".migration.lock"

// migrationLock 基于锁文件的跨进程迁移锁，只用于 SQLite 文件库
type migrationLock struct {
	path     string
	attempts int
	wait     time.Duration
	staleAge time.Duration // 超过该时长的锁文件视为残留

	file *os.File
}

func newMigrationLock(dbPath string) *migrationLock {
	return &migrationLock{
		path:     dbPath + lockSuffix,
		attempts: 30,
		wait:     time.Second,
		staleAge: 5 * time.Minute,
	}
}

// Acquire 获取锁，超过重试次数返回 ErrTimeout
func (l *migrationLock) Acquire() error {
	for i := 0; i < l.attempts; i++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
		if err == nil {
			l.file = f
			logger.Debug("获取迁移锁成功", zap.String("lock", l.path))
			return nil
		}

		if l.stale(l.path) {
			logger.Warn("迁移锁文件过期，尝试删除", zap.String("lock", l.path))
			_ = os.Remove(l.path)
			continue
		}

		logger.Debug("等待迁移锁", zap.Int("attempt", i+1))
		time.Sleep(l.wait)
	}
	return apperrors.New(apperrors.ErrTimeout, "无法获取迁移锁，可能有其他进程正在执行迁移")
}

// Release 释放锁，未持有时无操作
func (l *migrationLock) Release() {
	if l == nil || l.file == nil {
		return
	}
	_ = l.file.Close()
	_ = os.Remove(l.path)
	l.file = nil
	logger.Debug("释放迁移锁", zap.String("lock", l.path))
}

func (l *migrationLock) stale(path string) bool {
	info, err := os.Stat(path)
	return err == nil && time.Since(info.ModTime()) > l.staleAge
}

// CleanupStaleLocks 删除数据库目录下过期的迁移锁文件
func (l *migrationLock) CleanupStaleLocks() int {
	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(l.path), "*"+lockSuffix))
	removed := 0
	for _, path := range matches {
		if path == l.path && l.file != nil {
			continue
		}
		if l.stale(path) {
			logger.Info("清理过期锁文件", zap.String("file", path))
			if os.Remove(path) == nil {
				removed++
			}
		}
	}
	return removed
}

// sqliteFile 返回 SQLite 数据库文件路径，内存库或其他驱动返回空
func sqliteFile(db *gorm.DB) string {
	if db == nil || db.Dialector.Name() != "sqlite" {
		return ""
	}

	sqlDB, err := db.DB()
	if err != nil {
		return ""
	}
	var (
		seq        int
		name, file string
	)
	if err := sqlDB.QueryRow("PRAGMA database_list").Scan(&seq, &name, &file); err != nil {
		return ""
	}
	return file
}
