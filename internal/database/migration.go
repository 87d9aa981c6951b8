package database

import (
	"fmt"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Models 需要迁移的全部模型
func Models() []interface{} {
	return []interface{}{
		// 概率表
		&models.MathTable{},
		&models.TableOutcome{},

		// 会话与回合
		&models.GameSession{},
		&models.RoundRecord{},
	}
}

// AutoMigrate 迁移全局数据库
func AutoMigrate() error {
	if DB == nil {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库未初始化")
	}

	// 多个进程共用同一个 SQLite 文件时串行迁移
	if dbPath := sqliteFile(DB); dbPath != "" {
		lock := newMigrationLock(dbPath)
		lock.CleanupStaleLocks()
		if err := lock.Acquire(); err != nil {
			logger.Error("无法获取迁移锁", zap.Error(err))
			return err
		}
		defer lock.Release()
	}

	return Migrate(DB)
}

// Migrate 在指定连接上迁移表结构并创建索引
func Migrate(db *gorm.DB) error {
	logger.Info("开始数据库迁移...")

	for _, model := range Models() {
		if err := db.AutoMigrate(model); err != nil {
			logger.Error("迁移失败",
				zap.String("model", fmt.Sprintf("%T", model)),
				zap.Error(err),
			)
			return apperrors.Wrapf(err, apperrors.ErrDatabaseUpdate, "迁移 %T 失败", model)
		}
		logger.Debug("迁移成功", zap.String("model", fmt.Sprintf("%T", model)))
	}

	createIndexes(db)

	logger.Info("数据库迁移完成")
	return nil
}

// createIndexes 创建模型标签之外的组合索引
func createIndexes(db *gorm.DB) {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_math_tables_mode_active ON math_tables(mode, active)",
		"CREATE INDEX IF NOT EXISTS idx_round_records_played_at ON round_records(played_at)",
		"CREATE INDEX IF NOT EXISTS idx_game_sessions_created_at ON game_sessions(created_at)",
	}
	for _, idx := range indexes {
		if err := db.Exec(idx).Error; err != nil {
			logger.Warn("创建索引失败", zap.String("index", idx), zap.Error(err))
		}
	}
}

// DropAllTables 删除所有表（仅用于测试环境）
func DropAllTables(db *gorm.DB) error {
	migrator := db.Migrator()
	all := Models()
	for i := len(all) - 1; i >= 0; i-- {
		if err := migrator.DropTable(all[i]); err != nil {
			logger.Error("删除表失败", zap.String("model", fmt.Sprintf("%T", all[i])), zap.Error(err))
			return err
		}
	}

	logger.Info("所有表已删除")
	return nil
}
