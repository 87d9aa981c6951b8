package repository

import (
	"context"
	"sync"

	"github.com/wfunc/slot-math/internal/models"
	"gorm.io/gorm"
)

// Manager 仓储管理器，提供所有仓储的统一访问接口
type Manager struct {
	db *gorm.DB

	// 事务管理器
	txManager TransactionManager

	// 仓储实例（使用懒加载）
	tablesOnce sync.Once
	tables     MathTableRepository

	sessionsOnce sync.Once
	sessions     GameSessionRepository

	roundsOnce sync.Once
	rounds     RoundRepository
}

// NewManager 创建仓储管理器
func NewManager(db *gorm.DB) *Manager {
	return &Manager{
		db:        db,
		txManager: NewTransactionManager(db),
	}
}

// GetDB 获取数据库实例
func (m *Manager) GetDB() *gorm.DB {
	return m.db
}

// Transaction 获取事务管理器
func (m *Manager) Transaction() TransactionManager {
	return m.txManager
}

// Tables 获取概率表仓储
func (m *Manager) Tables() MathTableRepository {
	m.tablesOnce.Do(func() {
		m.tables = NewMathTableRepository(m.db)
	})
	return m.tables
}

// Sessions 获取会话仓储
func (m *Manager) Sessions() GameSessionRepository {
	m.sessionsOnce.Do(func() {
		m.sessions = NewGameSessionRepository(m.db)
	})
	return m.sessions
}

// Rounds 获取回合记录仓储
func (m *Manager) Rounds() RoundRepository {
	m.roundsOnce.Do(func() {
		m.rounds = NewRoundRepository(m.db)
	})
	return m.rounds
}

// RecordRound 在同一事务中写入回合记录并保存会话状态
func (m *Manager) RecordRound(ctx context.Context, session *models.GameSession, round *models.RoundRecord) error {
	return m.txManager.WithTransaction(ctx, func(tx *Transaction) error {
		if err := tx.Rounds().Create(ctx, round); err != nil {
			return err
		}
		return tx.Sessions().Update(ctx, session)
	})
}

// HealthCheck 健康检查
func (m *Manager) HealthCheck(ctx context.Context) error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
