package repository

import (
	"context"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"gorm.io/gorm"
)

// TransactionManager 事务管理器接口
type TransactionManager interface {
	// Begin 开始事务
	Begin(ctx context.Context) (*Transaction, error)
	// WithTransaction 在事务中执行函数，返回错误时回滚
	WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error
}

// Transaction 事务包装器
type Transaction struct {
	tx         *gorm.DB
	committed  bool
	rolledback bool

	// 事务中的仓储实例
	tables   MathTableRepository
	sessions GameSessionRepository
	rounds   RoundRepository
}

// txManager 事务管理器实现
type txManager struct {
	db *gorm.DB
}

// NewTransactionManager 创建事务管理器
func NewTransactionManager(db *gorm.DB) TransactionManager {
	return &txManager{db: db}
}

// Begin 开始事务
func (m *txManager) Begin(ctx context.Context) (*Transaction, error) {
	tx := m.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, apperrors.Wrap(tx.Error, apperrors.ErrTransaction, "开始事务失败")
	}
	return &Transaction{tx: tx}, nil
}

// WithTransaction 在事务中执行函数
func (m *txManager) WithTransaction(ctx context.Context, fn func(tx *Transaction) error) error {
	tx, err := m.Begin(ctx)
	if err != nil {
		return err
	}

	// 确保事务被处理
	defer func() {
		if !tx.committed && !tx.rolledback {
			tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	return tx.Commit()
}

// Commit 提交事务
func (t *Transaction) Commit() error {
	if t.committed {
		return apperrors.New(apperrors.ErrTransaction, "事务已提交")
	}
	if t.rolledback {
		return apperrors.New(apperrors.ErrTransaction, "事务已回滚")
	}

	if err := t.tx.Commit().Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrTransaction, "提交事务失败")
	}

	t.committed = true
	return nil
}

// Rollback 回滚事务
func (t *Transaction) Rollback() error {
	if t.committed {
		return apperrors.New(apperrors.ErrTransaction, "事务已提交，无法回滚")
	}
	if t.rolledback {
		return apperrors.New(apperrors.ErrTransaction, "事务已回滚")
	}

	if err := t.tx.Rollback().Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrTransaction, "回滚事务失败")
	}

	t.rolledback = true
	return nil
}

// GetDB 获取事务中的数据库实例
func (t *Transaction) GetDB() *gorm.DB {
	return t.tx
}

// Tables 获取事务中的概率表仓储
func (t *Transaction) Tables() MathTableRepository {
	if t.tables == nil {
		t.tables = NewMathTableRepository(t.tx)
	}
	return t.tables
}

// Sessions 获取事务中的会话仓储
func (t *Transaction) Sessions() GameSessionRepository {
	if t.sessions == nil {
		t.sessions = NewGameSessionRepository(t.tx)
	}
	return t.sessions
}

// Rounds 获取事务中的回合记录仓储
func (t *Transaction) Rounds() RoundRepository {
	if t.rounds == nil {
		t.rounds = NewRoundRepository(t.tx)
	}
	return t.rounds
}
