package repository

import (
	"context"
	"time"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/models"
	"gorm.io/gorm"
)

// GameSessionRepository 游戏会话仓储接口
type GameSessionRepository interface {
	BaseRepository
	Create(ctx context.Context, session *models.GameSession) error
	Update(ctx context.Context, session *models.GameSession) error
	FindBySessionID(ctx context.Context, sessionID string) (*models.GameSession, error)
	FindActive(ctx context.Context, p *Pagination) ([]*models.GameSession, error)
	GetStatistics(ctx context.Context, startTime, endTime time.Time) (*SessionStatistics, error)
	Close(ctx context.Context, sessionID string, closedAt time.Time) error
	CloseIdleSessions(ctx context.Context, idleBefore time.Time) (int64, error)
}

// SessionStatistics 会话统计
type SessionStatistics struct {
	TotalSessions  int64 `json:"total_sessions"`
	ActiveSessions int64 `json:"active_sessions"`
	TotalRounds    int64 `json:"total_rounds"`
}

// gameSessionRepo 游戏会话仓储实现
type gameSessionRepo struct {
	baseRepo
}

// NewGameSessionRepository 创建游戏会话仓储
func NewGameSessionRepository(db *gorm.DB) GameSessionRepository {
	return &gameSessionRepo{baseRepo{db: db}}
}

// Create 创建游戏会话
func (r *gameSessionRepo) Create(ctx context.Context, session *models.GameSession) error {
	if err := r.conn(ctx).Create(session).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "创建会话失败")
	}
	return nil
}

// Update 保存会话的完整状态
func (r *gameSessionRepo) Update(ctx context.Context, session *models.GameSession) error {
	if err := r.conn(ctx).Save(session).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate, "更新会话失败")
	}
	return nil
}

// FindBySessionID 根据会话ID查找
func (r *gameSessionRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.GameSession, error) {
	var session models.GameSession
	err := r.conn(ctx).
		Where("session_id = ?", sessionID).
		First(&session).Error
	if err != nil {
		return nil, queryError(err, "会话不存在: "+sessionID)
	}
	return &session, nil
}

// FindActive 查找未关闭的会话（分页）
func (r *gameSessionRepo) FindActive(ctx context.Context, p *Pagination) ([]*models.GameSession, error) {
	var sessions []*models.GameSession
	query := r.conn(ctx).
		Model(&models.GameSession{}).
		Where("status = ?", models.SessionStatusActive)
	err := findPage(query, p, "updated_at desc", &sessions)
	return sessions, queryError(err, "查询会话失败")
}

// GetStatistics 获取时间段内的会话统计
func (r *gameSessionRepo) GetStatistics(ctx context.Context, startTime, endTime time.Time) (*SessionStatistics, error) {
	var stats SessionStatistics

	err := r.conn(ctx).
		Model(&models.GameSession{}).
		Where("created_at BETWEEN ? AND ?", startTime, endTime).
		Select(
			"COUNT(*) as total_sessions",
			"COALESCE(SUM(CASE WHEN status = 'active' THEN 1 ELSE 0 END), 0) as active_sessions",
			"COALESCE(SUM(total_rounds), 0) as total_rounds",
		).
		Row().Scan(
			&stats.TotalSessions,
			&stats.ActiveSessions,
			&stats.TotalRounds,
		)
	if err != nil {
		return nil, queryError(err, "统计会话失败")
	}
	return &stats, nil
}

// Close 关闭会话
func (r *gameSessionRepo) Close(ctx context.Context, sessionID string, closedAt time.Time) error {
	result := r.conn(ctx).
		Model(&models.GameSession{}).
		Where("session_id = ? AND status = ?", sessionID, models.SessionStatusActive).
		Updates(map[string]interface{}{
			"status":    models.SessionStatusClosed,
			"closed_at": &closedAt,
		})
	if result.Error != nil {
		return apperrors.Wrap(result.Error, apperrors.ErrDatabaseUpdate, "关闭会话失败")
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.ErrSessionClosed, sessionID)
	}
	return nil
}

// CloseIdleSessions 关闭长时间无回合的会话
func (r *gameSessionRepo) CloseIdleSessions(ctx context.Context, idleBefore time.Time) (int64, error) {
	now := time.Now()
	result := r.conn(ctx).
		Model(&models.GameSession{}).
		Where("status = ? AND updated_at < ?", models.SessionStatusActive, idleBefore).
		Updates(map[string]interface{}{
			"status":    models.SessionStatusClosed,
			"closed_at": &now,
		})

	return result.RowsAffected, result.Error
}
