package repository

import (
	"context"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/models"
	"gorm.io/gorm"
)

// RoundRepository 回合记录仓储接口
type RoundRepository interface {
	BaseRepository
	Create(ctx context.Context, round *models.RoundRecord) error
	FindBySession(ctx context.Context, sessionID string, p *Pagination) ([]*models.RoundRecord, error)
	FindByCounter(ctx context.Context, sessionID string, counter uint64) (*models.RoundRecord, error)
	CountByCategory(ctx context.Context, sessionID string) (map[string]int64, error)
}

// roundRepo 回合记录仓储实现
type roundRepo struct {
	baseRepo
}

// NewRoundRepository 创建回合记录仓储
func NewRoundRepository(db *gorm.DB) RoundRepository {
	return &roundRepo{baseRepo{db: db}}
}

// Create 写入回合记录
func (r *roundRepo) Create(ctx context.Context, round *models.RoundRecord) error {
	if err := r.conn(ctx).Create(round).Error; err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "写入回合记录失败")
	}
	return nil
}

// FindBySession 按时间倒序分页查询会话的回合
func (r *roundRepo) FindBySession(ctx context.Context, sessionID string, p *Pagination) ([]*models.RoundRecord, error) {
	var rounds []*models.RoundRecord
	query := r.conn(ctx).
		Model(&models.RoundRecord{}).
		Where("session_id = ?", sessionID)
	err := findPage(query, p, "id desc", &rounds)
	return rounds, queryError(err, "查询回合记录失败")
}

// FindByCounter 按计数器查找回合（购买奖励不推进计数器，取最新一条）
func (r *roundRepo) FindByCounter(ctx context.Context, sessionID string, counter uint64) (*models.RoundRecord, error) {
	var round models.RoundRecord
	err := r.conn(ctx).
		Where("session_id = ? AND counter = ?", sessionID, counter).
		Order("id desc").
		First(&round).Error
	if err != nil {
		return nil, queryError(err, "回合记录不存在")
	}
	return &round, nil
}

// CountByCategory 统计会话内各类别的回合数
func (r *roundRepo) CountByCategory(ctx context.Context, sessionID string) (map[string]int64, error) {
	var rows []struct {
		Category string
		Count    int64
	}
	err := r.conn(ctx).
		Model(&models.RoundRecord{}).
		Select("category, COUNT(*) as count").
		Where("session_id = ?", sessionID).
		Group("category").
		Scan(&rows).Error
	if err != nil {
		return nil, queryError(err, "统计回合类别失败")
	}

	counts := make(map[string]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Count
	}
	return counts, nil
}
