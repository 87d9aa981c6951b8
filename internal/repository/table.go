package repository

import (
	"context"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/models"
	"gorm.io/gorm"
)

// outcomeBatchSize 概率表行批量写入大小
const outcomeBatchSize = 500

// MathTableRepository 概率表仓储接口
type MathTableRepository interface {
	BaseRepository
	Create(ctx context.Context, table *models.MathTable) error
	FindByID(ctx context.Context, id uint) (*models.MathTable, error)
	FindByBuildID(ctx context.Context, buildID string) (*models.MathTable, error)
	FindActive(ctx context.Context, mode string) (*models.MathTable, error)
	Activate(ctx context.Context, id uint) error
	List(ctx context.Context, mode string, p *Pagination) ([]*models.MathTable, error)
	Outcomes(ctx context.Context, tableID uint) ([]models.TableOutcome, error)
}

// mathTableRepo 概率表仓储实现
type mathTableRepo struct {
	baseRepo
}

// NewMathTableRepository 创建概率表仓储
func NewMathTableRepository(db *gorm.DB) MathTableRepository {
	return &mathTableRepo{baseRepo{db: db}}
}

// Create 写入概率表及其全部行
func (r *mathTableRepo) Create(ctx context.Context, table *models.MathTable) error {
	outcomes := table.Outcomes
	table.Outcomes = nil

	err := r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(table).Error; err != nil {
			return err
		}
		for i := range outcomes {
			outcomes[i].TableID = table.ID
		}
		if len(outcomes) == 0 {
			return nil
		}
		return tx.CreateInBatches(outcomes, outcomeBatchSize).Error
	})
	table.Outcomes = outcomes
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseInsert, "写入概率表失败")
	}
	return nil
}

// FindByID 根据ID查找（不含行数据）
func (r *mathTableRepo) FindByID(ctx context.Context, id uint) (*models.MathTable, error) {
	var table models.MathTable
	if err := r.conn(ctx).First(&table, id).Error; err != nil {
		return nil, queryError(err, "概率表不存在")
	}
	return &table, nil
}

// FindByBuildID 根据构建ID查找
func (r *mathTableRepo) FindByBuildID(ctx context.Context, buildID string) (*models.MathTable, error) {
	var table models.MathTable
	err := r.conn(ctx).
		Where("build_id = ?", buildID).
		First(&table).Error
	if err != nil {
		return nil, queryError(err, "概率表不存在: "+buildID)
	}
	return &table, nil
}

// FindActive 查找模式当前启用的概率表
func (r *mathTableRepo) FindActive(ctx context.Context, mode string) (*models.MathTable, error) {
	var table models.MathTable
	err := r.conn(ctx).
		Where("mode = ? AND active = ?", mode, true).
		Order("id desc").
		First(&table).Error
	if err != nil {
		return nil, queryError(err, "模式没有启用的概率表: "+mode)
	}
	return &table, nil
}

// Activate 启用概率表，同模式的其他表全部停用
func (r *mathTableRepo) Activate(ctx context.Context, id uint) error {
	return r.conn(ctx).Transaction(func(tx *gorm.DB) error {
		var table models.MathTable
		if err := tx.First(&table, id).Error; err != nil {
			return queryError(err, "概率表不存在")
		}
		if err := tx.Model(&models.MathTable{}).
			Where("mode = ? AND id <> ?", table.Mode, id).
			Update("active", false).Error; err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseUpdate)
		}
		return tx.Model(&table).Update("active", true).Error
	})
}

// List 按模式列出概率表（分页，mode 为空时列出全部）
func (r *mathTableRepo) List(ctx context.Context, mode string, p *Pagination) ([]*models.MathTable, error) {
	var tables []*models.MathTable

	query := r.conn(ctx).Model(&models.MathTable{})
	if mode != "" {
		query = query.Where("mode = ?", mode)
	}
	err := findPage(query, p, "id desc", &tables)
	return tables, queryError(err, "查询概率表失败")
}

// Outcomes 按行号顺序读取概率表的全部行
func (r *mathTableRepo) Outcomes(ctx context.Context, tableID uint) ([]models.TableOutcome, error) {
	var outcomes []models.TableOutcome
	err := r.conn(ctx).
		Where("table_id = ?", tableID).
		Order("outcome_id asc").
		Find(&outcomes).Error
	return outcomes, queryError(err, "查询概率表行失败")
}
