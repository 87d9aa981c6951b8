package repository

import (
	"context"
	"errors"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// BaseRepository 仓储公共接口
type BaseRepository interface {
	GetDB() *gorm.DB
}

// Pagination 分页参数，查询后回填 Total
type Pagination struct {
	Page     int   `json:"page"`
	PageSize int   `json:"page_size"`
	Total    int64 `json:"total"`
}

// NewPagination 创建分页参数，页码从1开始，每页最多100条
func NewPagination(page, pageSize int) *Pagination {
	p := &Pagination{Page: page, PageSize: pageSize}
	if p.Page < 1 {
		p.Page = 1
	}
	switch {
	case p.PageSize <= 0:
		p.PageSize = defaultPageSize
	case p.PageSize > maxPageSize:
		p.PageSize = maxPageSize
	}
	return p
}

// Offset 计算偏移量
func (p *Pagination) Offset() int {
	return (p.Page - 1) * p.PageSize
}

// baseRepo 各仓储共用的数据库句柄
type baseRepo struct {
	db *gorm.DB
}

// GetDB 获取数据库实例
func (r *baseRepo) GetDB() *gorm.DB {
	return r.db
}

func (r *baseRepo) conn(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx)
}

// findPage 统计 query 的总数并按 order 读取当前页到 dest
// query 需已设置 Model
func findPage(query *gorm.DB, p *Pagination, order string, dest interface{}) error {
	if err := query.Session(&gorm.Session{}).Count(&p.Total).Error; err != nil {
		return err
	}
	return query.Session(&gorm.Session{}).
		Order(order).
		Offset(p.Offset()).
		Limit(p.PageSize).
		Find(dest).Error
}

// queryError 将 gorm 错误转换为应用错误
func queryError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.New(apperrors.ErrNotFound, what)
	}
	return apperrors.Wrap(err, apperrors.ErrDatabaseQuery, what)
}
