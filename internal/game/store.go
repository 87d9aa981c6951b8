package game

import (
	"context"
	"sort"
	"sync"
	"time"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/models"
	"github.com/wfunc/slot-math/internal/repository"
)

// SessionStore 会话与回合记录的持久化接口
type SessionStore interface {
	Create(ctx context.Context, session *models.GameSession) error
	Load(ctx context.Context, sessionID string) (*models.GameSession, error)
	SaveRound(ctx context.Context, session *models.GameSession, round *models.RoundRecord) error
	Close(ctx context.Context, sessionID string, closedAt time.Time) error
	Rounds(ctx context.Context, sessionID string, p *repository.Pagination) ([]*models.RoundRecord, error)
}

// MemoryStore 内存持久化（测试与无数据库模式）
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]models.GameSession
	rounds   map[string][]models.RoundRecord
	nextID   uint
}

// NewMemoryStore 创建内存持久化器
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]models.GameSession),
		rounds:   make(map[string][]models.RoundRecord),
	}
}

// Create 保存新会话
func (s *MemoryStore) Create(ctx context.Context, session *models.GameSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; exists {
		return apperrors.New(apperrors.ErrAlreadyExists, session.SessionID)
	}
	s.nextID++
	session.ID = s.nextID
	session.CreatedAt = time.Now()
	session.UpdatedAt = session.CreatedAt
	s.sessions[session.SessionID] = *session
	return nil
}

// Load 加载会话（返回副本）
func (s *MemoryStore) Load(ctx context.Context, sessionID string) (*models.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, apperrors.New(apperrors.ErrNotFound, "会话不存在: "+sessionID)
	}
	return &session, nil
}

// SaveRound 写入回合并保存会话状态
func (s *MemoryStore) SaveRound(ctx context.Context, session *models.GameSession, round *models.RoundRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.SessionID]; !exists {
		return apperrors.New(apperrors.ErrNotFound, "会话不存在: "+session.SessionID)
	}
	round.ID = uint(len(s.rounds[session.SessionID]) + 1)
	session.UpdatedAt = time.Now()
	s.rounds[session.SessionID] = append(s.rounds[session.SessionID], *round)
	s.sessions[session.SessionID] = *session
	return nil
}

// Close 关闭会话
func (s *MemoryStore) Close(ctx context.Context, sessionID string, closedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return apperrors.New(apperrors.ErrNotFound, "会话不存在: "+sessionID)
	}
	if session.Status == models.SessionStatusClosed {
		return apperrors.New(apperrors.ErrSessionClosed, sessionID)
	}
	session.Status = models.SessionStatusClosed
	session.ClosedAt = &closedAt
	s.sessions[sessionID] = session
	return nil
}

// Rounds 按时间倒序分页返回回合
func (s *MemoryStore) Rounds(ctx context.Context, sessionID string, p *repository.Pagination) ([]*models.RoundRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.rounds[sessionID]
	p.Total = int64(len(all))

	ordered := make([]*models.RoundRecord, 0, len(all))
	for i := range all {
		r := all[i]
		ordered = append(ordered, &r)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID > ordered[j].ID })

	start := p.Offset()
	if start >= len(ordered) {
		return []*models.RoundRecord{}, nil
	}
	end := start + p.PageSize
	if end > len(ordered) {
		end = len(ordered)
	}
	return ordered[start:end], nil
}

// DatabaseStore 数据库持久化
type DatabaseStore struct {
	repos *repository.Manager
}

// NewDatabaseStore 创建数据库持久化器
func NewDatabaseStore(repos *repository.Manager) *DatabaseStore {
	return &DatabaseStore{repos: repos}
}

// Create 保存新会话
func (s *DatabaseStore) Create(ctx context.Context, session *models.GameSession) error {
	return s.repos.Sessions().Create(ctx, session)
}

// Load 加载会话
func (s *DatabaseStore) Load(ctx context.Context, sessionID string) (*models.GameSession, error) {
	return s.repos.Sessions().FindBySessionID(ctx, sessionID)
}

// SaveRound 在同一事务中写入回合并保存会话状态
func (s *DatabaseStore) SaveRound(ctx context.Context, session *models.GameSession, round *models.RoundRecord) error {
	return s.repos.RecordRound(ctx, session, round)
}

// Close 关闭会话
func (s *DatabaseStore) Close(ctx context.Context, sessionID string, closedAt time.Time) error {
	return s.repos.Sessions().Close(ctx, sessionID, closedAt)
}

// Rounds 分页查询回合
func (s *DatabaseStore) Rounds(ctx context.Context, sessionID string, p *repository.Pagination) ([]*models.RoundRecord, error) {
	return s.repos.Rounds().FindBySession(ctx, sessionID, p)
}
