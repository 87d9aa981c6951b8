package game

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/rng"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/models"
	"github.com/wfunc/slot-math/internal/repository"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

// SessionManager 游戏会话管理器
//
// 每个会话持有独立的种子链状态和回合解析器，同一会话的回合串行执行，
// 不同会话之间互不阻塞。
type SessionManager struct {
	mu             sync.RWMutex
	sessions       map[string]*Session
	logger         *zap.Logger
	store          SessionStore
	roundConfig    shot.Config
	newSecondary   func() rng.Generator
	sessionTimeout time.Duration
	maxSessions    int
}

// SessionConfig 会话管理器配置
type SessionConfig struct {
	Logger         *zap.Logger
	Store          SessionStore
	Round          shot.Config
	Secondary      func() rng.Generator // 每个会话的次级随机源，为空时使用加密随机源
	SessionTimeout time.Duration
	MaxSessions    int
}

// Session 内存中的活跃会话
type Session struct {
	lock         chan struct{} // 容量为1，充当可取消的互斥锁
	state        *fair.State
	resolver     *shot.Resolver
	record       *models.GameSession
	lastActivity time.Time
	closed       bool
	evicted      bool // 已从内存移除，需要重新获取
}

var errEvicted = errors.New("session evicted")

// NewSessionManager 创建会话管理器
func NewSessionManager(cfg *SessionConfig) (*SessionManager, error) {
	if err := cfg.Round.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = logger.GetModuleLogger("game")
	}
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	secondary := cfg.Secondary
	if secondary == nil {
		secondary = func() rng.Generator { return rng.NewCryptoGenerator() }
	}

	return &SessionManager{
		sessions:       make(map[string]*Session),
		logger:         log,
		store:          store,
		roundConfig:    cfg.Round,
		newSecondary:   secondary,
		sessionTimeout: cfg.SessionTimeout,
		maxSessions:    cfg.MaxSessions,
	}, nil
}

// RoundConfig 返回回合参数
func (sm *SessionManager) RoundConfig() shot.Config {
	return sm.roundConfig
}

// OpenSession 创建新会话并提交服务端种子哈希
func (sm *SessionManager) OpenSession(ctx context.Context, clientSeed string) (*SessionInfo, error) {
	serverSeed, err := fair.GenerateServerSeed()
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrUnknown, "生成服务端种子失败")
	}
	state, err := fair.NewState(serverSeed, clientSeed)
	if err != nil {
		return nil, err
	}

	record := &models.GameSession{
		SessionID:      uuid.NewString(),
		ServerSeed:     serverSeed,
		ServerSeedHash: fair.HashSeed(serverSeed),
		ClientSeed:     clientSeed,
		Status:         models.SessionStatusActive,
		TotalBet:       decimal.Zero,
		TotalWin:       decimal.Zero,
		PeakWin:        decimal.Zero,
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// 检查会话数量限制
	if sm.maxSessions > 0 && len(sm.sessions) >= sm.maxSessions {
		return nil, apperrors.New(apperrors.ErrSessionBusy, "会话数量已达上限")
	}

	if err := sm.store.Create(ctx, record); err != nil {
		return nil, err
	}

	session, err := sm.newSession(state, record)
	if err != nil {
		return nil, err
	}
	sm.sessions[record.SessionID] = session

	logger.LogGameEvent("session_opened", record.SessionID,
		zap.String("server_seed_hash", record.ServerSeedHash))

	return session.info(), nil
}

func (sm *SessionManager) newSession(state *fair.State, record *models.GameSession) (*Session, error) {
	resolver, err := shot.NewResolver(sm.roundConfig, sm.newSecondary())
	if err != nil {
		return nil, err
	}
	return &Session{
		lock:         make(chan struct{}, 1),
		state:        state,
		resolver:     resolver,
		record:       record,
		lastActivity: time.Now(),
	}, nil
}

// getSession 从内存获取会话，不存在时尝试从持久化存储恢复
func (sm *SessionManager) getSession(ctx context.Context, sessionID string) (*Session, error) {
	sm.mu.RLock()
	session, exists := sm.sessions[sessionID]
	sm.mu.RUnlock()
	if exists {
		return session, nil
	}
	return sm.recoverSession(ctx, sessionID)
}

// recoverSession 按持久化的计数器和免费次数重建种子链状态
func (sm *SessionManager) recoverSession(ctx context.Context, sessionID string) (*Session, error) {
	record, err := sm.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if record.Status == models.SessionStatusClosed {
		return nil, apperrors.New(apperrors.ErrSessionClosed, sessionID)
	}

	// 检查会话是否超时
	if sm.sessionTimeout > 0 && !record.UpdatedAt.IsZero() && time.Since(record.UpdatedAt) > sm.sessionTimeout {
		sm.logger.Warn("会话已超时",
			zap.String("session_id", sessionID),
			zap.Time("last_update", record.UpdatedAt),
			zap.Duration("timeout", sm.sessionTimeout))
		if err := sm.store.Close(ctx, sessionID, time.Now()); err != nil {
			sm.logger.Error("关闭超时会话失败", zap.Error(err))
		}
		return nil, apperrors.New(apperrors.ErrSessionClosed, "会话已超时")
	}

	state, err := fair.Restore(record.ServerSeed, record.ClientSeed, record.Counter, record.FreeSpins)
	if err != nil {
		return nil, err
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	// 并发恢复时以先放入的为准
	if existing, ok := sm.sessions[sessionID]; ok {
		return existing, nil
	}
	session, err := sm.newSession(state, record)
	if err != nil {
		return nil, err
	}
	sm.sessions[sessionID] = session

	logger.LogGameEvent("session_resumed", sessionID,
		zap.Uint64("counter", record.Counter),
		zap.Int("free_spins", record.FreeSpins))

	return session, nil
}

// acquire 获取会话锁，ctx 结束前未获取到则返回会话繁忙
func (s *Session) acquire(ctx context.Context) error {
	select {
	case s.lock <- struct{}{}:
	case <-ctx.Done():
		return apperrors.New(apperrors.ErrSessionBusy)
	}
	if s.closed {
		s.release()
		return apperrors.New(apperrors.ErrSessionClosed, s.record.SessionID)
	}
	if s.evicted {
		s.release()
		return errEvicted
	}
	return nil
}

// lockSession 获取并锁定会话
func (sm *SessionManager) lockSession(ctx context.Context, sessionID string) (*Session, error) {
	for {
		s, err := sm.getSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		err = s.acquire(ctx)
		if errors.Is(err, errEvicted) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

func (s *Session) release() {
	<-s.lock
}

// Play 解析一个回合
func (sm *SessionManager) Play(ctx context.Context, sessionID string, bet decimal.Decimal) (*shot.RoundResult, error) {
	return sm.withSession(ctx, sessionID, func(s *Session) (*shot.RoundResult, error) {
		return s.resolver.ResolveRound(s.state, bet)
	})
}

// BuyBonus 购买奖励回合
func (sm *SessionManager) BuyBonus(ctx context.Context, sessionID string, bet decimal.Decimal) (*shot.RoundResult, error) {
	return sm.withSession(ctx, sessionID, func(s *Session) (*shot.RoundResult, error) {
		return s.resolver.BuyBonus(s.state, bet)
	})
}

// withSession 在会话锁内执行一次状态转移并持久化，持久化失败时回退内存状态
func (sm *SessionManager) withSession(ctx context.Context, sessionID string, fn func(*Session) (*shot.RoundResult, error)) (*shot.RoundResult, error) {
	s, err := sm.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.release()

	prevCounter, prevFree := s.state.Counter(), s.state.FreeSpins()
	prevRecord := *s.record

	result, err := fn(s)
	if err != nil {
		return nil, err
	}

	s.apply(result)
	// 未持久化的回合不生效
	rollback := func(err error, what string) {
		restored, rerr := fair.Restore(s.state.ServerSeed(), s.state.ClientSeed(), prevCounter, prevFree)
		if rerr == nil {
			s.state = restored
		}
		*s.record = prevRecord
		sm.logger.Error(what,
			zap.String("session_id", sessionID),
			zap.Uint64("counter", result.Counter),
			zap.Error(err))
	}

	round, err := roundRecord(s.record.SessionID, result)
	if err != nil {
		rollback(err, "编码回合结果失败")
		return nil, err
	}
	if err := sm.store.SaveRound(ctx, s.record, round); err != nil {
		rollback(err, "保存回合失败")
		return nil, err
	}
	s.lastActivity = time.Now()

	logger.LogRoundResult(sessionID, result.Counter, string(result.Category),
		result.Multiplier.String(), result.Payout.String(), result.FreeSpinsRemaining)

	return result, nil
}

// apply 将回合结果累计到会话记录
func (s *Session) apply(result *shot.RoundResult) {
	r := s.record
	r.Counter = s.state.Counter()
	r.FreeSpins = s.state.FreeSpins()
	r.TotalRounds++
	r.TotalBet = r.TotalBet.Add(result.Cost)
	r.TotalWin = r.TotalWin.Add(result.Payout)
	if result.Payout.GreaterThan(r.PeakWin) {
		r.PeakWin = result.Payout
	}
}

// encodeRound 回合结果的存档编码
var encodeRound = json.Marshal

func roundRecord(sessionID string, result *shot.RoundResult) (*models.RoundRecord, error) {
	payload, err := encodeRound(result.ToJSON())
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrDataIntegrity, "编码回合结果失败")
	}
	return &models.RoundRecord{
		SessionID:          sessionID,
		Counter:            result.Counter,
		Category:           string(result.Category),
		Multiplier:         result.Multiplier,
		Bet:                result.Bet,
		Cost:               result.Cost,
		Payout:             result.Payout,
		FreeRound:          result.FreeRound,
		BonusBought:        result.BonusBought,
		FreeSpinsRemaining: result.FreeSpinsRemaining,
		Result:             datatypes.JSON(payload),
		PlayedAt:           time.Now(),
	}, nil
}

// CloseSession 关闭会话并公开服务端种子
func (sm *SessionManager) CloseSession(ctx context.Context, sessionID string) (*SessionReveal, error) {
	s, err := sm.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.release()

	closedAt := time.Now()
	if err := sm.store.Close(ctx, sessionID, closedAt); err != nil {
		return nil, err
	}
	s.closed = true
	s.record.Status = models.SessionStatusClosed
	s.record.ClosedAt = &closedAt

	sm.mu.Lock()
	delete(sm.sessions, sessionID)
	sm.mu.Unlock()

	logger.LogGameEvent("session_closed", sessionID,
		zap.Int64("total_rounds", s.record.TotalRounds),
		zap.String("total_bet", s.record.TotalBet.String()),
		zap.String("total_win", s.record.TotalWin.String()))

	return &SessionReveal{
		SessionInfo: *s.info(),
		ServerSeed:  s.record.ServerSeed,
	}, nil
}

// GetSessionInfo 获取会话信息
func (sm *SessionManager) GetSessionInfo(ctx context.Context, sessionID string) (*SessionInfo, error) {
	s, err := sm.lockSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	defer s.release()
	return s.info(), nil
}

// History 分页查询会话的回合记录
func (sm *SessionManager) History(ctx context.Context, sessionID string, p *repository.Pagination) ([]*models.RoundRecord, error) {
	if _, err := sm.store.Load(ctx, sessionID); err != nil {
		return nil, err
	}
	return sm.store.Rounds(ctx, sessionID, p)
}

func (s *Session) info() *SessionInfo {
	r := s.record
	info := &SessionInfo{
		SessionID:      r.SessionID,
		ServerSeedHash: r.ServerSeedHash,
		ClientSeed:     r.ClientSeed,
		Counter:        r.Counter,
		FreeSpins:      r.FreeSpins,
		Status:         r.Status,
		TotalRounds:    r.TotalRounds,
		TotalBet:       r.TotalBet.String(),
		TotalWin:       r.TotalWin.String(),
		PeakWin:        r.PeakWin.String(),
		StartedAt:      r.CreatedAt,
		LastActivity:   s.lastActivity,
	}
	if r.TotalBet.IsPositive() {
		info.RTP = r.TotalWin.DivRound(r.TotalBet, 6).String()
	}
	return info
}

// CleanupInactiveSessions 从内存移除不活跃的会话（持久化状态保留，可再次恢复）
func (sm *SessionManager) CleanupInactiveSessions() int {
	if sm.sessionTimeout <= 0 {
		return 0
	}

	sm.mu.Lock()
	defer sm.mu.Unlock()

	now := time.Now()
	removed := 0
	for sessionID, s := range sm.sessions {
		// 正在处理回合的会话跳过
		select {
		case s.lock <- struct{}{}:
		default:
			continue
		}
		if now.Sub(s.lastActivity) > sm.sessionTimeout {
			s.evicted = true
			delete(sm.sessions, sessionID)
			removed++
			sm.logger.Info("清理超时会话",
				zap.String("session_id", sessionID),
				zap.Duration("inactive", now.Sub(s.lastActivity)))
		}
		s.release()
	}
	return removed
}

// StartCleanupTask 启动清理任务
func (sm *SessionManager) StartCleanupTask(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				sm.logger.Info("停止会话清理任务")
				return
			case <-ticker.C:
				sm.CleanupInactiveSessions()
			}
		}
	}()
}

// GetActiveSessions 获取内存中的活跃会话数
func (sm *SessionManager) GetActiveSessions() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.sessions)
}
