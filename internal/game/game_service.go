package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/table"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/models"
	"github.com/wfunc/slot-math/internal/repository"
	"go.uber.org/zap"
)

// GameService 游戏服务：持有各模式的概率表与会话管理器
type GameService struct {
	sessions *SessionManager
	repos    *repository.Manager // 为空时不访问数据库
	logger   *zap.Logger

	mu     sync.RWMutex
	tables map[string]*ModeTable

	cleanupInterval time.Duration
	cancel          context.CancelFunc
}

// ModeTable 某个模式当前使用的概率表
type ModeTable struct {
	Mode     string         `json:"mode"`
	Cost     string         `json:"cost"`
	BuildID  string         `json:"build_id,omitempty"`
	Source   string         `json:"source"` // database, config
	Checksum string         `json:"checksum"`
	Analysis table.Analysis `json:"analysis"`
	Table    *table.Table   `json:"-"`
}

// GameServiceConfig 游戏服务配置
type GameServiceConfig struct {
	Logger          *zap.Logger
	Repos           *repository.Manager
	Sessions        *SessionManager
	CleanupInterval time.Duration
}

// NewGameService 创建游戏服务
func NewGameService(cfg *GameServiceConfig) *GameService {
	log := cfg.Logger
	if log == nil {
		log = logger.GetModuleLogger("game")
	}
	return &GameService{
		sessions:        cfg.Sessions,
		repos:           cfg.Repos,
		logger:          log,
		tables:          make(map[string]*ModeTable),
		cleanupInterval: cfg.CleanupInterval,
	}
}

// Sessions 返回会话管理器
func (s *GameService) Sessions() *SessionManager {
	return s.sessions
}

// LoadTables 加载全部模式的概率表：优先使用数据库中启用的表，否则按配置构建
func (s *GameService) LoadTables(ctx context.Context, gameCfg config.GameConfig) error {
	loaded := make(map[string]*ModeTable, len(gameCfg.Tables))
	for _, mode := range gameCfg.Modes() {
		tc := gameCfg.Tables[mode]
		mt, err := s.loadTable(ctx, mode, tc)
		if err != nil {
			return err
		}
		loaded[mode] = mt
		s.logger.Info("概率表已加载",
			zap.String("mode", mode),
			zap.String("source", mt.Source),
			zap.String("checksum", mt.Checksum),
			zap.String("theoretical_rtp", mt.Analysis.TheoreticalRTP))
	}

	s.mu.Lock()
	s.tables = loaded
	s.mu.Unlock()
	return nil
}

func (s *GameService) loadTable(ctx context.Context, mode string, tc config.TableConfig) (*ModeTable, error) {
	cost := decimal.NewFromFloat(tc.Cost).String()

	if s.repos != nil {
		record, err := s.repos.Tables().FindActive(ctx, mode)
		switch {
		case err == nil:
			rows, err := s.repos.Tables().Outcomes(ctx, record.ID)
			if err != nil {
				return nil, err
			}
			record.Outcomes = rows
			t, err := TableFromModel(record)
			if err != nil {
				return nil, err
			}
			return newModeTable(mode, record.Cost, record.BuildID, "database", t), nil
		case !apperrors.Is(err, apperrors.ErrNotFound):
			return nil, err
		}
	}

	start := time.Now()
	params := table.ParamsFromConfig(tc)
	t, err := table.Build(params)
	logger.LogTableBuild(mode, tc.Rows, tc.TotalUnits, params.TargetUnits(), time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return newModeTable(mode, cost, "", "config", t), nil
}

func newModeTable(mode, cost, buildID, source string, t *table.Table) *ModeTable {
	return &ModeTable{
		Mode:     mode,
		Cost:     cost,
		BuildID:  buildID,
		Source:   source,
		Checksum: t.Checksum(),
		Analysis: table.Analyze(t),
		Table:    t,
	}
}

// Table 获取模式的概率表
func (s *GameService) Table(mode string) (*ModeTable, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mt, ok := s.tables[mode]
	if !ok {
		return nil, apperrors.New(apperrors.ErrNotFound, "未知模式: "+mode)
	}
	return mt, nil
}

// Modes 已加载的模式（排序）
func (s *GameService) Modes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modes := make([]string, 0, len(s.tables))
	for mode := range s.tables {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// Start 启动后台任务
func (s *GameService) Start(ctx context.Context) {
	if s.cleanupInterval <= 0 || s.sessions == nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.sessions.StartCleanupTask(ctx, s.cleanupInterval)
	s.logger.Info("游戏服务已启动", zap.Duration("cleanup_interval", s.cleanupInterval))
}

// Stop 停止后台任务
func (s *GameService) Stop() {
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.logger.Info("游戏服务已停止")
}

// TableModel 将概率表转换为持久化模型
func TableModel(mode string, cost decimal.Decimal, t *table.Table) *models.MathTable {
	p := t.Params()
	record := &models.MathTable{
		BuildID:           uuid.NewString(),
		Mode:              mode,
		Rows:              t.Len(),
		TotalUnits:        p.TotalUnits,
		TargetRTP:         p.TargetRTP.String(),
		Cost:              cost.String(),
		JackpotMultiplier: p.JackpotMultiplier,
		JackpotWeight:     p.JackpotWeight,
		WeightedSum:       t.WeightedSum(),
		Checksum:          t.Checksum(),
		Outcomes:          make([]models.TableOutcome, 0, t.Len()),
	}
	for _, o := range t.Outcomes() {
		record.Outcomes = append(record.Outcomes, models.TableOutcome{
			OutcomeID:  o.ID,
			Weight:     o.Weight,
			Multiplier: o.Multiplier,
		})
	}
	return record
}

// TableFromModel 由持久化模型重建概率表并重新校验全部不变量
func TableFromModel(record *models.MathTable) (*table.Table, error) {
	target, err := decimal.NewFromString(record.TargetRTP)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.ErrInvalidTable, "目标RTP格式错误: %s", record.TargetRTP)
	}
	params := table.Params{
		Rows:              record.Rows,
		TotalUnits:        record.TotalUnits,
		TargetRTP:         target,
		JackpotMultiplier: record.JackpotMultiplier,
		JackpotWeight:     record.JackpotWeight,
	}
	outcomes := make([]table.Outcome, 0, len(record.Outcomes))
	for _, o := range record.Outcomes {
		outcomes = append(outcomes, table.Outcome{
			ID:         o.OutcomeID,
			Weight:     o.Weight,
			Multiplier: o.Multiplier,
		})
	}
	t, err := table.New(params, outcomes)
	if err != nil {
		return nil, err
	}
	if record.Checksum != "" && record.Checksum != t.Checksum() {
		return nil, apperrors.Newf(apperrors.ErrDataIntegrity, "概率表 %s 校验和不一致", record.BuildID)
	}
	return t, nil
}
