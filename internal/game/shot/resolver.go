// Package shot 实现投篮回合的状态机
//
// 状态只有两种：空闲（免费次数为0）和奖励进行中（免费次数>0）。
// 每回合只消耗种子链的一次抽取，奖励倍率由独立注入的次级随机源挑选。
package shot

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/rng"
)

// DrawFunc 从回合状态抽取一个均匀值
type DrawFunc func(state *fair.State) (float64, error)

// Option 解析器选项
type Option func(*Resolver)

// WithDraw 替换抽取函数（测试中用于注入固定值）
func WithDraw(draw DrawFunc) Option {
	return func(r *Resolver) {
		if draw != nil {
			r.draw = draw
		}
	}
}

// WithoutBetCheck 关闭投注档位校验（模拟器使用任意投注时）
func WithoutBetCheck() Option {
	return func(r *Resolver) {
		r.checkBet = false
	}
}

// Resolver 回合解析器
// 解析器本身无可变状态，可被多个会话共用；但次级随机源非并发安全，
// 由调用方保证同一时刻只有一个回合在解析。
type Resolver struct {
	cfg       Config
	secondary rng.Generator
	draw      DrawFunc
	checkBet  bool
}

// NewResolver 创建回合解析器，secondary 为空时使用加密随机源
func NewResolver(cfg Config, secondary rng.Generator, opts ...Option) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if secondary == nil {
		secondary = rng.NewCryptoGenerator()
	}

	r := &Resolver{
		cfg:       cfg,
		secondary: secondary,
		draw:      (*fair.State).DeriveUniform,
		checkBet:  true,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Config 返回解析参数
func (r *Resolver) Config() Config {
	return r.cfg
}

func (r *Resolver) validateBet(bet decimal.Decimal) error {
	if !bet.IsPositive() {
		return apperrors.Newf(apperrors.ErrInvalidBet, "投注必须为正数: %s", bet)
	}
	if r.checkBet && !r.cfg.ValidBet(bet) {
		return apperrors.Newf(apperrors.ErrInvalidBet, "投注 %s 不在允许的档位中", bet)
	}
	return nil
}

// ResolveRound 解析一个回合
func (r *Resolver) ResolveRound(state *fair.State, bet decimal.Decimal) (*RoundResult, error) {
	if err := r.validateBet(bet); err != nil {
		return nil, err
	}
	if !state.Seeded() {
		return nil, apperrors.New(apperrors.ErrUnseededState)
	}

	u, err := r.draw(state)
	if err != nil {
		return nil, err
	}

	freeBefore := state.FreeSpins()
	result := &RoundResult{
		Bet:       bet,
		Cost:      bet,
		FreeRound: freeBefore > 0,
		Draw:      u,
	}
	if result.FreeRound {
		result.Cost = decimal.Zero
	}

	switch {
	case freeBefore == 0 && u < r.cfg.BonusTriggerRate:
		// 触发回合按常规倍率派彩，且不扣减免费次数
		state.SetFreeSpins(r.cfg.BonusFreeShots)
		result.Category = CategoryBonusTrigger
		result.Multiplier = r.cfg.RegularMultiplier

	default:
		winRate := r.cfg.BaseWinRate
		if freeBefore > 0 {
			winRate = r.cfg.BonusWinRate
		}

		switch {
		case u < winRate && u < r.cfg.JackpotRate:
			result.Category = CategoryJackpot
			result.Multiplier = r.cfg.JackpotMultiplier
		case u < winRate && freeBefore > 0:
			result.Category = CategoryScore
			result.Multiplier = r.pickBonusMultiplier()
		case u < winRate:
			result.Category = CategoryScore
			result.Multiplier = r.cfg.RegularMultiplier
		default:
			result.Category = CategoryMiss
			result.Multiplier = decimal.Zero
		}

		if freeBefore > 0 {
			state.SetFreeSpins(freeBefore - 1)
		}
	}

	result.Payout = bet.Mul(result.Multiplier)
	result.FreeSpinsRemaining = state.FreeSpins()
	result.Counter = state.Counter()
	return result, nil
}

// BuyBonus 购买奖励回合
// 不消耗抽取、不改变计数器，派彩为0，费用记录在 Cost 中由调用方结算。
func (r *Resolver) BuyBonus(state *fair.State, bet decimal.Decimal) (*RoundResult, error) {
	if err := r.validateBet(bet); err != nil {
		return nil, err
	}
	if state == nil {
		return nil, apperrors.New(apperrors.ErrUnseededState)
	}
	if remaining := state.FreeSpins(); remaining > 0 {
		return nil, apperrors.Newf(apperrors.ErrBonusAlreadyActive, "剩余免费次数: %d", remaining)
	}

	state.SetFreeSpins(r.cfg.BonusFreeShots)
	return &RoundResult{
		Category:           CategoryBonusTrigger,
		Multiplier:         decimal.Zero,
		Bet:                bet,
		Payout:             decimal.Zero,
		Cost:               r.cfg.BuyBonusCost(bet),
		BonusBought:        true,
		FreeSpinsRemaining: state.FreeSpins(),
		Counter:            state.Counter(),
	}, nil
}

func (r *Resolver) pickBonusMultiplier() decimal.Decimal {
	return r.cfg.BonusMultipliers[r.secondary.NextInt(0, len(r.cfg.BonusMultipliers))]
}
