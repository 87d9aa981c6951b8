package shot

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
)

// Config 回合解析参数
type Config struct {
	BetLevels          []decimal.Decimal
	BaseWinRate        float64
	BonusWinRate       float64
	RegularMultiplier  decimal.Decimal
	BonusMultipliers   []decimal.Decimal
	JackpotMultiplier  decimal.Decimal
	BonusTriggerRate   float64
	BonusFreeShots     int
	BuyBonusMultiplier decimal.Decimal
	JackpotRate        float64
}

// DefaultConfig 默认回合参数
func DefaultConfig() Config {
	cfg, err := NewConfig(config.Default().Game.Round)
	if err != nil {
		panic(fmt.Sprintf("默认回合参数无效: %v", err))
	}
	return cfg
}

// NewConfig 由配置文件中的回合参数构建
func NewConfig(rc config.RoundConfig) (Config, error) {
	if err := rc.Validate(); err != nil {
		return Config{}, apperrors.Wrap(err, apperrors.ErrConfigValidate)
	}

	cfg := Config{
		BaseWinRate:        rc.BaseWinRate,
		BonusWinRate:       rc.BonusWinRate,
		RegularMultiplier:  decimal.NewFromFloat(rc.RegularMultiplier),
		JackpotMultiplier:  decimal.NewFromFloat(rc.JackpotMultiplier),
		BonusTriggerRate:   rc.BonusTriggerRate,
		BonusFreeShots:     rc.BonusFreeShots,
		BuyBonusMultiplier: decimal.NewFromFloat(rc.BuyBonusMultiplier),
		JackpotRate:        rc.JackpotRate,
	}
	for _, b := range rc.BetLevels {
		cfg.BetLevels = append(cfg.BetLevels, decimal.NewFromFloat(b))
	}
	for _, m := range rc.BonusMultipliers {
		cfg.BonusMultipliers = append(cfg.BonusMultipliers, decimal.NewFromFloat(m))
	}
	return cfg, nil
}

// Validate 校验参数
func (c Config) Validate() error {
	if len(c.BonusMultipliers) == 0 {
		return apperrors.New(apperrors.ErrConfigValidate, "bonus_multipliers 不能为空")
	}
	if c.BonusFreeShots <= 0 {
		return apperrors.New(apperrors.ErrConfigValidate, "bonus_free_shots 必须大于0")
	}
	if c.JackpotRate > c.BaseWinRate || c.JackpotRate > c.BonusWinRate {
		return apperrors.Newf(apperrors.ErrConfigValidate,
			"jackpot_rate(%v) 不能大于生效的中奖率", c.JackpotRate)
	}
	return nil
}

// ValidBet 投注是否在允许的档位中（未配置档位时接受任意正数）
func (c Config) ValidBet(bet decimal.Decimal) bool {
	if !bet.IsPositive() {
		return false
	}
	if len(c.BetLevels) == 0 {
		return true
	}
	for _, level := range c.BetLevels {
		if level.Equal(bet) {
			return true
		}
	}
	return false
}

// BuyBonusCost 购买奖励回合的费用
func (c Config) BuyBonusCost(bet decimal.Decimal) decimal.Decimal {
	return bet.Mul(c.BuyBonusMultiplier)
}
