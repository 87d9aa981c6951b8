package sim

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/rng"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/logger"
)

// RoundOptions 回合模拟选项
type RoundOptions struct {
	Rounds           int64
	ProgressInterval int64
	Logger           *zap.Logger
}

// RoundReport 回合模拟报告
type RoundReport struct {
	Rounds             int64                     `json:"rounds" yaml:"rounds"`
	FreeRounds         int64                     `json:"free_rounds" yaml:"free_rounds"`
	TotalBet           string                    `json:"total_bet" yaml:"total_bet"`
	TotalCost          string                    `json:"total_cost" yaml:"total_cost"`
	TotalWin           string                    `json:"total_win" yaml:"total_win"`
	RTP                float64                   `json:"rtp" yaml:"rtp"`           // 派彩 / 投注额
	CostRTP            float64                   `json:"cost_rtp" yaml:"cost_rtp"` // 派彩 / 实际扣费
	Outcomes           map[shot.Category]int64   `json:"outcomes" yaml:"outcomes"`
	OutcomePercentages map[shot.Category]float64 `json:"outcome_percentages" yaml:"outcome_percentages"`
	MaxWin             string                    `json:"max_win" yaml:"max_win"`
	MaxMultiplier      string                    `json:"max_multiplier" yaml:"max_multiplier"`
}

// SimulateRounds 通过回合解析器连续模拟多个回合，投注从档位中随机挑选
func SimulateRounds(ctx context.Context, r *shot.Resolver, state *fair.State, betPicker rng.Generator, opts RoundOptions) (*RoundReport, error) {
	if opts.Rounds <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "模拟回合数必须为正数: %d", opts.Rounds)
	}
	if betPicker == nil {
		betPicker = rng.NewCryptoGenerator()
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetModuleLogger("sim")
	}

	levels := r.Config().BetLevels
	if len(levels) == 0 {
		levels = []decimal.Decimal{decimal.NewFromInt(1)}
	}

	var (
		totalBet, totalCost, totalWin decimal.Decimal
		maxWin, maxMultiplier         decimal.Decimal
		freeRounds                    int64
	)
	outcomes := make(map[shot.Category]int64, len(shot.Categories))
	for _, c := range shot.Categories {
		outcomes[c] = 0
	}

	for round := int64(1); round <= opts.Rounds; round++ {
		bet := levels[betPicker.NextInt(0, len(levels))]

		res, err := r.ResolveRound(state, bet)
		if err != nil {
			return nil, err
		}

		totalBet = totalBet.Add(bet)
		totalCost = totalCost.Add(res.Cost)
		totalWin = totalWin.Add(res.Payout)
		outcomes[res.Category]++
		if res.FreeRound {
			freeRounds++
		}
		if res.Payout.GreaterThan(maxWin) {
			maxWin = res.Payout
		}
		if res.Multiplier.GreaterThan(maxMultiplier) {
			maxMultiplier = res.Multiplier
		}

		if opts.ProgressInterval > 0 && round%opts.ProgressInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrTimeout, "模拟被取消")
			}
			log.Info("回合模拟进度", zap.Int64("rounds", round), zap.String("total_win", totalWin.String()))
		}
	}

	report := &RoundReport{
		Rounds:             opts.Rounds,
		FreeRounds:         freeRounds,
		TotalBet:           totalBet.String(),
		TotalCost:          totalCost.String(),
		TotalWin:           totalWin.String(),
		Outcomes:           outcomes,
		OutcomePercentages: make(map[shot.Category]float64, len(outcomes)),
		MaxWin:             maxWin.String(),
		MaxMultiplier:      maxMultiplier.String(),
	}
	if totalBet.IsPositive() {
		report.RTP = totalWin.Div(totalBet).InexactFloat64()
	}
	if totalCost.IsPositive() {
		report.CostRTP = totalWin.Div(totalCost).InexactFloat64()
	}
	for c, n := range outcomes {
		report.OutcomePercentages[c] = float64(n) / float64(opts.Rounds)
	}

	log.Info("回合模拟完成",
		zap.Int64("rounds", report.Rounds),
		zap.Float64("rtp", report.RTP),
		zap.String("max_win", report.MaxWin),
	)
	return report, nil
}
