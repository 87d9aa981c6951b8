package sim

import (
	"context"

	"go.uber.org/zap"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/rng"
	"github.com/wfunc/slot-math/internal/game/table"
	"github.com/wfunc/slot-math/internal/logger"
)

// Options 模拟选项
type Options struct {
	Mode             string
	Spins            int64
	ProgressInterval int64
	CountOutcomes    bool // 是否按行统计命中次数
	Logger           *zap.Logger
}

// Run 对概率表进行加权抽样模拟
func Run(ctx context.Context, t *table.Table, g rng.Generator, opts Options) (*Report, error) {
	if opts.Spins <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidParam, "模拟次数必须为正数: %d", opts.Spins)
	}
	sampler, err := NewSampler(t)
	if err != nil {
		return nil, err
	}
	log := opts.Logger
	if log == nil {
		log = logger.GetModuleLogger("sim")
	}

	analysis := table.Analyze(t)
	report := &Report{
		Mode:                opts.Mode,
		TheoreticalRTP:      analysis.RTP(),
		ExpectedJackpotRate: analysis.JackpotProbability,
		MultiplierCounts:    make(map[int64]int64),
	}
	if opts.CountOutcomes {
		report.OutcomeCounts = make(map[int]int64)
	}
	jackpot := t.Params().JackpotMultiplier

	log.Info("开始模拟",
		zap.String("mode", opts.Mode),
		zap.Int64("spins", opts.Spins),
		zap.Float64("theoretical_rtp", report.TheoreticalRTP),
	)

	for spin := int64(1); spin <= opts.Spins; spin++ {
		o := sampler.Sample(g)

		report.Spins++
		report.TotalBet++
		report.TotalWin += o.Multiplier
		report.MultiplierCounts[o.Multiplier]++
		if report.OutcomeCounts != nil {
			report.OutcomeCounts[o.ID]++
		}
		if o.Multiplier > report.MaxMultiplier {
			report.MaxMultiplier = o.Multiplier
		}
		if jackpot > 0 && o.Multiplier == jackpot {
			report.JackpotHits++
		}

		if opts.ProgressInterval > 0 && spin%opts.ProgressInterval == 0 {
			if err := ctx.Err(); err != nil {
				return nil, apperrors.Wrap(err, apperrors.ErrTimeout, "模拟被取消")
			}
			log.Info("模拟进度",
				zap.String("mode", opts.Mode),
				zap.Int64("spins", spin),
				zap.Float64("current_rtp", float64(report.TotalWin)/float64(report.TotalBet)),
			)
		}
	}

	report.finish()
	log.Info("模拟完成",
		zap.String("mode", opts.Mode),
		zap.Float64("empirical_rtp", report.EmpiricalRTP),
		zap.Float64("difference_pp", report.DifferencePP),
		zap.String("grade", string(report.Grade)),
		zap.Int64("jackpot_hits", report.JackpotHits),
	)
	return report, nil
}
