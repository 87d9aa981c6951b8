package table

import (
	"sort"

	"github.com/shopspring/decimal"
)

// TierStat 单个倍率档位的统计
type TierStat struct {
	Multiplier  int64   `json:"multiplier" yaml:"multiplier"`
	Rows        int     `json:"rows" yaml:"rows"`
	Units       int64   `json:"units" yaml:"units"`
	Probability float64 `json:"probability" yaml:"probability"`
}

// Analysis 概率表分析结果
type Analysis struct {
	Rows               int        `json:"rows" yaml:"rows"`
	TotalUnits         int64      `json:"total_units" yaml:"total_units"`
	WeightedSum        int64      `json:"weighted_sum" yaml:"weighted_sum"`
	TheoreticalRTP     string     `json:"theoretical_rtp" yaml:"theoretical_rtp"` // 精确小数
	LossUnits          int64      `json:"loss_units" yaml:"loss_units"`
	LossProbability    float64    `json:"loss_probability" yaml:"loss_probability"`
	JackpotMultiplier  int64      `json:"jackpot_multiplier" yaml:"jackpot_multiplier"`
	JackpotUnits       int64      `json:"jackpot_units" yaml:"jackpot_units"`
	JackpotProbability float64    `json:"jackpot_probability" yaml:"jackpot_probability"`
	MaxMultiplier      int64      `json:"max_multiplier" yaml:"max_multiplier"`
	Tiers              []TierStat `json:"tiers" yaml:"tiers"`
}

// RTP 理论期望倍率（浮点近似，仅用于展示与比较）
func (a Analysis) RTP() float64 {
	if a.TotalUnits == 0 {
		return 0
	}
	return float64(a.WeightedSum) / float64(a.TotalUnits)
}

// Analyze 统计概率表的倍率分布
func Analyze(t *Table) Analysis {
	a := Analysis{
		Rows:              t.Len(),
		TotalUnits:        t.TotalUnits(),
		WeightedSum:       t.WeightedSum(),
		JackpotMultiplier: t.params.JackpotMultiplier,
	}

	if a.TotalUnits > 0 {
		a.TheoreticalRTP = decimal.NewFromInt(a.WeightedSum).
			DivRound(decimal.NewFromInt(a.TotalUnits), 8).String()
	}

	byMultiplier := make(map[int64]*TierStat)
	for _, o := range t.outcomes {
		s, ok := byMultiplier[o.Multiplier]
		if !ok {
			s = &TierStat{Multiplier: o.Multiplier}
			byMultiplier[o.Multiplier] = s
		}
		s.Rows++
		s.Units += o.Weight

		if o.Multiplier > a.MaxMultiplier {
			a.MaxMultiplier = o.Multiplier
		}
	}

	for _, s := range byMultiplier {
		if a.TotalUnits > 0 {
			s.Probability = float64(s.Units) / float64(a.TotalUnits)
		}
		a.Tiers = append(a.Tiers, *s)
	}
	sort.Slice(a.Tiers, func(i, j int) bool { return a.Tiers[i].Multiplier < a.Tiers[j].Multiplier })

	if s, ok := byMultiplier[0]; ok {
		a.LossUnits = s.Units
		a.LossProbability = s.Probability
	}
	if s, ok := byMultiplier[a.JackpotMultiplier]; ok && a.JackpotMultiplier > 0 {
		a.JackpotUnits = s.Units
		a.JackpotProbability = s.Probability
	}
	return a
}
