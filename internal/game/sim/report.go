package sim

import (
	"math"
)

// Grade 模拟精度评级
type Grade string

const (
	GradeExcellent      Grade = "EXCELLENT"
	GradeGood           Grade = "GOOD"
	GradeNeedsAttention Grade = "NEEDS_ATTENTION"
)

// GradeDifference 按经验RTP与理论RTP的差（百分点）评级
func GradeDifference(empirical, theoretical float64) Grade {
	diff := math.Abs(empirical-theoretical) * 100
	switch {
	case diff < 0.1:
		return GradeExcellent
	case diff < 0.5:
		return GradeGood
	default:
		return GradeNeedsAttention
	}
}

// Report 概率表模拟报告（每次投注1单位）
type Report struct {
	Mode                string          `json:"mode,omitempty" yaml:"mode,omitempty"`
	Spins               int64           `json:"spins" yaml:"spins"`
	TotalBet            int64           `json:"total_bet" yaml:"total_bet"`
	TotalWin            int64           `json:"total_win" yaml:"total_win"`
	EmpiricalRTP        float64         `json:"empirical_rtp" yaml:"empirical_rtp"`
	TheoreticalRTP      float64         `json:"theoretical_rtp" yaml:"theoretical_rtp"`
	DifferencePP        float64         `json:"difference_pp" yaml:"difference_pp"` // 百分点
	Grade               Grade           `json:"grade" yaml:"grade"`
	MaxMultiplier       int64           `json:"max_multiplier" yaml:"max_multiplier"`
	JackpotHits         int64           `json:"jackpot_hits" yaml:"jackpot_hits"`
	JackpotRate         float64         `json:"jackpot_rate" yaml:"jackpot_rate"`
	ExpectedJackpotRate float64         `json:"expected_jackpot_rate" yaml:"expected_jackpot_rate"`
	MultiplierCounts    map[int64]int64 `json:"multiplier_counts" yaml:"multiplier_counts"`
	OutcomeCounts       map[int]int64   `json:"outcome_counts,omitempty" yaml:"outcome_counts,omitempty"`
}

func (r *Report) finish() {
	if r.TotalBet > 0 {
		r.EmpiricalRTP = float64(r.TotalWin) / float64(r.TotalBet)
	}
	if r.Spins > 0 {
		r.JackpotRate = float64(r.JackpotHits) / float64(r.Spins)
	}
	r.DifferencePP = (r.EmpiricalRTP - r.TheoreticalRTP) * 100
	r.Grade = GradeDifference(r.EmpiricalRTP, r.TheoreticalRTP)
}
