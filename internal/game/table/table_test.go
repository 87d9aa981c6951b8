package table

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
)

func baseParams() Params {
	return Params{
		Rows:              5000,
		TotalUnits:        1000000,
		TargetRTP:         decimal.RequireFromString("0.94"),
		JackpotMultiplier: 5000,
		JackpotWeight:     1,
	}
}

func assertInvariants(t *testing.T, tbl *Table) {
	t.Helper()
	p := tbl.Params()

	require.Equal(t, p.Rows, tbl.Len())
	assert.Equal(t, p.TotalUnits, tbl.TotalUnits())
	assert.Equal(t, p.TargetUnits(), tbl.WeightedSum())

	var jackpotRows int
	var loss int64
	for i := 0; i < tbl.Len(); i++ {
		o := tbl.At(i)
		assert.Equal(t, i+1, o.ID)
		assert.GreaterOrEqual(t, o.Weight, int64(0))
		if o.Multiplier == p.JackpotMultiplier {
			jackpotRows++
			assert.Equal(t, p.JackpotWeight, o.Weight)
		}
		if o.Multiplier == 0 {
			loss += o.Weight
		}
	}
	assert.Equal(t, 1, jackpotRows)
	assert.Greater(t, 2*loss, p.TotalUnits)
}

func TestBuild_FiveThousandRows(t *testing.T) {
	tbl, err := Build(baseParams())
	require.NoError(t, err)
	assertInvariants(t, tbl)

	assert.Equal(t, int64(940000), tbl.WeightedSum())

	// 亏损行在前
	assert.Equal(t, Outcome{ID: 1, Weight: 200, Multiplier: 0}, tbl.At(0))
	assert.Equal(t, Outcome{ID: 2501, Weight: 200, Multiplier: 0}, tbl.At(2500))
	// 然后是 base+1 权重的中奖行
	assert.Equal(t, Outcome{ID: 2502, Weight: 201, Multiplier: 1}, tbl.At(2501))
	// 大奖行在最后
	assert.Equal(t, Outcome{ID: 5000, Weight: 1, Multiplier: 5000}, tbl.At(4999))

	a := Analyze(tbl)
	assert.Equal(t, int64(500200), a.LossUnits)
	require.Len(t, a.Tiers, 4)
	assert.Equal(t, TierStat{Multiplier: 0, Rows: 2501, Units: 500200, Probability: 0.5002}, a.Tiers[0])
	assert.Equal(t, int64(1), a.Tiers[1].Multiplier)
	assert.Equal(t, 322, a.Tiers[1].Rows)
	assert.Equal(t, int64(64598), a.Tiers[1].Units)
	assert.Equal(t, int64(2), a.Tiers[2].Multiplier)
	assert.Equal(t, 2176, a.Tiers[2].Rows)
	assert.Equal(t, int64(435201), a.Tiers[2].Units)
	assert.Equal(t, int64(5000), a.Tiers[3].Multiplier)
	assert.Equal(t, 1, a.Tiers[3].Rows)
}

func TestBuild_Idempotent(t *testing.T) {
	first, err := Build(baseParams())
	require.NoError(t, err)
	second, err := Build(baseParams())
	require.NoError(t, err)

	assert.Equal(t, first.Outcomes(), second.Outcomes())
	assert.Equal(t, first.Checksum(), second.Checksum())

	other, err := Build(Params{
		Rows:              5000,
		TotalUnits:        1000000,
		TargetRTP:         decimal.RequireFromString("0.96"),
		JackpotMultiplier: 5000,
		JackpotWeight:     1,
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.Checksum(), other.Checksum())
}

func TestBuild_OutcomesIsCopy(t *testing.T) {
	tbl, err := Build(baseParams())
	require.NoError(t, err)

	rows := tbl.Outcomes()
	rows[0].Weight = 999999
	assert.Equal(t, int64(200), tbl.At(0).Weight)
	require.NoError(t, Verify(tbl))
}

func TestBuild_Feasible(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"目标0.96", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.96"), JackpotMultiplier: 5000, JackpotWeight: 1}},
		{"小表", Params{Rows: 100, TotalUnits: 1000, TargetRTP: decimal.RequireFromString("0.9"), JackpotMultiplier: 50, JackpotWeight: 1}},
		{"高期望", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("5"), JackpotMultiplier: 5000, JackpotWeight: 1}},
		{"大奖权重10", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 10}},
		{"大奖倍率与相邻档位冲突", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 2, JackpotWeight: 1}},
		{"大奖倍率为1", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 1, JackpotWeight: 1}},
		{"指定档位", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1, Tiers: []int64{10, 5, 2, 1}}},
		{"仅高档位", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1, Tiers: []int64{5, 10}}},
		{"只有亏损行和大奖", Params{Rows: 2, TotalUnits: 10, TargetRTP: decimal.RequireFromString("0.5"), JackpotMultiplier: 5, JackpotWeight: 1}},
		{"单一档位", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1, Tiers: []int64{2}}},
		{"亏损块需混入重行", Params{Rows: 4886, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.86"), JackpotMultiplier: 5000, JackpotWeight: 13}},
		{"单一档位且亏损块混入重行", Params{Rows: 4886, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.86"), JackpotMultiplier: 5000, JackpotWeight: 13, Tiers: []int64{2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Build(tt.params)
			require.NoError(t, err)
			assertInvariants(t, tbl)

			if len(tt.params.Tiers) > 0 {
				allowed := map[int64]bool{0: true, tt.params.JackpotMultiplier: true}
				for _, m := range tt.params.Tiers {
					allowed[m] = true
				}
				for _, o := range tbl.Outcomes() {
					assert.True(t, allowed[o.Multiplier], "倍率 %d 不在候选档位中", o.Multiplier)
				}
			}
		})
	}
}

func TestBuild_BonusModeDefaults(t *testing.T) {
	tc := config.Default().Game.Tables["bonus"]
	p := ParamsFromConfig(tc)
	assert.Equal(t, int64(94000000), p.TargetUnits())

	tbl, err := Build(p)
	require.NoError(t, err)
	assertInvariants(t, tbl)

	a := Analyze(tbl)
	assert.Equal(t, int64(500200), a.LossUnits)
	assert.Equal(t, int64(1000), a.JackpotUnits)
	assert.Equal(t, "94", a.TheoreticalRTP)
}

func TestBuild_Infeasible(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"全部为重行且余数不整除", Params{Rows: 1000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1}},
		{"小表无整数解", Params{Rows: 10, TotalUnits: 100, TargetRTP: decimal.RequireFromString("0.5"), JackpotMultiplier: 10, JackpotWeight: 1}},
		{"大奖超过目标", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.004"), JackpotMultiplier: 5000, JackpotWeight: 1}},
		{"档位与大奖倍率相同", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1, Tiers: []int64{1, 5000}}},
		{"档位为0", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1, Tiers: []int64{0, 2}}},
		{"行数不足", Params{Rows: 1, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1}},
		{"单位粒度不足", Params{Rows: 5000, TotalUnits: 1000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 1}},
		{"大奖权重为0", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 5000, JackpotWeight: 0}},
		{"大奖倍率为0", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("0.94"), JackpotMultiplier: 0, JackpotWeight: 1}},
		{"负目标", Params{Rows: 5000, TotalUnits: 1000000, TargetRTP: decimal.RequireFromString("-0.5"), JackpotMultiplier: 5000, JackpotWeight: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := Build(tt.params)
			assert.Nil(t, tbl)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrInfeasibleAllocation), "实际错误: %v", err)
		})
	}
}

func TestTargetUnits_Rounding(t *testing.T) {
	p := baseParams()
	p.TargetRTP = decimal.RequireFromString("0.9400005")
	assert.Equal(t, int64(940001), p.TargetUnits())

	p.TargetRTP = decimal.RequireFromString("0.9400004")
	assert.Equal(t, int64(940000), p.TargetUnits())

	p = ParamsFromConfig(config.TableConfig{Rows: 10, TotalUnits: 1000000, TargetRTP: 0.94, Cost: 1})
	assert.Equal(t, int64(940000), p.TargetUnits())
}

// tiny 手工构造的三行表：U=10，大奖 5x1
func tiny(target string, jackpotWeight int64) Params {
	return Params{
		Rows:              3,
		TotalUnits:        10,
		TargetRTP:         decimal.RequireFromString(target),
		JackpotMultiplier: 5,
		JackpotWeight:     jackpotWeight,
	}
}

func TestVerify_Violations(t *testing.T) {
	tests := []struct {
		name      string
		params    Params
		rows      []Outcome
		invariant string
		delta     int64
	}{
		{
			name:      "行数不符",
			params:    tiny("0.5", 1),
			rows:      []Outcome{{1, 9, 0}, {2, 1, 5}},
			invariant: InvariantRowShape,
			delta:     -1,
		},
		{
			name:      "编号不连续",
			params:    tiny("0.5", 1),
			rows:      []Outcome{{1, 6, 0}, {3, 3, 0}, {4, 1, 5}},
			invariant: InvariantRowShape,
			delta:     1,
		},
		{
			name:      "权重总和多1",
			params:    tiny("0.5", 1),
			rows:      []Outcome{{1, 7, 0}, {2, 3, 0}, {3, 1, 5}},
			invariant: InvariantWeightSum,
			delta:     1,
		},
		{
			name:      "期望值偏差",
			params:    tiny("0.6", 1),
			rows:      []Outcome{{1, 6, 0}, {2, 3, 0}, {3, 1, 5}},
			invariant: InvariantExpectedValue,
			delta:     -1,
		},
		{
			name:      "大奖权重不符",
			params:    tiny("0.5", 2),
			rows:      []Outcome{{1, 6, 0}, {2, 3, 0}, {3, 1, 5}},
			invariant: InvariantJackpotRow,
			delta:     -1,
		},
		{
			name:      "多个大奖行",
			params:    tiny("1", 1),
			rows:      []Outcome{{1, 8, 0}, {2, 1, 5}, {3, 1, 5}},
			invariant: InvariantJackpotRow,
			delta:     1,
		},
		{
			name:      "亏损未过半",
			params:    tiny("1", 1),
			rows:      []Outcome{{1, 4, 0}, {2, 5, 1}, {3, 1, 5}},
			invariant: InvariantMajorityLoss,
			delta:     -2,
		},
		{
			name:      "亏损恰好一半",
			params:    tiny("0.9", 1),
			rows:      []Outcome{{1, 5, 0}, {2, 4, 1}, {3, 1, 5}},
			invariant: InvariantMajorityLoss,
			delta:     -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := New(tt.params, tt.rows)
			assert.Nil(t, tbl)
			require.Error(t, err)
			assert.True(t, apperrors.Is(err, apperrors.ErrInvariantViolation))
			assert.True(t, apperrors.IsCritical(err))

			var v *Violation
			require.True(t, errors.As(err, &v))
			assert.Equal(t, tt.invariant, v.Invariant)
			assert.Equal(t, tt.delta, v.Delta)
		})
	}
}

func TestNew_Valid(t *testing.T) {
	tbl, err := New(tiny("0.5", 1), []Outcome{{1, 6, 0}, {2, 3, 0}, {3, 1, 5}})
	require.NoError(t, err)
	assert.Equal(t, 3, tbl.Len())

	built, err := Build(baseParams())
	require.NoError(t, err)
	loaded, err := New(built.Params(), built.Outcomes())
	require.NoError(t, err)
	assert.Equal(t, built.Checksum(), loaded.Checksum())
}

func TestAnalyze(t *testing.T) {
	tbl, err := Build(baseParams())
	require.NoError(t, err)

	a := Analyze(tbl)
	assert.Equal(t, 5000, a.Rows)
	assert.Equal(t, int64(1000000), a.TotalUnits)
	assert.Equal(t, int64(940000), a.WeightedSum)
	assert.Equal(t, "0.94", a.TheoreticalRTP)
	assert.InDelta(t, 0.94, a.RTP(), 1e-12)
	assert.Equal(t, int64(1), a.JackpotUnits)
	assert.InDelta(t, 1e-6, a.JackpotProbability, 1e-15)
	assert.Equal(t, int64(5000), a.MaxMultiplier)
	assert.InDelta(t, 0.5002, a.LossProbability, 1e-12)
}
