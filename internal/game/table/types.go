// Package table 构建并校验精确期望值的离散概率表
//
// 概率以整数单位表示（通常为一百万单位，即PPM），构建全程使用整数运算，
// 浮点数只用于挑选初始倍率档位。
package table

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
)

// Outcome 概率表中的一行
type Outcome struct {
	ID         int   `json:"id" yaml:"id"`
	Weight     int64 `json:"weight" yaml:"weight"`
	Multiplier int64 `json:"multiplier" yaml:"multiplier"`
}

// Params 构建参数
type Params struct {
	Rows              int             `json:"rows" yaml:"rows"`
	TotalUnits        int64           `json:"total_units" yaml:"total_units"`
	TargetRTP         decimal.Decimal `json:"target_rtp" yaml:"target_rtp"` // 目标期望倍率
	JackpotMultiplier int64           `json:"jackpot_multiplier" yaml:"jackpot_multiplier"`
	JackpotWeight     int64           `json:"jackpot_weight" yaml:"jackpot_weight"`
	Tiers             []int64         `json:"tiers,omitempty" yaml:"tiers,omitempty"` // 候选中奖倍率，空则使用相邻整数
}

// ParamsFromConfig 由模式配置生成构建参数
// 目标期望倍率 = target_rtp × cost，购买模式的倍率相对基础投注计算。
func ParamsFromConfig(tc config.TableConfig) Params {
	return Params{
		Rows:              tc.Rows,
		TotalUnits:        tc.TotalUnits,
		TargetRTP:         decimal.NewFromFloat(tc.TargetRTP).Mul(decimal.NewFromFloat(tc.Cost)),
		JackpotMultiplier: tc.JackpotMultiplier,
		JackpotWeight:     tc.JackpotWeight,
		Tiers:             append([]int64(nil), tc.Tiers...),
	}
}

// TargetUnits 目标加权倍率总和 round(target_rtp × U)
func (p Params) TargetUnits() int64 {
	return p.TargetRTP.Mul(decimal.NewFromInt(p.TotalUnits)).Round(0).IntPart()
}

// Table 构建完成的概率表（不可修改）
type Table struct {
	params   Params
	outcomes []Outcome
}

// New 由已有行数据创建概率表并校验全部不变量（用于从CSV或数据库加载）
func New(params Params, outcomes []Outcome) (*Table, error) {
	t := &Table{
		params:   params,
		outcomes: append([]Outcome(nil), outcomes...),
	}
	if err := Verify(t); err != nil {
		return nil, err
	}
	return t, nil
}

// Params 构建参数
func (t *Table) Params() Params { return t.params }

// Len 行数
func (t *Table) Len() int { return len(t.outcomes) }

// At 第i行（从0开始）
func (t *Table) At(i int) Outcome { return t.outcomes[i] }

// Outcomes 返回全部行的副本
func (t *Table) Outcomes() []Outcome {
	return append([]Outcome(nil), t.outcomes...)
}

// TotalUnits 权重总和
func (t *Table) TotalUnits() int64 {
	var sum int64
	for _, o := range t.outcomes {
		sum += o.Weight
	}
	return sum
}

// WeightedSum 加权倍率总和
func (t *Table) WeightedSum() int64 {
	var sum int64
	for _, o := range t.outcomes {
		sum += o.Weight * o.Multiplier
	}
	return sum
}

// Checksum 行数据的SHA-256摘要，相同参数构建的表摘要相同
func (t *Table) Checksum() string {
	h := sha256.New()
	buf := make([]byte, 0, 64)
	for _, o := range t.outcomes {
		buf = buf[:0]
		buf = strconv.AppendInt(buf, int64(o.ID), 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, o.Weight, 10)
		buf = append(buf, ',')
		buf = strconv.AppendInt(buf, o.Multiplier, 10)
		buf = append(buf, '\n')
		h.Write(buf)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// 不变量名称
const (
	InvariantRowShape      = "row_shape"
	InvariantWeightSum     = "weight_sum"
	InvariantExpectedValue = "expected_value"
	InvariantJackpotRow    = "jackpot_row"
	InvariantMajorityLoss  = "majority_loss"
)

// Violation 不变量校验失败的诊断信息
type Violation struct {
	Invariant string
	Delta     int64 // 实际值与期望值的差（单位）
	Detail    string
}

func (v *Violation) Error() string {
	if v.Detail != "" {
		return v.Invariant + ": 偏差 " + strconv.FormatInt(v.Delta, 10) + " 单位 (" + v.Detail + ")"
	}
	return v.Invariant + ": 偏差 " + strconv.FormatInt(v.Delta, 10) + " 单位"
}

func violation(invariant string, delta int64, detail string) error {
	return apperrors.Wrap(&Violation{Invariant: invariant, Delta: delta, Detail: detail},
		apperrors.ErrInvariantViolation)
}

func infeasible(format string, args ...interface{}) error {
	return apperrors.Newf(apperrors.ErrInfeasibleAllocation, format, args...)
}
