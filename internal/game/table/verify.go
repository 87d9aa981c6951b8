package table

import (
	"fmt"
)

// Verify 校验概率表的全部不变量
//  1. 权重总和等于总单位数
//  2. 加权倍率总和等于 round(target_rtp × U)
//  3. 恰好一行使用大奖倍率，且权重等于大奖单位数
//  4. 倍率为0的权重严格大于 U/2
func Verify(t *Table) error {
	p := t.params

	if len(t.outcomes) != p.Rows {
		return violation(InvariantRowShape, int64(len(t.outcomes)-p.Rows),
			fmt.Sprintf("行数 %d, 期望 %d", len(t.outcomes), p.Rows))
	}
	for i, o := range t.outcomes {
		if o.ID != i+1 {
			return violation(InvariantRowShape, int64(o.ID-(i+1)),
				fmt.Sprintf("第%d行编号为 %d", i+1, o.ID))
		}
		if o.Weight < 0 || o.Multiplier < 0 {
			return violation(InvariantRowShape, o.Weight,
				fmt.Sprintf("第%d行存在负数: weight=%d multiplier=%d", o.ID, o.Weight, o.Multiplier))
		}
	}

	if sum := t.TotalUnits(); sum != p.TotalUnits {
		return violation(InvariantWeightSum, sum-p.TotalUnits, "")
	}

	if sum, target := t.WeightedSum(), p.TargetUnits(); sum != target {
		return violation(InvariantExpectedValue, sum-target, "")
	}

	var jackpotRows int
	var jackpotWeight int64
	var lossUnits int64
	for _, o := range t.outcomes {
		switch o.Multiplier {
		case p.JackpotMultiplier:
			jackpotRows++
			jackpotWeight = o.Weight
		case 0:
			lossUnits += o.Weight
		}
	}
	if jackpotRows != 1 {
		return violation(InvariantJackpotRow, int64(jackpotRows-1),
			fmt.Sprintf("大奖行数 %d", jackpotRows))
	}
	if jackpotWeight != p.JackpotWeight {
		return violation(InvariantJackpotRow, jackpotWeight-p.JackpotWeight, "大奖权重不符")
	}

	// 2·loss > U 等价于 loss > U/2，避免整数除法截断
	if 2*lossUnits <= p.TotalUnits {
		need := p.TotalUnits/2 + 1
		return violation(InvariantMajorityLoss, lossUnits-need, "")
	}

	return nil
}
