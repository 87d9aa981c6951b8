package table

import (
	"sort"
)

// layout 单位粒度：除大奖行外每行分配 base 或 base+1 个单位
type layout struct {
	rows  int   // 非大奖行数
	base  int64 // 轻行权重
	heavy int   // 权重为 base+1 的行数
	light int   // 权重为 base 的行数
}

// allocation 一个可行解
type allocation struct {
	lossLight int
	lossHeavy int
	lo, hi    int64
	heavyHi   int // 重行中使用高档倍率的行数
	lightHi   int // 轻行中使用高档倍率的行数
	winHeavy  int
	winLight  int
}

// Build 按参数构建精确期望值的概率表
//
// 行顺序固定：亏损行在前（轻行在重行之前），然后是重行中奖行、轻行中奖行，
// 最后是大奖行；每组内部低档倍率在前。相同参数总是得到相同的表。
func Build(p Params) (*Table, error) {
	tiers, err := validateParams(p)
	if err != nil {
		return nil, err
	}

	target := p.TargetUnits()
	residual := target - p.JackpotWeight*p.JackpotMultiplier
	if residual < 0 {
		return nil, infeasible("大奖期望 %d 已超过目标 %d", p.JackpotWeight*p.JackpotMultiplier, target)
	}

	l := layout{rows: p.Rows - 1}
	remaining := p.TotalUnits - p.JackpotWeight
	l.base = remaining / int64(l.rows)
	if l.base == 0 {
		return nil, infeasible("单位粒度不足: %d 个单位无法分配给 %d 行", remaining, l.rows)
	}
	l.heavy = int(remaining % int64(l.rows))
	l.light = l.rows - l.heavy

	alloc, ok := solve(l, p.TotalUnits, residual, p.JackpotMultiplier, tiers)
	if !ok {
		return nil, infeasible("行数=%d 单位=%d 目标=%d 大奖=%dx%d 无整数解",
			p.Rows, p.TotalUnits, target, p.JackpotMultiplier, p.JackpotWeight)
	}

	t := &Table{
		params:   p,
		outcomes: assign(l, alloc, p),
	}
	if err := Verify(t); err != nil {
		return nil, err
	}
	return t, nil
}

func validateParams(p Params) ([]int64, error) {
	switch {
	case p.Rows < 2:
		return nil, infeasible("行数至少为2: %d", p.Rows)
	case p.TotalUnits <= 0:
		return nil, infeasible("总单位数必须为正数: %d", p.TotalUnits)
	case p.JackpotMultiplier <= 0:
		return nil, infeasible("大奖倍率必须为正数: %d", p.JackpotMultiplier)
	case p.JackpotWeight <= 0 || p.JackpotWeight >= p.TotalUnits:
		return nil, infeasible("大奖单位数必须在(0,%d)区间: %d", p.TotalUnits, p.JackpotWeight)
	case p.TargetRTP.IsNegative():
		return nil, infeasible("目标RTP不能为负数: %s", p.TargetRTP)
	}

	if len(p.Tiers) == 0 {
		return nil, nil
	}
	seen := make(map[int64]bool, len(p.Tiers))
	tiers := make([]int64, 0, len(p.Tiers))
	for _, m := range p.Tiers {
		if m < 1 || m == p.JackpotMultiplier {
			return nil, infeasible("中奖倍率档位必须≥1且不同于大奖倍率: %d", m)
		}
		if !seen[m] {
			seen[m] = true
			tiers = append(tiers, m)
		}
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i] < tiers[j] })
	return tiers, nil
}

// solve 搜索亏损块的轻重行组合与中奖档位，直到找到整数解
//
// 外层按亏损块中的重行数递增（+1 单位优先留给中奖行），内层按轻行数递增，
// 从满足亏损权重 > U/2 的最小值开始。遍历全部组合后仍无解才返回 false。
func solve(l layout, totalUnits, residual, jackpot int64, tiers []int64) (allocation, bool) {
	var maxTier int64
	if len(tiers) > 0 {
		maxTier = tiers[len(tiers)-1]
	}

	for lossHeavy := 0; lossHeavy <= l.heavy; lossHeavy++ {
		for lossLight := minLossLight(l, totalUnits, lossHeavy); lossLight <= l.light; lossLight++ {
			winHeavy := l.heavy - lossHeavy
			winLight := l.light - lossLight
			winUnits := int64(winHeavy)*(l.base+1) + int64(winLight)*l.base

			a := allocation{
				lossLight: lossLight,
				lossHeavy: lossHeavy,
				winHeavy:  winHeavy,
				winLight:  winLight,
			}
			if winUnits == 0 {
				if residual == 0 {
					return a, true
				}
				break
			}
			// 中奖单位只会继续减少
			if maxTier > 0 && maxTier*winUnits < residual {
				break
			}

			if pair, heavyHi, lightHi, ok := fitWinBlock(l.base, winHeavy, winLight, winUnits, residual, jackpot, tiers); ok {
				a.lo, a.hi = pair[0], pair[1]
				a.heavyHi, a.lightHi = heavyHi, lightHi
				return a, true
			}
		}
	}
	return allocation{}, false
}

// minLossLight 亏损块含 lossHeavy 个重行时，使亏损权重 > U/2 所需的最少轻行数
func minLossLight(l layout, totalUnits int64, lossHeavy int) int {
	need := totalUnits - 2*int64(lossHeavy)*(l.base+1)
	if need < 0 {
		return 0
	}
	n := need/(2*l.base) + 1
	if n > int64(l.light)+1 {
		return l.light + 1
	}
	return int(n)
}

// fitWinBlock 为给定的中奖块选出倍率档位及高档行数
func fitWinBlock(base int64, winHeavy, winLight int, winUnits, residual, jackpot int64, tiers []int64) ([2]int64, int, int, bool) {
	for _, pair := range candidatePairs(residual, winUnits, tiers) {
		lo, hi := pair[0], pair[1]
		if lo < 1 || lo == jackpot || hi == jackpot {
			continue
		}
		if lo*winUnits > residual || hi*winUnits < residual {
			continue
		}
		heavyHi, lightHi, ok := splitTier(residual-lo*winUnits, hi-lo, base, winHeavy, winLight)
		if ok {
			return pair, heavyHi, lightHi, true
		}
	}
	return [2]int64{}, 0, 0, false
}

// candidatePairs 候选的(低档, 高档)倍率组合
func candidatePairs(residual, winUnits int64, tiers []int64) [][2]int64 {
	if len(tiers) == 0 {
		// 浮点仅用于确定初始档位，整数校验在 splitTier 中完成
		lo := int64(float64(residual) / float64(winUnits))
		for lo*winUnits > residual {
			lo--
		}
		for (lo+1)*winUnits <= residual {
			lo++
		}
		return [][2]int64{{lo, lo + 1}, {lo - 1, lo + 1}, {lo, lo + 2}, {lo - 1, lo + 2}}
	}

	pairs := make([][2]int64, 0, len(tiers)*(len(tiers)+1)/2)
	for gap := 0; gap < len(tiers); gap++ {
		for i := 0; i+gap < len(tiers); i++ {
			pairs = append(pairs, [2]int64{tiers[i], tiers[i+gap]})
		}
	}
	return pairs
}

// splitTier 求解 heavyHi·(b+1) + lightHi·b == excess/step
// 其中 0 ≤ heavyHi ≤ winHeavy，0 ≤ lightHi ≤ winLight
func splitTier(excess, step, b int64, winHeavy, winLight int) (int, int, bool) {
	if step == 0 {
		return 0, 0, excess == 0
	}
	if excess%step != 0 {
		return 0, 0, false
	}
	k := excess / step
	if k == 0 {
		return 0, 0, true
	}

	// k = t·b + heavyHi，t = heavyHi + lightHi
	hW, lW := int64(winHeavy), int64(winLight)
	tMax := min64(k/b, (lW+k)/(b+1))
	tMin := max64(ceilDiv(k, b+1), ceilDiv(k-hW, b))
	if tMin < 0 {
		tMin = 0
	}
	if tMin > tMax {
		return 0, 0, false
	}

	t := tMax
	heavyHi := k - t*b
	lightHi := t - heavyHi
	return int(heavyHi), int(lightHi), true
}

// assign 按固定顺序写出各行
func assign(l layout, a allocation, p Params) []Outcome {
	outcomes := make([]Outcome, 0, p.Rows)
	add := func(n int, weight, multiplier int64) {
		for i := 0; i < n; i++ {
			outcomes = append(outcomes, Outcome{
				ID:         len(outcomes) + 1,
				Weight:     weight,
				Multiplier: multiplier,
			})
		}
	}

	add(a.lossLight, l.base, 0)
	add(a.lossHeavy, l.base+1, 0)
	add(a.winHeavy-a.heavyHi, l.base+1, a.lo)
	add(a.heavyHi, l.base+1, a.hi)
	add(a.winLight-a.lightHi, l.base, a.lo)
	add(a.lightHi, l.base, a.hi)
	add(1, p.JackpotWeight, p.JackpotMultiplier)

	return outcomes
}

func ceilDiv(x, d int64) int64 {
	if x > 0 {
		return (x + d - 1) / d
	}
	return x / d
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
