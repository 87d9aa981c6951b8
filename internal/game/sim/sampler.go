// Package sim 通过加权抽样验证概率表的理论期望值
package sim

import (
	"sort"

	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game/rng"
	"github.com/wfunc/slot-math/internal/game/table"
)

// Sampler 基于前缀和的加权抽样器
// 第i行占据半开区间 [prefix[i-1], prefix[i])，区间之间无缝隙、无重叠。
type Sampler struct {
	outcomes []table.Outcome
	prefix   []int64
	total    int64
}

// NewSampler 由概率表创建抽样器
func NewSampler(t *table.Table) (*Sampler, error) {
	return NewSamplerFromOutcomes(t.Outcomes())
}

// NewSamplerFromOutcomes 由行数据创建抽样器
func NewSamplerFromOutcomes(outcomes []table.Outcome) (*Sampler, error) {
	s := &Sampler{
		outcomes: append([]table.Outcome(nil), outcomes...),
		prefix:   make([]int64, len(outcomes)),
	}
	for i, o := range outcomes {
		if o.Weight < 0 {
			return nil, apperrors.Newf(apperrors.ErrInvalidTable, "第%d行权重为负数: %d", o.ID, o.Weight)
		}
		s.total += o.Weight
		s.prefix[i] = s.total
	}
	if s.total <= 0 {
		return nil, apperrors.New(apperrors.ErrInvalidTable, "权重总和为0")
	}
	return s, nil
}

// Total 权重总和
func (s *Sampler) Total() int64 { return s.total }

// Index 返回前缀和首个大于x的行下标，x 必须在 [0,Total) 内
func (s *Sampler) Index(x int64) int {
	return sort.Search(len(s.prefix), func(i int) bool { return s.prefix[i] > x })
}

// Pick 返回x落入的行
func (s *Sampler) Pick(x int64) table.Outcome {
	return s.outcomes[s.Index(x)]
}

// Sample 从随机源抽取一行
func (s *Sampler) Sample(g rng.Generator) table.Outcome {
	return s.Pick(g.Int63n(s.total))
}
