package shot

import (
	"github.com/shopspring/decimal"
)

// Category 回合结果类别
type Category string

const (
	CategoryMiss         Category = "miss"          // 未命中
	CategoryScore        Category = "score"         // 命中
	CategoryBonusTrigger Category = "bonus_trigger" // 触发奖励回合
	CategoryJackpot      Category = "jackpot"       // 大奖
)

// Categories 全部类别（按固定顺序，便于统计输出）
var Categories = []Category{CategoryMiss, CategoryScore, CategoryBonusTrigger, CategoryJackpot}

// IsWin 是否为派彩类别
func (c Category) IsWin() bool {
	return c == CategoryScore || c == CategoryJackpot || c == CategoryBonusTrigger
}

// RoundResult 单回合结果（生成后不可修改）
type RoundResult struct {
	Category           Category        `json:"category"`
	Multiplier         decimal.Decimal `json:"multiplier"`
	Bet                decimal.Decimal `json:"bet"`
	Payout             decimal.Decimal `json:"payout"`
	Cost               decimal.Decimal `json:"cost"` // 本回合实际扣除的金额
	FreeRound          bool            `json:"free_round"`
	BonusBought        bool            `json:"bonus_bought,omitempty"`
	FreeSpinsRemaining int             `json:"free_spins_remaining"`
	Counter            uint64          `json:"counter"` // 回合结束后的计数器
	Draw               float64         `json:"draw"`    // 本回合使用的均匀值
}

// Net 本回合净输赢
func (r *RoundResult) Net() decimal.Decimal {
	return r.Payout.Sub(r.Cost)
}

// ToJSON 转换为JSON格式
func (r *RoundResult) ToJSON() map[string]interface{} {
	return map[string]interface{}{
		"category":             r.Category,
		"multiplier":           r.Multiplier.String(),
		"bet":                  r.Bet.String(),
		"payout":               r.Payout.String(),
		"cost":                 r.Cost.String(),
		"free_round":           r.FreeRound,
		"bonus_bought":         r.BonusBought,
		"free_spins_remaining": r.FreeSpinsRemaining,
		"counter":              r.Counter,
		"draw":                 r.Draw,
	}
}
