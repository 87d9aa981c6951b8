package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// GameSession 可验证公平的游戏会话
type GameSession struct {
	BaseModel
	SessionID      string          `gorm:"uniqueIndex;size:64;not null" json:"session_id"`
	ServerSeed     string          `gorm:"size:128;not null" json:"-"` // 关闭前不公开
	ServerSeedHash string          `gorm:"size:64;not null" json:"server_seed_hash"`
	ClientSeed     string          `gorm:"size:128;not null" json:"client_seed"`
	Counter        uint64          `gorm:"default:0" json:"counter"`
	FreeSpins      int             `gorm:"default:0" json:"free_spins"`
	Status         string          `gorm:"size:20;default:'active';index" json:"status"` // active, closed
	TotalRounds    int64           `gorm:"default:0" json:"total_rounds"`
	TotalBet       decimal.Decimal `gorm:"type:varchar(40)" json:"total_bet"`
	TotalWin       decimal.Decimal `gorm:"type:varchar(40)" json:"total_win"`
	PeakWin        decimal.Decimal `gorm:"type:varchar(40)" json:"peak_win"`
	ClosedAt       *time.Time      `json:"closed_at,omitempty"`
}

// RoundRecord 回合记录
type RoundRecord struct {
	ID                 uint            `gorm:"primaryKey" json:"id"`
	SessionID          string          `gorm:"size:64;not null;index:idx_round_session_counter,priority:1" json:"session_id"`
	Counter            uint64          `gorm:"not null;index:idx_round_session_counter,priority:2" json:"counter"`
	Category           string          `gorm:"size:20;not null;index" json:"category"`
	Multiplier         decimal.Decimal `gorm:"type:varchar(40)" json:"multiplier"`
	Bet                decimal.Decimal `gorm:"type:varchar(40)" json:"bet"`
	Cost               decimal.Decimal `gorm:"type:varchar(40)" json:"cost"`
	Payout             decimal.Decimal `gorm:"type:varchar(40)" json:"payout"`
	FreeRound          bool            `gorm:"default:false" json:"free_round"`
	BonusBought        bool            `gorm:"default:false" json:"bonus_bought"`
	FreeSpinsRemaining int             `gorm:"default:0" json:"free_spins_remaining"`
	Result             datatypes.JSON  `json:"result"`
	PlayedAt           time.Time       `json:"played_at"`
}
