package models

// MathTable 已构建并校验通过的概率表
type MathTable struct {
	BaseModel
	BuildID           string `gorm:"uniqueIndex;size:64;not null" json:"build_id"`
	Mode              string `gorm:"size:32;not null;index" json:"mode"`
	Rows              int    `gorm:"not null" json:"rows"`
	TotalUnits        int64  `gorm:"not null" json:"total_units"`
	TargetRTP         string `gorm:"size:32;not null" json:"target_rtp"`
	Cost              string `gorm:"size:32;not null" json:"cost"`
	JackpotMultiplier int64  `json:"jackpot_multiplier"`
	JackpotWeight     int64  `json:"jackpot_weight"`
	WeightedSum       int64  `json:"weighted_sum"`
	Checksum          string `gorm:"size:64;index" json:"checksum"`
	Active            bool   `gorm:"default:false" json:"active"`

	// 关联
	Outcomes []TableOutcome `gorm:"foreignKey:TableID" json:"outcomes,omitempty"`
}

// TableOutcome 概率表的一行
type TableOutcome struct {
	ID         uint  `gorm:"primaryKey" json:"-"`
	TableID    uint  `gorm:"not null;index" json:"-"`
	OutcomeID  int   `gorm:"not null" json:"id"`
	Weight     int64 `gorm:"not null" json:"weight"`
	Multiplier int64 `gorm:"not null" json:"multiplier"`
}
