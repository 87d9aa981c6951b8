package game

import (
	"time"

	"github.com/wfunc/slot-math/internal/game/shot"
)

// SessionInfo 会话信息（不含服务端种子）
type SessionInfo struct {
	SessionID      string    `json:"session_id"`
	ServerSeedHash string    `json:"server_seed_hash"`
	ClientSeed     string    `json:"client_seed"`
	Counter        uint64    `json:"counter"`
	FreeSpins      int       `json:"free_spins"`
	Status         string    `json:"status"`
	TotalRounds    int64     `json:"total_rounds"`
	TotalBet       string    `json:"total_bet"`
	TotalWin       string    `json:"total_win"`
	PeakWin        string    `json:"peak_win"`
	RTP            string    `json:"rtp,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivity   time.Time `json:"last_activity"`
}

// SessionReveal 会话关闭后公开的信息
type SessionReveal struct {
	SessionInfo
	ServerSeed string `json:"server_seed"`
}

// OpenSessionRequest 创建会话请求
type OpenSessionRequest struct {
	ClientSeed string `json:"client_seed" binding:"max=128"`
}

// RoundRequest 回合请求
type RoundRequest struct {
	Bet string `json:"bet" binding:"required"`
}

// RoundResponse 回合响应
type RoundResponse struct {
	SessionID string            `json:"session_id"`
	Result    *shot.RoundResult `json:"result"`
}

// VerifyRequest 回合验证请求
type VerifyRequest struct {
	ServerSeed     string `json:"server_seed" binding:"required"`
	ServerSeedHash string `json:"server_seed_hash"`
	ClientSeed     string `json:"client_seed"`
	Counter        uint64 `json:"counter"`
}

// VerifyResponse 回合验证响应
type VerifyResponse struct {
	Draw     float64 `json:"draw"`
	Digest   string  `json:"digest"`
	Verified bool    `json:"verified"`
}
