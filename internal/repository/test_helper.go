package repository

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/slot-math/internal/database"
	"github.com/wfunc/slot-math/internal/models"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB 创建已迁移的内存测试数据库
func TestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	// 内存库每个连接相互独立，只保留一个连接
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.Migrate(db))

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// CreateTestTable 创建测试概率表（三行：亏损、命中、大奖）
func CreateTestTable(mode string) *models.MathTable {
	return &models.MathTable{
		BuildID:           uuid.NewString(),
		Mode:              mode,
		Rows:              3,
		TotalUnits:        10,
		TargetRTP:         "0.9",
		Cost:              "1",
		JackpotMultiplier: 5,
		JackpotWeight:     1,
		WeightedSum:       9,
		Checksum:          "test-checksum",
		Outcomes: []models.TableOutcome{
			{OutcomeID: 1, Weight: 6, Multiplier: 0},
			{OutcomeID: 2, Weight: 3, Multiplier: 1},
			{OutcomeID: 3, Weight: 1, Multiplier: 5},
		},
	}
}

// CreateTestSession 创建测试会话
func CreateTestSession() *models.GameSession {
	return &models.GameSession{
		SessionID:      uuid.NewString(),
		ServerSeed:     "test_server",
		ServerSeedHash: "9b85dae99f29f821fe25f45fafe6a373fbb263c92d18b5a9086cf1e2de2cab89",
		ClientSeed:     "test_client",
		Status:         models.SessionStatusActive,
		TotalBet:       decimal.Zero,
		TotalWin:       decimal.Zero,
		PeakWin:        decimal.Zero,
	}
}

// CreateTestRound 创建测试回合记录
func CreateTestRound(sessionID string, counter uint64, category string, bet, payout string) *models.RoundRecord {
	b := decimal.RequireFromString(bet)
	p := decimal.RequireFromString(payout)
	return &models.RoundRecord{
		SessionID:  sessionID,
		Counter:    counter,
		Category:   category,
		Multiplier: p.Div(b),
		Bet:        b,
		Cost:       b,
		Payout:     p,
		Result:     datatypes.JSON(`{"category":"` + category + `"}`),
		PlayedAt:   time.Now(),
	}
}

// AssertSession 验证会话
func AssertSession(t *testing.T, expected, actual *models.GameSession) {
	assert.Equal(t, expected.SessionID, actual.SessionID)
	assert.Equal(t, expected.ServerSeedHash, actual.ServerSeedHash)
	assert.Equal(t, expected.ClientSeed, actual.ClientSeed)
	assert.Equal(t, expected.Counter, actual.Counter)
	assert.Equal(t, expected.FreeSpins, actual.FreeSpins)
	assert.Equal(t, expected.Status, actual.Status)
	assert.True(t, expected.TotalBet.Equal(actual.TotalBet), "total_bet %s != %s", expected.TotalBet, actual.TotalBet)
	assert.True(t, expected.TotalWin.Equal(actual.TotalWin), "total_win %s != %s", expected.TotalWin, actual.TotalWin)
}
