package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, 10*time.Second, c.Server.ShutdownTimeout)
	assert.Equal(t, "sqlite", c.Database.Driver)
	assert.Equal(t, 30*time.Minute, c.Game.Session.Timeout)
	assert.Equal(t, time.Minute, c.Game.Session.CleanupInterval)
	assert.True(t, c.Game.Session.Persist)
	assert.Equal(t, 5, c.Game.Round.BonusFreeShots)
	assert.Equal(t, 100.0, c.Game.Round.BuyBonusMultiplier)
	assert.Contains(t, c.Game.Round.BetLevels, 1.0)
	assert.Equal(t, []string{"base", "bonus"}, c.Game.Modes())
	assert.Equal(t, int64(1000000), c.Game.Tables["base"].TotalUnits)
	assert.Equal(t, 10, c.Output.ZstdLevel)
}

func TestLoad_Overrides(t *testing.T) {
	vp := viper.New()
	SetDefaults(vp)
	vp.SetConfigType("yaml")
	require.NoError(t, vp.ReadConfig(strings.NewReader(`
server:
  port: 9090
game:
  round:
    base_win_rate: 0.3
  session:
    timeout: 5m
log:
  level: debug
`)))

	c, err := Load(vp)
	require.NoError(t, err)
	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 0.3, c.Game.Round.BaseWinRate)
	assert.Equal(t, 5*time.Minute, c.Game.Session.Timeout)
	assert.Equal(t, "debug", c.Log.Level)
	// 未覆盖的字段保持默认值
	assert.Equal(t, 0.40, c.Game.Round.BonusWinRate)
}

func TestLoad_Invalid(t *testing.T) {
	vp := viper.New()
	SetDefaults(vp)
	vp.Set("game.round.jackpot_rate", 0.5)

	_, err := Load(vp)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "jackpot_rate")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "默认配置有效",
			mutate: func(c *Config) {},
		},
		{
			name:    "投注档位为空",
			mutate:  func(c *Config) { c.Game.Round.BetLevels = nil },
			wantErr: "bet_levels",
		},
		{
			name:    "投注档位非递增",
			mutate:  func(c *Config) { c.Game.Round.BetLevels = []float64{1, 1} },
			wantErr: "严格递增",
		},
		{
			name:    "中奖率超出区间",
			mutate:  func(c *Config) { c.Game.Round.BonusWinRate = 1.5 },
			wantErr: "bonus_win_rate",
		},
		{
			name:    "大奖率大于奖励中奖率",
			mutate:  func(c *Config) { c.Game.Round.BonusWinRate = 0.0005 },
			wantErr: "jackpot_rate",
		},
		{
			name:    "免费次数为0",
			mutate:  func(c *Config) { c.Game.Round.BonusFreeShots = 0 },
			wantErr: "bonus_free_shots",
		},
		{
			name:    "奖励倍率为空",
			mutate:  func(c *Config) { c.Game.Round.BonusMultipliers = nil },
			wantErr: "bonus_multipliers",
		},
		{
			name:    "会话上限为负数",
			mutate:  func(c *Config) { c.Game.Session.MaxSessions = -1 },
			wantErr: "max_sessions",
		},
		{
			name: "概率表行数不足",
			mutate: func(c *Config) {
				tc := c.Game.Tables["bonus"]
				tc.Rows = 1
				c.Game.Tables["bonus"] = tc
			},
			wantErr: "bonus",
		},
		{
			name: "概率表扣费为0",
			mutate: func(c *Config) {
				tc := c.Game.Tables["base"]
				tc.Cost = 0
				c.Game.Tables["base"] = tc
			},
			wantErr: "cost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Default()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRoundConfig_Summary(t *testing.T) {
	r := Default().Game.Round
	summary := r.Summary()

	probs := summary["outcome_probabilities"].(map[string]float64)
	assert.InDelta(t, 0.75, probs["miss"], 1e-12)
	assert.Equal(t, 0.001, probs["jackpot"])

	bonus := summary["bonus_config"].(map[string]interface{})
	assert.Equal(t, 5, bonus["free_shots"])
	assert.Equal(t, 100.0, bonus["buy_cost_multiplier"])
}
