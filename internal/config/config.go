package config

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config 全局配置结构体
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	WebSocket  WebSocketConfig  `mapstructure:"websocket"`
	Game       GameConfig       `mapstructure:"game"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Output     OutputConfig     `mapstructure:"output"`
	Log        LogConfig        `mapstructure:"log"`
	Security   SecurityConfig   `mapstructure:"security"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// WebSocketConfig WebSocket配置
type WebSocketConfig struct {
	Path            string        `mapstructure:"path"`
	ReadBufferSize  int           `mapstructure:"read_buffer_size"`
	WriteBufferSize int           `mapstructure:"write_buffer_size"`
	MaxMessageSize  int64         `mapstructure:"max_message_size"`
	PongTimeout     time.Duration `mapstructure:"pong_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
}

// GameConfig 游戏配置
type GameConfig struct {
	Name    string                 `mapstructure:"name"`
	Round   RoundConfig            `mapstructure:"round"`
	Tables  map[string]TableConfig `mapstructure:"tables"`
	Session SessionConfig          `mapstructure:"session"`
}

// SessionConfig 会话管理配置
type SessionConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxSessions     int           `mapstructure:"max_sessions"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	Persist         bool          `mapstructure:"persist"` // 会话与回合写入数据库
}

// RoundConfig 回合参数（只读，由回合解析器消费）
type RoundConfig struct {
	BetLevels          []float64 `mapstructure:"bet_levels"`
	BaseWinRate        float64   `mapstructure:"base_win_rate"`
	BonusWinRate       float64   `mapstructure:"bonus_win_rate"`
	RegularMultiplier  float64   `mapstructure:"regular_multiplier"`
	BonusMultipliers   []float64 `mapstructure:"bonus_multipliers"`
	JackpotMultiplier  float64   `mapstructure:"jackpot_multiplier"`
	BonusTriggerRate   float64   `mapstructure:"bonus_trigger_rate"`
	BonusFreeShots     int       `mapstructure:"bonus_free_shots"`
	BuyBonusMultiplier float64   `mapstructure:"buy_bonus_multiplier"`
	JackpotRate        float64   `mapstructure:"jackpot_rate"`
}

// TableConfig 单个模式的概率表构建参数
type TableConfig struct {
	Rows              int     `mapstructure:"rows"`
	TotalUnits        int64   `mapstructure:"total_units"`
	TargetRTP         float64 `mapstructure:"target_rtp"`
	Cost              float64 `mapstructure:"cost"`
	JackpotMultiplier int64   `mapstructure:"jackpot_multiplier"`
	JackpotWeight     int64   `mapstructure:"jackpot_weight"`
	Tiers             []int64 `mapstructure:"tiers"`
}

// SimulationConfig 模拟验证配置
type SimulationConfig struct {
	Spins            int    `mapstructure:"spins"`
	Rounds           int    `mapstructure:"rounds"`
	ProgressInterval int    `mapstructure:"progress_interval"`
	Seed             string `mapstructure:"seed"`
	ServerSeed       string `mapstructure:"server_seed"`
}

// OutputConfig 数学包输出配置
type OutputConfig struct {
	Dir       string `mapstructure:"dir"`
	ZstdLevel int    `mapstructure:"zstd_level"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level   string            `mapstructure:"level"`
	Format  string            `mapstructure:"format"`
	Output  string            `mapstructure:"output"`
	File    LogFileConfig     `mapstructure:"file"`
	Modules map[string]string `mapstructure:"modules"`
}

// LogFileConfig 日志文件配置
type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxAge     int    `mapstructure:"max_age"`
	MaxBackups int    `mapstructure:"max_backups"`
	Compress   bool   `mapstructure:"compress"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	JWT JWTConfig `mapstructure:"jwt"`
}

// JWTConfig JWT配置
type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

var (
	cfg  *Config
	once sync.Once
	mu   sync.RWMutex
	v    *viper.Viper
)

// Init 初始化配置
func Init(configPath string) error {
	var err error
	once.Do(func() {
		v = viper.New()

		if configPath != "" {
			v.SetConfigFile(configPath)
		} else {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath("./config")
			v.AddConfigPath(".")
		}

		v.SetEnvPrefix("SLOT_MATH")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		SetDefaults(v)

		if err = v.ReadInConfig(); err != nil {
			// 配置文件不存在时使用默认配置
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return
			}
			err = nil
		}

		loaded := &Config{}
		if err = v.Unmarshal(loaded); err != nil {
			return
		}
		if err = loaded.Validate(); err != nil {
			return
		}
		cfg = loaded
	})

	return err
}

// Load 从指定的viper实例解析配置（不修改全局状态）
func Load(vp *viper.Viper) (*Config, error) {
	c := &Config{}
	if err := vp.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Default 返回仅包含默认值的配置
func Default() *Config {
	vp := viper.New()
	SetDefaults(vp)
	c, err := Load(vp)
	if err != nil {
		panic(fmt.Sprintf("默认配置无效: %v", err))
	}
	return c
}

// SetDefaults 设置默认配置值
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "development")
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "./data/slot-math.db")
	v.SetDefault("database.max_idle_conns", 10)
	v.SetDefault("database.max_open_conns", 100)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_buffer_size", 1024)
	v.SetDefault("websocket.write_buffer_size", 1024)
	v.SetDefault("websocket.max_message_size", 8192)
	v.SetDefault("websocket.pong_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")

	// 回合参数
	v.SetDefault("game.name", "full_court")
	v.SetDefault("game.round.bet_levels", []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
	v.SetDefault("game.round.base_win_rate", 0.25)
	v.SetDefault("game.round.bonus_win_rate", 0.40)
	v.SetDefault("game.round.regular_multiplier", 10.0)
	v.SetDefault("game.round.bonus_multipliers", []float64{15.0, 25.0})
	v.SetDefault("game.round.jackpot_multiplier", 5000.0)
	v.SetDefault("game.round.bonus_trigger_rate", 0.05)
	v.SetDefault("game.round.bonus_free_shots", 5)
	v.SetDefault("game.round.buy_bonus_multiplier", 100.0)
	v.SetDefault("game.round.jackpot_rate", 0.001)

	v.SetDefault("game.session.timeout", "30m")
	v.SetDefault("game.session.max_sessions", 10000)
	v.SetDefault("game.session.cleanup_interval", "1m")
	v.SetDefault("game.session.persist", true)

	// 概率表参数
	v.SetDefault("game.tables", map[string]interface{}{
		"base": map[string]interface{}{
			"rows":               5000,
			"total_units":        1000000,
			"target_rtp":         0.94,
			"cost":               1.0,
			"jackpot_multiplier": 5000,
			"jackpot_weight":     1,
		},
		"bonus": map[string]interface{}{
			"rows":               5000,
			"total_units":        1000000,
			"target_rtp":         0.94,
			"cost":               100.0,
			"jackpot_multiplier": 5000,
			"jackpot_weight":     1000,
		},
	})

	v.SetDefault("simulation.spins", 1000000)
	v.SetDefault("simulation.rounds", 100000)
	v.SetDefault("simulation.progress_interval", 100000)
	v.SetDefault("simulation.seed", "")
	v.SetDefault("simulation.server_seed", "simulation_seed")

	v.SetDefault("output.dir", "./math")
	v.SetDefault("output.zstd_level", 10)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
	v.SetDefault("log.file.path", "./logs")
	v.SetDefault("log.file.filename", "slot-math.log")
	v.SetDefault("log.file.max_size", 100)
	v.SetDefault("log.file.max_age", 30)
	v.SetDefault("log.file.max_backups", 7)
	v.SetDefault("log.file.compress", true)

	v.SetDefault("security.jwt.secret", "change-me")
	v.SetDefault("security.jwt.expire_hours", 24)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if err := c.Game.Round.Validate(); err != nil {
		return err
	}
	if c.Game.Session.MaxSessions < 0 {
		return fmt.Errorf("max_sessions 不能为负数")
	}
	for mode, t := range c.Game.Tables {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("概率表 %s: %w", mode, err)
		}
	}
	return nil
}

// Validate 校验回合参数
func (r RoundConfig) Validate() error {
	if len(r.BetLevels) == 0 {
		return fmt.Errorf("bet_levels 不能为空")
	}
	for i, b := range r.BetLevels {
		if b <= 0 {
			return fmt.Errorf("bet_levels[%d] 必须为正数: %v", i, b)
		}
		if i > 0 && b <= r.BetLevels[i-1] {
			return fmt.Errorf("bet_levels 必须严格递增")
		}
	}
	rates := map[string]float64{
		"base_win_rate":      r.BaseWinRate,
		"bonus_win_rate":     r.BonusWinRate,
		"bonus_trigger_rate": r.BonusTriggerRate,
		"jackpot_rate":       r.JackpotRate,
	}
	for name, rate := range rates {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("%s 必须在[0,1]区间: %v", name, rate)
		}
	}
	// 大奖判定嵌套在中奖分支内
	if r.JackpotRate > r.BaseWinRate || r.JackpotRate > r.BonusWinRate {
		return fmt.Errorf("jackpot_rate(%v) 不能大于生效的中奖率", r.JackpotRate)
	}
	if r.RegularMultiplier < 0 || r.JackpotMultiplier < 0 || r.BuyBonusMultiplier < 0 {
		return fmt.Errorf("倍率不能为负数")
	}
	if len(r.BonusMultipliers) == 0 {
		return fmt.Errorf("bonus_multipliers 不能为空")
	}
	for _, m := range r.BonusMultipliers {
		if m < 0 {
			return fmt.Errorf("bonus_multipliers 不能为负数")
		}
	}
	if r.BonusFreeShots <= 0 {
		return fmt.Errorf("bonus_free_shots 必须大于0")
	}
	return nil
}

// Validate 校验概率表参数（可行性由构建器判定）
func (t TableConfig) Validate() error {
	if t.Rows < 2 {
		return fmt.Errorf("rows 至少为2")
	}
	if t.TotalUnits <= 0 {
		return fmt.Errorf("total_units 必须为正数")
	}
	if t.TargetRTP <= 0 {
		return fmt.Errorf("target_rtp 必须为正数")
	}
	if t.Cost <= 0 {
		return fmt.Errorf("cost 必须为正数")
	}
	return nil
}

// Modes 返回按名称排序的模式列表
func (g GameConfig) Modes() []string {
	modes := make([]string, 0, len(g.Tables))
	for mode := range g.Tables {
		modes = append(modes, mode)
	}
	sort.Strings(modes)
	return modes
}

// Summary 生成回合参数的查找表摘要
func (r RoundConfig) Summary() map[string]interface{} {
	return map[string]interface{}{
		"outcome_probabilities": map[string]float64{
			"miss":          1.0 - r.BaseWinRate,
			"score":         r.BaseWinRate,
			"bonus_trigger": r.BonusTriggerRate,
			"jackpot":       r.JackpotRate,
		},
		"multipliers": map[string]interface{}{
			"regular": r.RegularMultiplier,
			"bonus":   r.BonusMultipliers,
			"jackpot": r.JackpotMultiplier,
		},
		"bonus_config": map[string]interface{}{
			"free_shots":          r.BonusFreeShots,
			"buy_cost_multiplier": r.BuyBonusMultiplier,
		},
	}
}

// Get 获取配置实例
func Get() *Config {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}

// Watch 监听配置文件变化
func Watch(callback func(*Config)) {
	if v == nil {
		return
	}
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()

		newCfg := &Config{}
		if err := v.Unmarshal(newCfg); err != nil {
			fmt.Printf("配置重载失败: %v\n", err)
			return
		}
		if err := newCfg.Validate(); err != nil {
			fmt.Printf("配置重载被拒绝: %v\n", err)
			return
		}

		cfg = newCfg

		if callback != nil {
			callback(cfg)
		}

		fmt.Println("配置已重新加载", e.Name)
	})
}

// GetString 获取字符串配置
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// ConfigFile 返回当前使用的配置文件
func ConfigFile() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}
