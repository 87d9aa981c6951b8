package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/wfunc/slot-math/internal/config"
	"github.com/wfunc/slot-math/internal/database"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/export"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/game/table"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/repository"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		modesFlag   = flag.String("modes", "", "要构建的模式，逗号分隔（默认全部）")
		outDir      = flag.String("out", "", "输出目录（覆盖 output.dir）")
		persist     = flag.Bool("persist", false, "写入数据库并设为启用")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("tablegen %s (%s, %s, %s)\n", Version, GitCommit, BuildTime, runtime.Version())
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *outDir != "" {
		cfg.Output.Dir = *outDir
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	if err := run(context.Background(), cfg, selectModes(cfg.Game, *modesFlag), *persist); err != nil {
		logger.Error("概率表生成失败", zap.Error(err))
		logger.Cleanup()
		os.Exit(1)
	}
}

// selectModes 解析 -modes 参数
func selectModes(g config.GameConfig, raw string) []string {
	if raw == "" {
		return g.Modes()
	}
	var modes []string
	for _, m := range strings.Split(raw, ",") {
		if m = strings.TrimSpace(m); m != "" {
			modes = append(modes, m)
		}
	}
	sort.Strings(modes)
	return modes
}

func run(ctx context.Context, cfg *config.Config, modes []string, persist bool) error {
	params := make(map[string]table.Params, len(modes))
	for _, mode := range modes {
		tc, ok := cfg.Game.Tables[mode]
		if !ok {
			return apperrors.Newf(apperrors.ErrConfigMissing, "未配置的模式: %s", mode)
		}
		params[mode] = table.ParamsFromConfig(tc)
	}

	start := time.Now()
	tables, err := table.BuildModes(ctx, params)
	if err != nil {
		return err
	}
	logger.Info("全部概率表构建完成",
		zap.Strings("modes", modes),
		zap.Duration("duration", time.Since(start)))

	// 数学包
	writer := export.NewWriter(cfg.Output, cfg.Game.Name)
	entries := make([]export.ModeEntry, 0, len(modes))
	analyses := make(map[string]table.Analysis, len(modes))
	for _, mode := range modes {
		entry, err := writer.WriteMode(mode, cfg.Game.Tables[mode].Cost, tables[mode])
		if err != nil {
			return err
		}
		entries = append(entries, entry)
		analyses[mode] = table.Analyze(tables[mode])
	}
	written, err := writer.WriteIndex(entries)
	if err != nil {
		return err
	}
	if err := export.WriteYAML(filepath.Join(writer.Dir(), "analysis.yaml"), analyses); err != nil {
		return err
	}
	if err := export.WriteYAML(filepath.Join(writer.Dir(), "round_config.yaml"), cfg.Game.Round.Summary()); err != nil {
		return err
	}
	logger.Info("数学包已写出",
		zap.String("dir", writer.Dir()),
		zap.Bool("index_written", written))

	for _, mode := range modes {
		a := analyses[mode]
		fmt.Printf("%-8s rows=%d units=%d weighted=%d rtp=%s jackpot=%dx%d\n",
			mode, a.Rows, a.TotalUnits, a.WeightedSum, a.TheoreticalRTP, a.JackpotMultiplier, a.JackpotUnits)
	}

	if !persist {
		return nil
	}
	return persistTables(ctx, cfg, modes, tables)
}

// persistTables 写入数据库并启用新表
func persistTables(ctx context.Context, cfg *config.Config, modes []string, tables map[string]*table.Table) error {
	if err := database.Init(&cfg.Database); err != nil {
		return err
	}
	defer database.Close()

	if err := database.AutoMigrate(); err != nil {
		return err
	}

	repos := repository.NewManager(database.GetDB())
	for _, mode := range modes {
		record := game.TableModel(mode, decimal.NewFromFloat(cfg.Game.Tables[mode].Cost), tables[mode])
		if err := repos.Tables().Create(ctx, record); err != nil {
			return err
		}
		if err := repos.Tables().Activate(ctx, record.ID); err != nil {
			return err
		}
		logger.Info("概率表已启用",
			zap.String("mode", mode),
			zap.String("build_id", record.BuildID),
			zap.String("checksum", record.Checksum))
	}
	return nil
}
