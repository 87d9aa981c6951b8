package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/wfunc/slot-math/internal/config"
	"github.com/wfunc/slot-math/internal/export"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/rng"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/game/sim"
	"github.com/wfunc/slot-math/internal/game/table"
	"github.com/wfunc/slot-math/internal/logger"
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
		mode        = flag.String("mode", "base", "概率表模式")
		csvPath     = flag.String("csv", "", "从权重CSV加载概率表（默认按配置构建）")
		spins       = flag.Int64("spins", 0, "抽样次数（覆盖 simulation.spins）")
		rounds      = flag.Int64("rounds", 0, "回合模拟次数，大于0时模拟回合解析器")
		seed        = flag.String("seed", "", "确定性随机种子（覆盖 simulation.seed）")
		reportPath  = flag.String("report", "", "报告输出路径（YAML），默认打印到标准输出")
		perOutcome  = flag.Bool("outcomes", false, "按行统计命中次数")
		showVersion = flag.Bool("version", false, "显示版本信息")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("simulate %s (%s, %s, %s)\n", Version, GitCommit, BuildTime, runtime.Version())
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Get()
	if *seed != "" {
		cfg.Simulation.Seed = *seed
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		report interface{}
		err    error
	)
	if *rounds > 0 {
		report, err = simulateRounds(ctx, cfg, *rounds)
	} else {
		n := *spins
		if n <= 0 {
			n = int64(cfg.Simulation.Spins)
		}
		report, err = simulateTable(ctx, cfg, *mode, *csvPath, n, *perOutcome)
	}
	if err != nil {
		logger.Error("模拟失败", zap.Error(err))
		logger.Cleanup()
		os.Exit(1)
	}

	if *reportPath != "" {
		if err := export.WriteYAML(*reportPath, report); err != nil {
			logger.Error("写出报告失败", zap.Error(err))
			logger.Cleanup()
			os.Exit(1)
		}
		logger.Info("模拟报告已写出", zap.String("path", *reportPath))
		return
	}
	out, err := yaml.Marshal(report)
	if err != nil {
		logger.Error("序列化报告失败", zap.Error(err))
		return
	}
	fmt.Print(string(out))
}

// generator 配置了种子时使用可复现的ChaCha20序列
func generator(seed string) rng.Generator {
	if seed == "" {
		return rng.NewCryptoGenerator()
	}
	return rng.NewChaChaGeneratorFromString(seed)
}

func loadTable(cfg *config.Config, mode, csvPath string) (*table.Table, error) {
	tc, ok := cfg.Game.Tables[mode]
	if !ok {
		return nil, fmt.Errorf("未配置的模式: %s", mode)
	}
	params := table.ParamsFromConfig(tc)
	if csvPath == "" {
		return table.Build(params)
	}

	outcomes, err := export.ReadCSVFile(csvPath, params.TotalUnits)
	if err != nil {
		return nil, err
	}
	return table.New(params, outcomes)
}

func simulateTable(ctx context.Context, cfg *config.Config, mode, csvPath string, spins int64, perOutcome bool) (*sim.Report, error) {
	t, err := loadTable(cfg, mode, csvPath)
	if err != nil {
		return nil, err
	}
	return sim.Run(ctx, t, generator(cfg.Simulation.Seed), sim.Options{
		Mode:             mode,
		Spins:            spins,
		ProgressInterval: int64(cfg.Simulation.ProgressInterval),
		CountOutcomes:    perOutcome,
		Logger:           logger.GetModuleLogger("sim"),
	})
}

func simulateRounds(ctx context.Context, cfg *config.Config, rounds int64) (*sim.RoundReport, error) {
	roundCfg, err := shot.NewConfig(cfg.Game.Round)
	if err != nil {
		return nil, err
	}
	secondary := generator(cfg.Simulation.Seed)
	resolver, err := shot.NewResolver(roundCfg, secondary)
	if err != nil {
		return nil, err
	}

	serverSeed := cfg.Simulation.ServerSeed
	if serverSeed == "" {
		if serverSeed, err = fair.GenerateServerSeed(); err != nil {
			return nil, err
		}
	}
	state, err := fair.NewState(serverSeed, "simulation")
	if err != nil {
		return nil, err
	}
	logger.Info("回合模拟种子", zap.String("server_seed_hash", fair.HashSeed(serverSeed)))

	return sim.SimulateRounds(ctx, resolver, state, secondary, sim.RoundOptions{
		Rounds:           rounds,
		ProgressInterval: int64(cfg.Simulation.ProgressInterval),
		Logger:           logger.GetModuleLogger("sim"),
	})
}
