package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wfunc/slot-math/internal/api"
	"github.com/wfunc/slot-math/internal/config"
	"github.com/wfunc/slot-math/internal/database"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/repository"
	"github.com/wfunc/slot-math/internal/utils"
)

// 版本信息
var (
	Version   = "1.0.0"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Server 服务器实例
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	repos      *repository.Manager
	service    *game.GameService
	httpServer *http.Server

	// 关闭控制
	shutdownCh chan struct{}
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

func main() {
	var (
		configPath  = flag.String("config", "", "配置文件路径")
		showVersion = flag.Bool("version", false, "显示版本信息")
		showHelp    = flag.Bool("help", false, "显示帮助信息")
	)

	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	if *showHelp {
		printHelp()
		os.Exit(0)
	}

	if err := config.Init(*configPath); err != nil {
		fmt.Printf("加载配置失败: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Get()

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Printf("初始化日志失败: %v\n", err)
		os.Exit(1)
	}

	printStartInfo(cfg)

	server := NewServer(cfg)

	if err := server.Start(); err != nil {
		logger.Fatal("服务器启动失败", zap.Error(err))
	}

	server.WaitForShutdown()

	if err := server.Shutdown(); err != nil {
		logger.Error("服务器关闭失败", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("服务器已安全关闭")
}

// NewServer 创建服务器实例
func NewServer(cfg *config.Config) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		logger:     logger.GetLogger(),
		shutdownCh: make(chan struct{}),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("正在启动回合解析服务...",
		zap.String("version", Version),
		zap.String("mode", s.cfg.Server.Mode),
		zap.String("game", s.cfg.Game.Name),
	)

	if err := s.initComponents(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "初始化组件失败")
	}

	if err := s.startServices(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrUnknown, "启动服务失败")
	}

	config.Watch(func(newCfg *config.Config) {
		s.logger.Info("配置已更新，正在重新加载...")
		s.reloadConfig(newCfg)
	})

	s.logger.Info("服务器启动成功",
		zap.String("http", s.addr()),
		zap.String("websocket", s.cfg.WebSocket.Path),
	)
	return nil
}

func (s *Server) addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
}

// initComponents 初始化组件
func (s *Server) initComponents() error {
	s.logger.Info("初始化组件...")

	if s.cfg.Game.Session.Persist {
		if err := s.initDatabase(); err != nil {
			return err
		}
	}

	if err := s.initGameService(); err != nil {
		return err
	}

	s.logger.Info("所有组件初始化完成")
	return nil
}

// initDatabase 初始化数据库
func (s *Server) initDatabase() error {
	s.logger.Info("初始化数据库...", zap.String("driver", s.cfg.Database.Driver))

	if err := database.Init(&s.cfg.Database); err != nil {
		return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "初始化数据库连接失败")
	}

	if s.cfg.Database.AutoMigrate {
		s.logger.Info("执行数据库自动迁移...")
		if err := database.AutoMigrate(); err != nil {
			return apperrors.Wrap(err, apperrors.ErrDatabaseConnect, "数据库迁移失败")
		}
	}

	if !database.IsConnected() {
		return apperrors.New(apperrors.ErrDatabaseConnect, "数据库连接检查失败")
	}
	s.repos = repository.NewManager(database.GetDB())

	// 上次运行遗留的空闲会话直接关闭
	closed, err := s.repos.Sessions().CloseIdleSessions(s.ctx, time.Now().Add(-s.cfg.Game.Session.Timeout))
	if err != nil {
		return err
	}
	stats, err := s.repos.Sessions().GetStatistics(s.ctx, time.Now().AddDate(0, 0, -1), time.Now())
	if err != nil {
		return err
	}
	s.logger.Info("数据库初始化完成",
		zap.Int64("closed_idle_sessions", closed),
		zap.Int64("sessions_24h", stats.TotalSessions),
		zap.Int64("active_sessions", stats.ActiveSessions),
		zap.Int64("rounds_24h", stats.TotalRounds),
	)
	return nil
}

// initGameService 初始化回合解析与会话管理
func (s *Server) initGameService() error {
	roundCfg, err := shot.NewConfig(s.cfg.Game.Round)
	if err != nil {
		return err
	}

	var store game.SessionStore = game.NewMemoryStore()
	if s.repos != nil {
		store = game.NewDatabaseStore(s.repos)
	}

	sessions, err := game.NewSessionManager(&game.SessionConfig{
		Logger:         logger.GetModuleLogger("session"),
		Store:          store,
		Round:          roundCfg,
		SessionTimeout: s.cfg.Game.Session.Timeout,
		MaxSessions:    s.cfg.Game.Session.MaxSessions,
	})
	if err != nil {
		return err
	}

	s.service = game.NewGameService(&game.GameServiceConfig{
		Logger:          logger.GetModuleLogger("game"),
		Repos:           s.repos,
		Sessions:        sessions,
		CleanupInterval: s.cfg.Game.Session.CleanupInterval,
	})
	return s.service.LoadTables(s.ctx, s.cfg.Game)
}

// startServices 启动服务
func (s *Server) startServices() error {
	s.logger.Info("启动服务...")

	s.service.Start(s.ctx)

	if s.cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	routerCfg := &api.RouterConfig{
		Service:   s.service,
		Tokens:    utils.NewJWTManager(s.cfg.Security.JWT.Secret, time.Duration(s.cfg.Security.JWT.ExpireHours)*time.Hour),
		Round:     s.cfg.Game.Round,
		WebSocket: s.cfg.WebSocket,
		Logger:    logger.GetModuleLogger("api"),
	}
	if s.repos != nil {
		routerCfg.Health = s.repos
	}
	router := api.NewRouter(routerCfg)

	s.httpServer = &http.Server{
		Addr:         s.addr(),
		Handler:      router.Handler(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP服务异常退出", zap.Error(err))
		}
	}()

	s.logger.Info("所有服务启动完成")
	return nil
}

// WaitForShutdown 等待关闭信号
func (s *Server) WaitForShutdown() {
	sigCh := make(chan os.Signal, 1)

	signal.Notify(sigCh,
		syscall.SIGINT,  // Ctrl+C
		syscall.SIGTERM, // kill命令
		syscall.SIGQUIT, // Ctrl+\
	)

	sig := <-sigCh
	s.logger.Info("收到退出信号", zap.String("signal", sig.String()))

	close(s.shutdownCh)
}

// Shutdown 优雅关闭服务器
func (s *Server) Shutdown() error {
	s.logger.Info("正在优雅关闭服务器...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	s.logger.Info("停止接收新请求...")
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("HTTP服务关闭失败", zap.Error(err))
		}
	}

	// 取消主上下文，触发所有goroutine退出
	s.cancel()
	if s.service != nil {
		s.service.Stop()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("所有服务已正常关闭")
	case <-shutdownCtx.Done():
		s.logger.Warn("关闭超时，强制退出")
		return apperrors.New(apperrors.ErrTimeout, "关闭超时")
	}

	if err := s.closeComponents(); err != nil {
		s.logger.Error("关闭组件失败", zap.Error(err))
		return err
	}

	if err := logger.Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
	return nil
}

// closeComponents 关闭组件
func (s *Server) closeComponents() error {
	s.logger.Info("关闭组件...")

	if s.repos != nil {
		if err := database.Close(); err != nil {
			s.logger.Error("关闭数据库失败", zap.Error(err))
		}
	}

	s.logger.Info("所有组件已关闭")
	return nil
}

// reloadConfig 重新加载配置
// 回合参数与概率表只在启动时加载，运行中仅调整日志级别
func (s *Server) reloadConfig(newCfg *config.Config) {
	if newCfg.Log.Level != s.cfg.Log.Level {
		logger.SetLevel(newCfg.Log.Level)
		s.logger.Info("日志级别已更新", zap.String("level", newCfg.Log.Level))
	}
	s.cfg.Log = newCfg.Log

	s.logger.Info("配置重新加载完成")
}

// printVersion 打印版本信息
func printVersion() {
	fmt.Printf("回合解析服务\n")
	fmt.Printf("版本: %s\n", Version)
	fmt.Printf("构建时间: %s\n", BuildTime)
	fmt.Printf("Git提交: %s\n", GitCommit)
	fmt.Printf("Go版本: %s\n", runtime.Version())
	fmt.Printf("操作系统: %s/%s\n", runtime.GOOS, runtime.GOARCH)
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("回合解析服务")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  slot-math-server [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	fmt.Println("  SLOT_MATH_SERVER_PORT         监听端口")
	fmt.Println("  SLOT_MATH_DATABASE_DSN        数据库连接串")
	fmt.Println("  SLOT_MATH_SECURITY_JWT_SECRET 令牌签名密钥")
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  slot-math-server -config=/path/to/config.yaml")
	fmt.Println("  slot-math-server -version")
}

// printStartInfo 打印启动信息
func printStartInfo(cfg *config.Config) {
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Println("  slot-math  可验证公平回合解析服务")
	fmt.Println("═══════════════════════════════════════════════════════════════")
	fmt.Printf("版本: %s | 模式: %s | 游戏: %s | PID: %d\n", Version, cfg.Server.Mode, cfg.Game.Name, os.Getpid())
	fmt.Printf("配置文件: %s\n", config.ConfigFile())
	fmt.Println("═══════════════════════════════════════════════════════════════")
}
