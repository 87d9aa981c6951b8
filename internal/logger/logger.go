package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wfunc/slot-math/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger  *zap.Logger // 直接使用
	helpers *zap.Logger // 包级便捷函数使用，跳过一层调用栈
	once    sync.Once
	mu      sync.RWMutex

	// 全局日志级别，支持运行时调整
	atomicLevel = zap.NewAtomicLevel()

	// 模块日志器（配置了独立级别的模块）
	moduleLoggers map[string]*zap.Logger

	fallback     *zap.Logger
	fallbackOnce sync.Once
)

// Init 初始化日志系统
func Init(cfg *config.LogConfig) error {
	var err error
	once.Do(func() {
		var (
			root    *zap.Logger
			modules map[string]*zap.Logger
		)
		root, modules, err = build(cfg, atomicLevel)
		if err != nil {
			return
		}

		mu.Lock()
		logger = root
		helpers = root.WithOptions(zap.AddCallerSkip(1))
		moduleLoggers = modules
		mu.Unlock()
	})
	return err
}

// sink 一个输出目标
type sink struct {
	writer zapcore.WriteSyncer
	color  bool
}

// build 按配置创建根日志器与模块日志器
func build(cfg *config.LogConfig, level zap.AtomicLevel) (*zap.Logger, map[string]*zap.Logger, error) {
	level.SetLevel(parseLevel(cfg.Level))

	sinks, errorSink, err := openSinks(cfg)
	if err != nil {
		return nil, nil, err
	}

	tee := func(enabler zapcore.LevelEnabler) zapcore.Core {
		cores := make([]zapcore.Core, 0, len(sinks)+1)
		for _, s := range sinks {
			cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format, s.color), s.writer, enabler))
		}
		// 错误日志单独成文件
		if errorSink != nil {
			cores = append(cores, zapcore.NewCore(newEncoder(cfg.Format, false), errorSink, zapcore.ErrorLevel))
		}
		return zapcore.NewTee(cores...)
	}

	root := zap.New(tee(level), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	modules := make(map[string]*zap.Logger, len(cfg.Modules))
	for module, levelStr := range cfg.Modules {
		modules[module] = zap.New(tee(parseLevel(levelStr)), zap.AddCaller()).Named(module)
	}
	return root, modules, nil
}

func openSinks(cfg *config.LogConfig) ([]sink, zapcore.WriteSyncer, error) {
	var sinks []sink
	if cfg.Output == "stdout" || cfg.Output == "both" || cfg.Output == "" {
		sinks = append(sinks, sink{writer: zapcore.AddSync(os.Stdout), color: true})
	}
	if cfg.Output != "file" && cfg.Output != "both" {
		return sinks, nil, nil
	}

	if err := os.MkdirAll(cfg.File.Path, 0755); err != nil {
		return nil, nil, fmt.Errorf("创建日志目录失败: %w", err)
	}
	rotate := func(name string) zapcore.WriteSyncer {
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(cfg.File.Path, name),
			MaxSize:    cfg.File.MaxSize,    // MB
			MaxAge:     cfg.File.MaxAge,     // days
			MaxBackups: cfg.File.MaxBackups, // 保留文件数
			Compress:   cfg.File.Compress,
		})
	}
	sinks = append(sinks, sink{writer: rotate(cfg.File.Filename)})
	return sinks, rotate("error.log"), nil
}

func newEncoder(format string, color bool) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	if format == "json" {
		return zapcore.NewJSONEncoder(encoderConfig)
	}
	if color {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	return zapcore.NewConsoleEncoder(encoderConfig)
}

// parseLevel 解析日志级别，无法识别时使用info
func parseLevel(levelStr string) zapcore.Level {
	level, err := zapcore.ParseLevel(levelStr)
	if err != nil {
		return zapcore.InfoLevel
	}
	return level
}

func defaultLogger() *zap.Logger {
	fallbackOnce.Do(func() {
		l, err := zap.NewProduction()
		if err != nil {
			l = zap.NewNop()
		}
		fallback = l
	})
	return fallback
}

// GetLogger 获取日志器，未初始化时返回默认生产配置
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if logger == nil {
		return defaultLogger()
	}
	return logger
}

func helper() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	if helpers == nil {
		return defaultLogger()
	}
	return helpers
}

// GetModuleLogger 获取模块日志器
func GetModuleLogger(module string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if l, ok := moduleLoggers[module]; ok {
		return l
	}
	if logger == nil {
		return defaultLogger().Named(module)
	}
	return logger.Named(module)
}

// Sync 同步日志缓冲区
func Sync() error {
	mu.RLock()
	defer mu.RUnlock()

	if logger == nil {
		return nil
	}
	for _, l := range moduleLoggers {
		_ = l.Sync()
	}
	return logger.Sync()
}

// Debug 输出调试日志
func Debug(msg string, fields ...zap.Field) {
	helper().Debug(msg, fields...)
}

// Info 输出信息日志
func Info(msg string, fields ...zap.Field) {
	helper().Info(msg, fields...)
}

// Warn 输出警告日志
func Warn(msg string, fields ...zap.Field) {
	helper().Warn(msg, fields...)
}

// Error 输出错误日志
func Error(msg string, fields ...zap.Field) {
	helper().Error(msg, fields...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(msg string, fields ...zap.Field) {
	helper().Fatal(msg, fields...)
}

// LogRequest 记录请求日志
func LogRequest(method, path string, statusCode int, latency time.Duration, clientIP string) {
	GetModuleLogger("api").Info("request",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", statusCode),
		zap.Duration("latency", latency),
		zap.String("client_ip", clientIP),
	)
}

// LogPanic 记录panic日志
func LogPanic(recovered interface{}, stack []byte) {
	helper().Error("panic recovered",
		zap.Any("panic", recovered),
		zap.ByteString("stack", stack),
	)
}

// LogGameEvent 记录会话生命周期事件
func LogGameEvent(event, sessionID string, fields ...zap.Field) {
	GetModuleLogger("game").Info(event,
		append([]zap.Field{zap.String("session_id", sessionID)}, fields...)...)
}

// LogRoundResult 记录回合结算结果
func LogRoundResult(sessionID string, counter uint64, category string, multiplier, payout string, freeSpins int) {
	GetModuleLogger("game").Info("round_resolved",
		zap.String("session_id", sessionID),
		zap.Uint64("counter", counter),
		zap.String("category", category),
		zap.String("multiplier", multiplier),
		zap.String("payout", payout),
		zap.Int("free_spins_remaining", freeSpins),
	)
}

// LogTableBuild 记录概率表构建结果
func LogTableBuild(mode string, rows int, totalUnits, targetUnits int64, duration time.Duration, err error) {
	l := GetModuleLogger("table")
	fields := []zap.Field{
		zap.String("mode", mode),
		zap.Int("rows", rows),
		zap.Int64("total_units", totalUnits),
		zap.Int64("target_units", targetUnits),
		zap.Duration("duration", duration),
	}

	if err != nil {
		l.Error("table_build_failed", append(fields, zap.Error(err))...)
		return
	}
	l.Info("table_built", fields...)
}

// LogWebSocketMessage 记录WebSocket消息
func LogWebSocketMessage(direction string, messageType string, payload interface{}) {
	GetModuleLogger("websocket").Debug("ws_message",
		zap.String("direction", direction), // send, receive
		zap.String("type", messageType),
		zap.Any("payload", payload),
	)
}

// SetLevel 动态设置全局日志级别（模块级别不受影响）
func SetLevel(levelStr string) {
	atomicLevel.SetLevel(parseLevel(levelStr))
}

// Cleanup 清理日志资源
func Cleanup() {
	if err := Sync(); err != nil {
		fmt.Printf("同步日志失败: %v\n", err)
	}
}
