package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wfunc/slot-math/internal/config"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/middleware"
	"github.com/wfunc/slot-math/internal/utils"
	ws "github.com/wfunc/slot-math/internal/websocket"
	"go.uber.org/zap"
)

// HealthChecker 外部依赖的健康检查
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// RouterConfig 路由器配置
type RouterConfig struct {
	Service   *game.GameService
	Tokens    *utils.JWTManager
	Round     config.RoundConfig
	WebSocket config.WebSocketConfig
	Health    HealthChecker // 为空时只报告进程存活
	Logger    *zap.Logger
}

// Router API路由器
type Router struct {
	engine         *gin.Engine
	service        *game.GameService
	health         HealthChecker
	sessionHandler *SessionHandler
	tableHandler   *TableHandler
	wsHandler      *WebSocketHandler
	clients        *ws.ClientManager
	authMiddleware *middleware.AuthMiddleware
	log            *zap.Logger
}

// NewRouter 创建路由器
func NewRouter(cfg *RouterConfig) *Router {
	log := cfg.Logger
	if log == nil {
		log = logger.GetModuleLogger("api")
	}

	engine := gin.New()

	// 全局中间件
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger())

	clients := ws.NewClientManager(log)
	router := &Router{
		engine:         engine,
		service:        cfg.Service,
		health:         cfg.Health,
		sessionHandler: NewSessionHandler(cfg.Service.Sessions(), cfg.Tokens, clients, log),
		tableHandler:   NewTableHandler(cfg.Service, cfg.Round),
		wsHandler:      NewWebSocketHandler(cfg.Service.Sessions(), clients, cfg.WebSocket, log),
		clients:        clients,
		authMiddleware: middleware.NewAuthMiddleware(cfg.Tokens),
		log:            log,
	}

	router.setupRoutes(cfg.WebSocket.Path)

	return router
}

// setupRoutes 设置路由
func (r *Router) setupRoutes(wsPath string) {
	r.engine.GET("/health", r.healthCheck)

	v1 := r.engine.Group("/api/v1")
	{
		v1.POST("/sessions", r.sessionHandler.Open)
		v1.POST("/verify", r.sessionHandler.Verify)

		tables := v1.Group("/tables")
		{
			tables.GET("", r.tableHandler.List)
			tables.GET("/:mode", r.tableHandler.Get)
		}
		v1.GET("/round-config", r.tableHandler.RoundConfig)

		// 需要会话令牌的路由
		session := v1.Group("/sessions/:id")
		session.Use(r.authMiddleware.RequireSession())
		{
			session.GET("", r.sessionHandler.Info)
			session.POST("/rounds", r.sessionHandler.Play)
			session.POST("/buy-bonus", r.sessionHandler.BuyBonus)
			session.GET("/rounds", r.sessionHandler.History)
			session.POST("/close", r.sessionHandler.Close)
		}
	}

	if wsPath == "" {
		wsPath = "/ws"
	}
	live := r.engine.Group(wsPath)
	live.Use(r.authMiddleware.RequireSession())
	{
		live.GET("/sessions/:id", r.wsHandler.Play)
	}

	registerOpenAPIRoutes(r.engine)
	registerSwaggerRoutes(r.engine)

	r.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"code":    "NOT_FOUND",
			"message": "接口不存在",
		})
	})
}

// healthCheck 健康检查
func (r *Router) healthCheck(c *gin.Context) {
	status := gin.H{
		"status":          "healthy",
		"modes":           r.service.Modes(),
		"active_sessions": r.service.Sessions().GetActiveSessions(),
		"connections":     r.clients.Count(),
		"time":            time.Now().Unix(),
	}

	if r.health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := r.health.HealthCheck(ctx); err != nil {
			r.log.Warn("健康检查失败", zap.Error(err))
			status["status"] = "unhealthy"
			status["message"] = "数据库不可用"
			c.JSON(http.StatusServiceUnavailable, status)
			return
		}
	}

	c.JSON(http.StatusOK, status)
}

// Handler 返回HTTP处理器
func (r *Router) Handler() http.Handler {
	return r.engine
}

// GetEngine 获取Gin引擎（用于测试）
func (r *Router) GetEngine() *gin.Engine {
	return r.engine
}
