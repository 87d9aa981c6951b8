package api

import (
	"context"
	"encoding/hex"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/middleware"
	"github.com/wfunc/slot-math/internal/repository"
	"github.com/wfunc/slot-math/internal/utils"
	ws "github.com/wfunc/slot-math/internal/websocket"
	"go.uber.org/zap"
)

// SessionHandler 会话与回合处理器
type SessionHandler struct {
	sessions *game.SessionManager
	tokens   *utils.JWTManager
	clients  *ws.ClientManager // 同步推送到会话的实时连接
	logger   *zap.Logger
}

type roundFunc func(ctx context.Context, sessionID string, bet decimal.Decimal) (*shot.RoundResult, error)

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *game.SessionManager, tokens *utils.JWTManager, clients *ws.ClientManager, logger *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tokens:   tokens,
		clients:  clients,
		logger:   logger,
	}
}

// OpenSessionResponse 创建会话响应
type OpenSessionResponse struct {
	Session   *game.SessionInfo `json:"session"`
	Token     string            `json:"token"`
	ExpiresAt time.Time         `json:"expires_at"`
}

// HistoryResponse 回合记录分页响应
type HistoryResponse struct {
	Records  interface{} `json:"records"`
	Page     int         `json:"page"`
	PageSize int         `json:"page_size"`
	Total    int64       `json:"total"`
}

// Open 创建会话
// @Summary 创建会话
// @Description 生成服务端种子并返回其哈希承诺与会话令牌
// @Tags Session
// @Accept json
// @Produce json
// @Param request body game.OpenSessionRequest false "客户端种子"
// @Success 201 {object} OpenSessionResponse
// @Router /api/v1/sessions [post]
func (h *SessionHandler) Open(c *gin.Context) {
	var req game.OpenSessionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
			return
		}
	}

	info, err := h.sessions.OpenSession(c.Request.Context(), req.ClientSeed)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	token, expiresAt, err := h.tokens.GenerateSessionToken(info.SessionID, info.ServerSeedHash)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, OpenSessionResponse{
		Session:   info,
		Token:     token,
		ExpiresAt: expiresAt,
	})
}

// Info 查询会话
// @Summary 查询会话
// @Tags Session
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} game.SessionInfo
// @Router /api/v1/sessions/{id} [get]
func (h *SessionHandler) Info(c *gin.Context) {
	info, err := h.sessions.GetSessionInfo(c.Request.Context(), c.Param("id"))
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

// Play 解析一个回合
// @Summary 解析回合
// @Description 免费次数大于0时本回合不扣费
// @Tags Session
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body game.RoundRequest true "投注"
// @Success 200 {object} game.RoundResponse
// @Router /api/v1/sessions/{id}/rounds [post]
func (h *SessionHandler) Play(c *gin.Context) {
	h.round(c, h.sessions.Play)
}

// BuyBonus 购买奖励回合
// @Summary 购买奖励回合
// @Tags Session
// @Security Bearer
// @Accept json
// @Produce json
// @Param id path string true "会话ID"
// @Param request body game.RoundRequest true "投注"
// @Success 200 {object} game.RoundResponse
// @Router /api/v1/sessions/{id}/buy-bonus [post]
func (h *SessionHandler) BuyBonus(c *gin.Context) {
	h.round(c, h.sessions.BuyBonus)
}

func (h *SessionHandler) round(c *gin.Context, play roundFunc) {
	var req game.RoundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}
	bet, err := parseBet(req.Bet)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	sessionID := c.Param("id")
	result, err := play(c.Request.Context(), sessionID, bet)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	h.push(sessionID, ServerMessage{Type: MessageTypeRoundResult, Data: result})
	c.JSON(http.StatusOK, game.RoundResponse{
		SessionID: sessionID,
		Result:    result,
	})
}

func (h *SessionHandler) push(sessionID string, msg ServerMessage) {
	if err := pushToSession(h.clients, sessionID, msg, nil); err != nil {
		h.logger.Error("序列化推送消息失败", zap.Error(err))
	}
}

// History 回合记录
// @Summary 回合记录
// @Tags Session
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} HistoryResponse
// @Router /api/v1/sessions/{id}/rounds [get]
func (h *SessionHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	p := repository.NewPagination(page, pageSize)

	records, err := h.sessions.History(c.Request.Context(), c.Param("id"), p)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}

	c.JSON(http.StatusOK, HistoryResponse{
		Records:  records,
		Page:     p.Page,
		PageSize: p.PageSize,
		Total:    p.Total,
	})
}

// Close 关闭会话并公开服务端种子
// @Summary 关闭会话
// @Tags Session
// @Security Bearer
// @Produce json
// @Param id path string true "会话ID"
// @Success 200 {object} game.SessionReveal
// @Router /api/v1/sessions/{id}/close [post]
func (h *SessionHandler) Close(c *gin.Context) {
	sessionID := c.Param("id")
	reveal, err := h.sessions.CloseSession(c.Request.Context(), sessionID)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	h.push(sessionID, ServerMessage{Type: MessageTypeSessionClosed, Data: reveal})
	if h.clients != nil {
		h.clients.CloseSession(sessionID)
	}
	c.JSON(http.StatusOK, reveal)
}

// Verify 重算某个计数器的均匀值
// @Summary 回合验证
// @Description 校验公开的服务端种子与承诺值一致，并重算指定计数器的均匀值
// @Tags Verify
// @Accept json
// @Produce json
// @Param request body game.VerifyRequest true "种子三元组"
// @Success 200 {object} game.VerifyResponse
// @Router /api/v1/verify [post]
func (h *SessionHandler) Verify(c *gin.Context) {
	var req game.VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondError(c, apperrors.Wrap(err, apperrors.ErrInvalidParam))
		return
	}

	draw, err := fair.VerifyRound(req.ServerSeed, req.ServerSeedHash, req.ClientSeed, req.Counter)
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	digest := fair.Digest(req.ServerSeed, req.ClientSeed, req.Counter)

	c.JSON(http.StatusOK, game.VerifyResponse{
		Draw:     draw,
		Digest:   hex.EncodeToString(digest[:]),
		Verified: req.ServerSeedHash != "",
	})
}

func parseBet(raw string) (decimal.Decimal, error) {
	bet, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, apperrors.Newf(apperrors.ErrInvalidBet, "投注格式错误: %s", raw)
	}
	return bet, nil
}
