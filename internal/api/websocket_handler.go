package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/logger"
	"github.com/wfunc/slot-math/internal/middleware"
	ws "github.com/wfunc/slot-math/internal/websocket"
	"go.uber.org/zap"
)

// 客户端消息类型
const (
	MessageTypePlay     = "play"
	MessageTypeBuyBonus = "buy_bonus"
	MessageTypeInfo     = "info"
	MessageTypeClose    = "close"
)

// 服务端消息类型
const (
	MessageTypeRoundResult   = "round_result"
	MessageTypeSessionInfo   = "session_info"
	MessageTypeSessionClosed = "session_closed"
	MessageTypeError         = "error"
)

// ClientMessage 客户端消息
type ClientMessage struct {
	Type string `json:"type"`
	Seq  int64  `json:"seq,omitempty"`
	Bet  string `json:"bet,omitempty"`
}

// ServerMessage 服务端消息
type ServerMessage struct {
	Type  string              `json:"type"`
	Seq   int64               `json:"seq,omitempty"`
	Data  interface{}         `json:"data,omitempty"`
	Error *apperrors.AppError `json:"error,omitempty"`
}

// WebSocketHandler 会话实时回合通道
type WebSocketHandler struct {
	sessions *game.SessionManager
	clients  *ws.ClientManager
	upgrader websocket.Upgrader
	opts     ws.Options
	logger   *zap.Logger
}

// NewWebSocketHandler 创建WebSocket处理器
func NewWebSocketHandler(sessions *game.SessionManager, clients *ws.ClientManager, cfg config.WebSocketConfig, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		sessions: sessions,
		clients:  clients,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		opts: ws.Options{
			MaxMessageSize: cfg.MaxMessageSize,
			PongTimeout:    cfg.PongTimeout,
			WriteTimeout:   cfg.WriteTimeout,
		},
		logger: logger,
	}
}

// Play 建立会话的WebSocket连接，逐条处理回合请求
func (h *WebSocketHandler) Play(c *gin.Context) {
	sessionID := c.Param("id")

	// 会话不可用时直接以HTTP错误返回
	if _, err := h.sessions.GetSessionInfo(c.Request.Context(), sessionID); err != nil {
		middleware.RespondError(c, err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket升级失败",
			zap.String("session_id", sessionID),
			zap.Error(err))
		return
	}

	client := ws.NewClient(conn, sessionID, h.opts, h.logger)
	h.clients.Register(client)
	defer h.clients.Unregister(client)

	h.logger.Info("WebSocket连接建立",
		zap.String("session_id", sessionID),
		zap.String("client_id", client.ID),
		zap.String("ip", c.ClientIP()))

	ctx := c.Request.Context()
	go client.WritePump()
	client.ReadPump(func(data []byte) {
		h.onMessage(ctx, client, data)
	})

	h.logger.Info("WebSocket连接断开",
		zap.String("session_id", sessionID),
		zap.String("client_id", client.ID))
}

// onMessage 处理一条客户端消息并回复
func (h *WebSocketHandler) onMessage(ctx context.Context, client *ws.Client, data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.reply(client, errorMessage(0, apperrors.Wrap(err, apperrors.ErrMessageFormat)))
		return
	}
	logger.LogWebSocketMessage("receive", msg.Type, msg)

	reply := h.handle(ctx, client.SessionID, msg)
	h.reply(client, reply)

	switch reply.Type {
	case MessageTypeRoundResult:
		// 同一会话的其他连接同步回合结果
		push := reply
		push.Seq = 0
		h.broadcast(client.SessionID, push, client)
	case MessageTypeSessionClosed:
		push := reply
		push.Seq = 0
		h.broadcast(client.SessionID, push, client)
		h.clients.CloseSession(client.SessionID)
	}
}

// handle 处理单条客户端消息
func (h *WebSocketHandler) handle(ctx context.Context, sessionID string, msg ClientMessage) ServerMessage {
	switch msg.Type {
	case MessageTypePlay, MessageTypeBuyBonus:
		bet, err := parseBet(msg.Bet)
		if err != nil {
			return errorMessage(msg.Seq, err)
		}
		play := h.sessions.Play
		if msg.Type == MessageTypeBuyBonus {
			play = h.sessions.BuyBonus
		}
		result, err := play(ctx, sessionID, bet)
		if err != nil {
			return errorMessage(msg.Seq, err)
		}
		return ServerMessage{Type: MessageTypeRoundResult, Seq: msg.Seq, Data: result}

	case MessageTypeInfo:
		info, err := h.sessions.GetSessionInfo(ctx, sessionID)
		if err != nil {
			return errorMessage(msg.Seq, err)
		}
		return ServerMessage{Type: MessageTypeSessionInfo, Seq: msg.Seq, Data: info}

	case MessageTypeClose:
		reveal, err := h.sessions.CloseSession(ctx, sessionID)
		if err != nil {
			return errorMessage(msg.Seq, err)
		}
		return ServerMessage{Type: MessageTypeSessionClosed, Seq: msg.Seq, Data: reveal}

	default:
		return errorMessage(msg.Seq, apperrors.Newf(apperrors.ErrMessageFormat, "未知消息类型: %s", msg.Type))
	}
}

func (h *WebSocketHandler) reply(client *ws.Client, msg ServerMessage) {
	if err := client.SendJSON(msg); err != nil {
		h.logger.Warn("WebSocket回复失败",
			zap.String("client_id", client.ID),
			zap.Error(err))
		return
	}
	logger.LogWebSocketMessage("send", msg.Type, msg.Data)
}

// broadcast 推送给会话内的其他连接
func (h *WebSocketHandler) broadcast(sessionID string, msg ServerMessage, except *ws.Client) {
	if err := pushToSession(h.clients, sessionID, msg, except); err != nil {
		h.logger.Error("序列化推送消息失败", zap.Error(err))
	}
}

// pushToSession 向会话的实时连接推送消息，返回序列化错误
func pushToSession(clients *ws.ClientManager, sessionID string, msg ServerMessage, except *ws.Client) error {
	if clients == nil || clients.SessionCount(sessionID) == 0 {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	clients.BroadcastToSession(sessionID, data, except)
	return nil
}

func errorMessage(seq int64, err error) ServerMessage {
	var appErr *apperrors.AppError
	if e, ok := err.(*apperrors.AppError); ok {
		appErr = e
	} else {
		appErr = apperrors.Wrap(err, apperrors.ErrUnknown)
	}
	public := *appErr
	public.Stack = nil
	return ServerMessage{Type: MessageTypeError, Seq: seq, Error: &public}
}
