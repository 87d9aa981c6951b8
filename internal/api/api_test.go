package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/slot-math/internal/config"
	apperrors "github.com/wfunc/slot-math/internal/errors"
	"github.com/wfunc/slot-math/internal/game"
	"github.com/wfunc/slot-math/internal/game/fair"
	"github.com/wfunc/slot-math/internal/game/shot"
	"github.com/wfunc/slot-math/internal/utils"
	"go.uber.org/zap"
)

type testServer struct {
	router *Router
	tokens *utils.JWTManager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	sessions, err := game.NewSessionManager(&game.SessionConfig{
		Logger: zap.NewNop(),
		Store:  game.NewMemoryStore(),
		Round:  shot.DefaultConfig(),
	})
	require.NoError(t, err)

	svc := game.NewGameService(&game.GameServiceConfig{
		Logger:   zap.NewNop(),
		Sessions: sessions,
	})
	require.NoError(t, svc.LoadTables(context.Background(), config.GameConfig{
		Name: "full_court",
		Tables: map[string]config.TableConfig{
			"base": {
				Rows:              100,
				TotalUnits:        1000,
				TargetRTP:         0.9,
				Cost:              1,
				JackpotMultiplier: 50,
				JackpotWeight:     1,
			},
		},
	}))

	defaults := config.Default()
	tokens := utils.NewJWTManager("test-secret", time.Hour)
	router := NewRouter(&RouterConfig{
		Service:   svc,
		Tokens:    tokens,
		Round:     defaults.Game.Round,
		WebSocket: defaults.WebSocket,
		Logger:    zap.NewNop(),
	})
	return &testServer{router: router, tokens: tokens}
}

func (s *testServer) do(t *testing.T, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.GetEngine().ServeHTTP(w, req)
	return w
}

func (s *testServer) open(t *testing.T, clientSeed string) OpenSessionResponse {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]string{"client_seed": clientSeed})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp OpenSessionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) apperrors.ErrorCode {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	require.NotNil(t, resp.Error)
	return resp.Error.Code
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, []interface{}{"base"}, resp["modes"])
}

type failingHealth struct{}

func (failingHealth) HealthCheck(ctx context.Context) error {
	return apperrors.New(apperrors.ErrDatabaseConnect)
}

func TestHealth_Unhealthy(t *testing.T) {
	s := newTestServer(t)
	s.router.health = failingHealth{}

	w := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t)
	opened := s.open(t, "player-seed")

	require.NotNil(t, opened.Session)
	assert.Len(t, opened.Session.ServerSeedHash, 64)
	assert.Equal(t, "player-seed", opened.Session.ClientSeed)
	assert.Equal(t, uint64(0), opened.Session.Counter)
	assert.NotEmpty(t, opened.Token)

	id := opened.Session.SessionID
	base := "/api/v1/sessions/" + id

	// 连续解析回合
	var results []*shot.RoundResult
	for i := 0; i < 5; i++ {
		w := s.do(t, http.MethodPost, base+"/rounds", opened.Token, game.RoundRequest{Bet: "1"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var resp game.RoundResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, id, resp.SessionID)
		require.NotNil(t, resp.Result)
		results = append(results, resp.Result)
	}
	for i, r := range results {
		assert.Equal(t, uint64(i+1), r.Counter)
	}

	// 会话信息
	w := s.do(t, http.MethodGet, base, opened.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var info game.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, int64(5), info.TotalRounds)

	// 回合记录
	w = s.do(t, http.MethodGet, base+"/rounds?page=1&page_size=2", opened.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history struct {
		Records  []map[string]interface{} `json:"records"`
		Page     int                      `json:"page"`
		PageSize int                      `json:"page_size"`
		Total    int64                    `json:"total"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Len(t, history.Records, 2)
	assert.Equal(t, int64(5), history.Total)
	assert.Equal(t, 2, history.PageSize)

	// 关闭并公开种子
	w = s.do(t, http.MethodPost, base+"/close", opened.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var reveal game.SessionReveal
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reveal))
	assert.Equal(t, "closed", reveal.Status)
	assert.Equal(t, opened.Session.ServerSeedHash, fair.HashSeed(reveal.ServerSeed))

	// 每个回合都可以由公开种子重算
	for _, r := range results {
		w = s.do(t, http.MethodPost, "/api/v1/verify", "", game.VerifyRequest{
			ServerSeed:     reveal.ServerSeed,
			ServerSeedHash: reveal.ServerSeedHash,
			ClientSeed:     reveal.ClientSeed,
			Counter:        r.Counter - 1,
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		var verify game.VerifyResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verify))
		assert.True(t, verify.Verified)
		assert.Equal(t, r.Draw, verify.Draw)
		assert.Len(t, verify.Digest, 64)
	}

	// 关闭后不能继续
	w = s.do(t, http.MethodPost, base+"/rounds", opened.Token, game.RoundRequest{Bet: "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ErrSessionClosed, errorCode(t, w))
}

func TestOpenSession_EmptyBody(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/sessions", "", map[string]string{"client_seed": strings.Repeat("x", 129)})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRoundValidation(t *testing.T) {
	s := newTestServer(t)
	opened := s.open(t, "seed")
	path := "/api/v1/sessions/" + opened.Session.SessionID + "/rounds"

	tests := []struct {
		name   string
		token  string
		body   interface{}
		status int
		code   apperrors.ErrorCode
	}{
		{"缺少令牌", "", game.RoundRequest{Bet: "1"}, http.StatusUnauthorized, apperrors.ErrAuthentication},
		{"非档位投注", opened.Token, game.RoundRequest{Bet: "0.3"}, http.StatusBadRequest, apperrors.ErrInvalidBet},
		{"投注格式错误", opened.Token, game.RoundRequest{Bet: "abc"}, http.StatusBadRequest, apperrors.ErrInvalidBet},
		{"负数投注", opened.Token, game.RoundRequest{Bet: "-1"}, http.StatusBadRequest, apperrors.ErrInvalidBet},
		{"缺少投注", opened.Token, map[string]string{}, http.StatusBadRequest, apperrors.ErrInvalidParam},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, path, tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}

	// 无效请求不推进计数器
	w := s.do(t, http.MethodGet, "/api/v1/sessions/"+opened.Session.SessionID, opened.Token, nil)
	var info game.SessionInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	assert.Equal(t, uint64(0), info.Counter)
}

func TestTokenBoundToSession(t *testing.T) {
	s := newTestServer(t)
	a := s.open(t, "a")
	b := s.open(t, "b")

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+b.Session.SessionID+"/rounds", a.Token, game.RoundRequest{Bet: "1"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, apperrors.ErrAuthorization, errorCode(t, w))
}

func TestBuyBonus(t *testing.T) {
	s := newTestServer(t)
	opened := s.open(t, "seed")
	path := "/api/v1/sessions/" + opened.Session.SessionID + "/buy-bonus"

	w := s.do(t, http.MethodPost, path, opened.Token, game.RoundRequest{Bet: "1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp game.RoundResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Result.BonusBought)
	assert.Equal(t, "100", resp.Result.Cost.String())
	assert.Equal(t, 5, resp.Result.FreeSpinsRemaining)
	assert.Equal(t, uint64(0), resp.Result.Counter)

	// 免费次数未用完时不能再次购买
	w = s.do(t, http.MethodPost, path, opened.Token, game.RoundRequest{Bet: "1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, apperrors.ErrBonusAlreadyActive, errorCode(t, w))

	// 免费回合不扣费
	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+opened.Session.SessionID+"/rounds", opened.Token, game.RoundRequest{Bet: "1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Result.FreeRound)
	assert.True(t, resp.Result.Cost.IsZero())
	assert.Equal(t, 4, resp.Result.FreeSpinsRemaining)
}

func TestVerify(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/api/v1/verify", "", game.VerifyRequest{
		ServerSeed: "server",
		ClientSeed: "client",
		Counter:    7,
	})
	require.Equal(t, http.StatusOK, w.Code)
	var resp game.VerifyResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, fair.Uniform("server", "client", 7), resp.Draw)
	assert.False(t, resp.Verified)

	// 承诺值不匹配
	w = s.do(t, http.MethodPost, "/api/v1/verify", "", game.VerifyRequest{
		ServerSeed:     "server",
		ServerSeedHash: fair.HashSeed("other"),
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 缺少服务端种子
	w = s.do(t, http.MethodPost, "/api/v1/verify", "", map[string]string{"client_seed": "c"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTables(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/api/v1/tables/base", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var mt game.ModeTable
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mt))
	assert.Equal(t, "base", mt.Mode)
	assert.Equal(t, "config", mt.Source)
	assert.Equal(t, int64(1000), mt.Analysis.TotalUnits)
	assert.Equal(t, int64(900), mt.Analysis.WeightedSum)
	assert.NotEmpty(t, mt.Checksum)

	w = s.do(t, http.MethodGet, "/api/v1/tables/bonus", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/v1/tables", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Tables []game.ModeTable `json:"tables"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Len(t, list.Tables, 1)

	w = s.do(t, http.MethodGet, "/api/v1/round-config", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var summary map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &summary))
	assert.Contains(t, summary, "outcome_probabilities")
	assert.Contains(t, summary, "bonus_config")
}

func TestOpenAPIAndNoRoute(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodGet, "/openapi", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/sessions")

	w = s.do(t, http.MethodGet, "/api/v1/nothing", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWebSocketPlay(t *testing.T) {
	s := newTestServer(t)
	opened := s.open(t, "ws-seed")

	srv := httptest.NewServer(s.router.Handler())
	defer srv.Close()

	url := fmt.Sprintf("ws%s/ws/sessions/%s?token=%s",
		strings.TrimPrefix(srv.URL, "http"), opened.Session.SessionID, opened.Token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	send := func(msg ClientMessage) map[string]interface{} {
		require.NoError(t, conn.WriteJSON(msg))
		var reply map[string]interface{}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&reply))
		return reply
	}

	reply := send(ClientMessage{Type: MessageTypePlay, Seq: 1, Bet: "1"})
	assert.Equal(t, MessageTypeRoundResult, reply["type"])
	assert.Equal(t, float64(1), reply["seq"])
	data := reply["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["counter"])

	reply = send(ClientMessage{Type: MessageTypePlay, Seq: 2, Bet: "0.3"})
	assert.Equal(t, MessageTypeError, reply["type"])
	errData := reply["error"].(map[string]interface{})
	assert.Equal(t, float64(apperrors.ErrInvalidBet), errData["code"])

	reply = send(ClientMessage{Type: "dance", Seq: 3})
	assert.Equal(t, MessageTypeError, reply["type"])

	reply = send(ClientMessage{Type: MessageTypeInfo, Seq: 4})
	assert.Equal(t, MessageTypeSessionInfo, reply["type"])
	data = reply["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["counter"])

	reply = send(ClientMessage{Type: MessageTypeClose, Seq: 5})
	assert.Equal(t, MessageTypeSessionClosed, reply["type"])
	data = reply["data"].(map[string]interface{})
	assert.NotEmpty(t, data["server_seed"])

	// 服务端随后关闭连接
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

func TestWebSocket_Unauthorized(t *testing.T) {
	s := newTestServer(t)
	opened := s.open(t, "ws-seed")

	srv := httptest.NewServer(s.router.Handler())
	defer srv.Close()

	url := fmt.Sprintf("ws%s/ws/sessions/%s", strings.TrimPrefix(srv.URL, "http"), opened.Session.SessionID)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestWebSocket_PushFromHTTP(t *testing.T) {
	s := newTestServer(t)
	opened := s.open(t, "push-seed")
	sessionID := opened.Session.SessionID

	srv := httptest.NewServer(s.router.Handler())
	defer srv.Close()

	url := fmt.Sprintf("ws%s/ws/sessions/%s?token=%s",
		strings.TrimPrefix(srv.URL, "http"), sessionID, opened.Token)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool {
		return s.router.clients.SessionCount(sessionID) == 1
	}, 2*time.Second, 10*time.Millisecond)

	read := func() map[string]interface{} {
		var msg map[string]interface{}
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		require.NoError(t, conn.ReadJSON(&msg))
		return msg
	}

	w := s.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/rounds", opened.Token, map[string]string{"bet": "1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	push := read()
	assert.Equal(t, MessageTypeRoundResult, push["type"])
	assert.NotContains(t, push, "seq")
	data := push["data"].(map[string]interface{})
	assert.Equal(t, float64(1), data["counter"])

	w = s.do(t, http.MethodPost, "/api/v1/sessions/"+sessionID+"/close", opened.Token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	push = read()
	assert.Equal(t, MessageTypeSessionClosed, push["type"])

	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
