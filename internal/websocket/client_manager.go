package websocket

import (
	"sync"

	"go.uber.org/zap"
)

// ClientManager 按会话分组管理连接
type ClientManager struct {
	clients  map[string]*Client            // clientID -> client
	sessions map[string]map[string]*Client // sessionID -> clients
	mu       sync.RWMutex
	logger   *zap.Logger
}

// NewClientManager 创建客户端管理器
func NewClientManager(logger *zap.Logger) *ClientManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClientManager{
		clients:  make(map[string]*Client),
		sessions: make(map[string]map[string]*Client),
		logger:   logger,
	}
}

// Register 添加客户端
func (m *ClientManager) Register(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[c.ID] = c
	group, ok := m.sessions[c.SessionID]
	if !ok {
		group = make(map[string]*Client)
		m.sessions[c.SessionID] = group
	}
	group[c.ID] = c

	m.logger.Debug("客户端已添加",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID),
		zap.Int("session_clients", len(group)))
}

// Unregister 移除客户端
func (m *ClientManager) Unregister(c *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[c.ID]; !ok {
		return
	}
	delete(m.clients, c.ID)

	if group, ok := m.sessions[c.SessionID]; ok {
		delete(group, c.ID)
		// 会话内无连接时删除分组
		if len(group) == 0 {
			delete(m.sessions, c.SessionID)
		}
	}

	m.logger.Debug("客户端已移除",
		zap.String("client_id", c.ID),
		zap.String("session_id", c.SessionID))
}

// sessionClients 会话内连接的快照
func (m *ClientManager) sessionClients(sessionID string) []*Client {
	m.mu.RLock()
	defer m.mu.RUnlock()

	group := m.sessions[sessionID]
	result := make([]*Client, 0, len(group))
	for _, c := range group {
		result = append(result, c)
	}
	return result
}

// BroadcastToSession 向会话内除 except 外的所有连接推送，返回成功入队的数量
func (m *ClientManager) BroadcastToSession(sessionID string, data []byte, except *Client) int {
	sent := 0
	for _, c := range m.sessionClients(sessionID) {
		if c == except {
			continue
		}
		if err := c.Send(data); err != nil {
			m.logger.Warn("推送失败",
				zap.String("client_id", c.ID),
				zap.String("session_id", sessionID),
				zap.Error(err))
			// 缓冲区满说明客户端跟不上，直接断开
			if err == ErrSendBufferFull {
				c.Close()
			}
			continue
		}
		sent++
	}
	return sent
}

// CloseSession 关闭会话内的全部连接
func (m *ClientManager) CloseSession(sessionID string) int {
	clients := m.sessionClients(sessionID)
	for _, c := range clients {
		c.Close()
	}
	if len(clients) > 0 {
		m.logger.Info("会话连接已关闭",
			zap.String("session_id", sessionID),
			zap.Int("clients", len(clients)))
	}
	return len(clients)
}

// Count 当前连接数
func (m *ClientManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// SessionCount 会话内连接数
func (m *ClientManager) SessionCount(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}
