// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	maxMessageBytes = 4 << 20
	sendBufferSize  = 64
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocketConnection 连接接口，*websocket.Conn 直接满足
type WebSocketConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// WebSocketClient 一个编辑器连接
type WebSocketClient struct {
	conn       WebSocketConnection
	scenarioID string
	send       chan []byte
	mu         sync.Mutex
	closed     bool
	lastPing   atomic.Int64
	createdAt  time.Time
}

func newWebSocketClient(conn WebSocketConnection, scenarioID string) *WebSocketClient {
	c := &WebSocketClient{
		conn:       conn,
		scenarioID: scenarioID,
		send:       make(chan []byte, sendBufferSize),
		createdAt:  time.Now(),
	}
	c.touch()
	return c
}

func (c *WebSocketClient) touch() {
	c.lastPing.Store(time.Now().UnixNano())
}

// enqueue 放入发送队列，队列已满或已关闭时丢弃
func (c *WebSocketClient) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *WebSocketClient) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// sendMessage 发送一条服务端消息
func (c *WebSocketClient) sendMessage(msgType string, data interface{}) bool {
	payload, err := encodeMessage(msgType, data, "")
	if err != nil {
		return false
	}
	return c.enqueue(payload)
}

func (c *WebSocketClient) sendError(message string) bool {
	payload, err := encodeMessage("error", nil, message)
	if err != nil {
		return false
	}
	return c.enqueue(payload)
}

// ServerMessage 服务端推送的消息
type ServerMessage struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

func encodeMessage(msgType string, data interface{}, errMsg string) ([]byte, error) {
	return json.Marshal(ServerMessage{
		Type:      msgType,
		Data:      data,
		Error:     errMsg,
		Timestamp: time.Now().UnixMilli(),
	})
}

// WebSocketManager 按剧本分组管理编辑器连接
type WebSocketManager struct {
	mu      sync.RWMutex
	clients map[string]map[*WebSocketClient]struct{}
	total   atomic.Int64
	dropped atomic.Int64
	logger  *utils.Logger
}

// NewWebSocketManager 创建连接管理器
func NewWebSocketManager() *WebSocketManager {
	return &WebSocketManager{
		clients: make(map[string]map[*WebSocketClient]struct{}),
		logger:  utils.GetLogger().With(map[string]interface{}{"component": "websocket"}),
	}
}

func (m *WebSocketManager) register(c *WebSocketClient) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.clients[c.scenarioID]
	if !ok {
		group = make(map[*WebSocketClient]struct{})
		m.clients[c.scenarioID] = group
	}
	group[c] = struct{}{}
	m.total.Add(1)
	m.logger.Info("编辑器已连接", map[string]interface{}{
		"scenario": c.scenarioID, "clients": len(group),
	})
}

// unregister 移除连接并返回该剧本剩余的连接数
func (m *WebSocketManager) unregister(c *WebSocketClient) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	group := m.clients[c.scenarioID]
	if _, ok := group[c]; ok {
		delete(group, c)
		c.close()
		m.logger.Info("编辑器已断开", map[string]interface{}{
			"scenario": c.scenarioID,
			"clients":  len(group),
			"duration": time.Since(c.createdAt).Round(time.Second).String(),
		})
	}
	if len(group) == 0 {
		delete(m.clients, c.scenarioID)
	}
	return len(group)
}

// BroadcastToScenario 向剧本的所有连接推送消息，except 非空时跳过该连接
func (m *WebSocketManager) BroadcastToScenario(scenarioID, msgType string, data interface{}, except *WebSocketClient) int {
	payload, err := encodeMessage(msgType, data, "")
	if err != nil {
		m.logger.Error("消息编码失败", map[string]interface{}{"type": msgType, "error": err.Error()})
		return 0
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	sent := 0
	for c := range m.clients[scenarioID] {
		if c == except {
			continue
		}
		if c.enqueue(payload) {
			sent++
		} else {
			m.dropped.Add(1)
		}
	}
	return sent
}

// ClientCount 剧本当前的连接数
func (m *WebSocketManager) ClientCount(scenarioID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[scenarioID])
}

// CloseScenario 关闭剧本的所有连接
func (m *WebSocketManager) CloseScenario(scenarioID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.clients[scenarioID] {
		c.close()
	}
	delete(m.clients, scenarioID)
}

// Shutdown 关闭全部连接
func (m *WebSocketManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, group := range m.clients {
		for c := range group {
			c.close()
		}
		delete(m.clients, id)
	}
	m.logger.Info("WebSocket管理器已关闭", nil)
}

// GetStatus 连接统计
func (m *WebSocketManager) GetStatus() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	active := 0
	for _, group := range m.clients {
		active += len(group)
	}
	return map[string]interface{}{
		"active_connections": active,
		"scenarios":          len(m.clients),
		"total_connections":  m.total.Load(),
		"dropped_messages":   m.dropped.Load(),
	}
}
