// internal/api/websocket_handlers.go
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/Corphon/NovelGenPage/internal/editor"
	"github.com/Corphon/NovelGenPage/internal/errors"
	"github.com/Corphon/NovelGenPage/internal/scenario"
	"github.com/Corphon/NovelGenPage/internal/services"
	"github.com/Corphon/NovelGenPage/internal/utils"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// EditorHub 每个剧本一个共享的编辑会话，最后一个连接离开时释放
type EditorHub struct {
	mu         sync.Mutex
	sessions   map[string]*editor.Session
	scenarios  *services.ScenarioService
	conversion *services.ConversionService
	uploads    *services.UploadService
	manager    *WebSocketManager
	logger     *utils.Logger
}

// NewEditorHub 创建编辑会话中心
func NewEditorHub(
	scenarios *services.ScenarioService,
	conversion *services.ConversionService,
	uploads *services.UploadService,
	manager *WebSocketManager,
) *EditorHub {
	return &EditorHub{
		sessions:   make(map[string]*editor.Session),
		scenarios:  scenarios,
		conversion: conversion,
		uploads:    uploads,
		manager:    manager,
		logger:     utils.GetLogger().With(map[string]interface{}{"component": "editor_hub"}),
	}
}

// Manager 底层连接管理器
func (h *EditorHub) Manager() *WebSocketManager {
	return h.manager
}

// join 注册连接并返回剧本的编辑会话，必要时从已保存内容创建
func (h *EditorHub) join(client *WebSocketClient) (*editor.Session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := client.scenarioID
	session, ok := h.sessions[id]
	if !ok {
		var err error
		if session, err = h.newSession(id); err != nil {
			return nil, err
		}
		h.sessions[id] = session
	}
	h.manager.register(client)
	return session, nil
}

// leave 注销连接，剧本没有连接时丢弃会话
func (h *EditorHub) leave(client *WebSocketClient) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.manager.unregister(client) == 0 {
		delete(h.sessions, client.scenarioID)
	}
}

// Close 剧本被删除时通知并断开所有编辑器
func (h *EditorHub) Close(scenarioID string) {
	h.manager.BroadcastToScenario(scenarioID, "deleted", gin.H{"id": scenarioID}, nil)

	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, scenarioID)
	h.manager.CloseScenario(scenarioID)
}

// Sessions 当前打开的编辑会话数
func (h *EditorHub) Sessions() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

func (h *EditorHub) newSession(id string) (*editor.Session, error) {
	session := editor.New(editor.Config{
		Engine: h.conversion.Engine(),
		Navigate: func(sceneID, label string) {
			h.manager.BroadcastToScenario(id, "navigate", gin.H{"scene_id": sceneID, "label": label}, nil)
		},
		Upload: h.upload,
	})

	sc, err := h.scenarios.Get(id)
	switch {
	case err == nil:
		session.Load(sc.Content)
	case errors.IsNotFoundError(err):
	default:
		return nil, err
	}

	session.OnChange(func(snap editor.Snapshot) {
		h.manager.BroadcastToScenario(id, "preview", snap, nil)
	})
	h.logger.Debug("编辑会话已创建", map[string]interface{}{"scenario": id, "existing": err == nil})
	return session, nil
}

// upload 把上传服务的校验错误转为不可重试的拒绝
func (h *EditorHub) upload(ctx context.Context, up editor.Upload) (string, error) {
	img, err := h.uploads.SaveImage(ctx, up.Filename, bytes.NewReader(up.Data))
	if err != nil {
		switch errors.TypeOf(err) {
		case errors.ErrorTypeValidation, errors.ErrorTypeTooLarge, errors.ErrorTypeUnsupported:
			return "", fmt.Errorf("%w: %v", editor.ErrRejected, err)
		}
		return "", err
	}
	return img.URL, nil
}

// EditorMessage 编辑器客户端发送的消息
type EditorMessage struct {
	Type       string        `json:"type"`
	Ops        []scenario.Op `json:"ops,omitempty"`
	Source     string        `json:"source,omitempty"`
	Index      int           `json:"index,omitempty"`
	Targets    []string      `json:"targets,omitempty"`
	SceneID    string        `json:"scene_id,omitempty"`
	Filename   string        `json:"filename,omitempty"`
	Data       []byte        `json:"data,omitempty"`
	Title      string        `json:"title,omitempty"`
	BaseDigest string        `json:"base_digest,omitempty"`
}

// EditorWebSocket 实时编辑通道 /ws/editor/:id
func (h *Handler) EditorWebSocket(c *gin.Context) {
	id := c.Param("id")
	if !services.ValidScenarioID(id) {
		h.Response.BadRequest(c, "剧本ID无效")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.GetLogger().Warn("WebSocket升级失败", map[string]interface{}{"scenario": id, "error": err.Error()})
		return
	}
	defer conn.Close()

	client := newWebSocketClient(conn, id)
	session, err := h.Editors.join(client)
	if err != nil {
		payload, _ := encodeMessage("error", nil, "打开剧本失败")
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		_ = conn.WriteMessage(websocket.TextMessage, payload)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.handleWebSocketWrites(ctx, client)
	}()

	client.sendMessage("preview", session.Snapshot())
	h.handleWebSocketReads(ctx, client, session)

	h.Editors.leave(client)
	<-writerDone
	cancel()
}

// handleWebSocketReads 读取并分发客户端消息，连接出错时返回
func (h *Handler) handleWebSocketReads(ctx context.Context, client *WebSocketClient, session *editor.Session) {
	conn := client.conn
	conn.SetReadLimit(maxMessageBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		client.touch()
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				utils.GetLogger().Warn("WebSocket读取失败", map[string]interface{}{
					"scenario": client.scenarioID, "error": err.Error(),
				})
			}
			return
		}
		client.touch()

		var msg EditorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			client.sendError("消息格式无效")
			continue
		}
		h.handleEditorMessage(ctx, client, session, msg)
	}
}

// handleEditorMessage 修改类消息经会话监听器广播 preview
func (h *Handler) handleEditorMessage(ctx context.Context, client *WebSocketClient, session *editor.Session, msg EditorMessage) {
	switch msg.Type {
	case "change":
		session.ApplyChange(msg.Ops)
	case "set_ops":
		session.SetOps(msg.Ops)
	case "set_source":
		session.Load(msg.Source)
	case "insert_scene":
		session.InsertSceneTemplate(msg.Index)
	case "insert_choice":
		session.InsertChoiceTemplate(msg.Index, msg.Targets...)
	case "navigate":
		if !session.ClickScene(msg.SceneID) {
			client.sendError("场景链接不存在: " + msg.SceneID)
		}
	case "upload_image":
		results := session.UploadImage(ctx, editor.Upload{Filename: msg.Filename, Data: msg.Data}, msg.Index)
		go func() {
			res := <-results
			if res.Err != nil {
				client.sendError("图片上传失败")
				return
			}
			client.sendMessage("upload_result", gin.H{"url": res.URL, "revision": res.Snapshot.Revision})
		}()
	case "save":
		h.saveFromEditor(client, session, msg)
	case "ping":
		client.sendMessage("pong", nil)
	default:
		client.sendError("未知的消息类型: " + msg.Type)
	}
}

func (h *Handler) saveFromEditor(client *WebSocketClient, session *editor.Session, msg EditorMessage) {
	sc, err := h.ScenarioService.Save(services.SaveScenarioRequest{
		ID:         client.scenarioID,
		Title:      msg.Title,
		Content:    session.Source(),
		BaseDigest: msg.BaseDigest,
	})
	if err != nil {
		switch errors.TypeOf(err) {
		case errors.ErrorTypeConflict:
			client.sendError("剧本已被修改，请重新加载")
		case errors.ErrorTypeValidation:
			client.sendError("剧本内容无效")
		default:
			client.sendError("保存剧本失败")
		}
		return
	}
	h.Editors.Manager().BroadcastToScenario(client.scenarioID, "saved", sc.Entry(), nil)
}

// handleWebSocketWrites 发送队列中的消息并定期 ping
func (h *Handler) handleWebSocketWrites(ctx context.Context, client *WebSocketClient) {
	conn := client.conn
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-client.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
