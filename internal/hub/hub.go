// Package hub 维护活跃的 WebSocket 客户端，并把客户端发来的帧
// 路由到各自的协作会话。
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/collab"
	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
	"github.com/keshav-const/inkwell-code/internal/tasks"
)

// 包级别的 WebSocket 常量，供 hub 和 client 使用
const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// 入站帧上限。编辑帧携带文件全量内容，上限对齐存储列的量级。
	maxMessageSize = 1 << 20
)

// HubMessage 定义了在 Hub 内部通道传递的消息类型
type HubMessage struct {
	Type    string  // "register", "unregister", "frame"
	RoomID  uint    // 房间 ID
	UserID  uint    // 来源用户 ID
	Client  *Client // 关联的客户端
	RawData []byte  // 仅用于 frame (原始 WebSocket 消息)
}

// clientFrame 是客户端入站帧的统一形状，Type 决定哪些字段有效。
type clientFrame struct {
	Type     string `json:"type"`
	FileID   string `json:"file_id,omitempty"`
	Content  string `json:"content,omitempty"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
	Text     string `json:"text,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Status   string `json:"status,omitempty"`
}

// Hub 维护活跃客户端集合并协调消息处理。
// 协作语义本身在 collab.Session 里，Hub 只做连接生命周期管理和帧路由。
type Hub struct {
	// 内部通道，处理所有来自 Client 的事件
	messageChan chan HubMessage

	// 客户端集合，按 RoomID 组织
	rooms   map[uint]map[*Client]bool
	roomsMu sync.RWMutex

	transport   collab.ChannelTransport
	fileRepo    repository.FileRepository
	messageRepo repository.MessageRepository
	asynqClient *asynq.Client // 可为 nil (测试环境不启用后台任务)
}

// NewHub 创建并返回一个新的 Hub 实例
func NewHub(transport collab.ChannelTransport, fileRepo repository.FileRepository, messageRepo repository.MessageRepository, asynqClient *asynq.Client) *Hub {
	if transport == nil {
		panic("ChannelTransport cannot be nil for Hub")
	}
	if fileRepo == nil {
		panic("FileRepository cannot be nil for Hub")
	}
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for Hub")
	}
	return &Hub{
		messageChan: make(chan HubMessage, 512),
		rooms:       make(map[uint]map[*Client]bool),
		transport:   transport,
		fileRepo:    fileRepo,
		messageRepo: messageRepo,
		asynqClient: asynqClient,
	}
}

// NewClient 为一条 WebSocket 连接组装客户端及其私有协作会话。
// 会话产生的通知直接序列化后进入该客户端的发送队列。
func (h *Hub) NewClient(conn *websocket.Conn, room *domain.Room, user *domain.User) *Client {
	client := &Client{
		hub:      h,
		conn:     conn,
		roomID:   room.ID,
		roomCode: room.Code,
		userID:   user.ID,
		userName: user.Name(),
		send:     make(chan []byte, 256),
	}
	notify := func(n collab.Notification) {
		data, err := json.Marshal(n)
		if err != nil {
			logrus.WithField("kind", n.Kind).WithError(err).Error("Failed to marshal notification")
			return
		}
		client.enqueue(data)
	}
	files := collab.NewFileSyncEngine(h.fileRepo, h.transport, room.ID, user.ID, true, notify)
	chat := collab.NewChatStream(h.messageRepo, h.transport, room.ID, user.ID, user.Name(), notify)
	client.session = collab.NewSession(h.transport, files, chat, room.ID, user.ID, user.Name(), notify)
	return client
}

// Run 启动 Hub 的主事件处理循环。
// 它应该在一个单独的 goroutine 中运行。
func (h *Hub) Run() {
	log := logrus.WithField("component", "hub")
	log.Info("Hub is running...")

	for msg := range h.messageChan {
		switch msg.Type {
		case "register":
			h.registerClient(msg.Client)
		case "unregister":
			h.unregisterClient(msg.Client)
		case "frame":
			// 异步处理，避免阻塞 Hub 主循环；会话内部自行串行化
			go h.handleClientFrame(msg)
		default:
			log.Warnf("Hub: Received unknown message type: %s from user %d in room %d", msg.Type, msg.UserID, msg.RoomID)
		}
	}
	log.Info("Hub is shutting down...")
}

// registerClient 处理客户端注册逻辑
func (h *Hub) registerClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to register a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.roomID,
		"user_id": client.userID,
		"action":  "registerClient",
	})

	h.roomsMu.Lock()
	if _, ok := h.rooms[client.roomID]; !ok {
		h.rooms[client.roomID] = make(map[*Client]bool)
		logCtx.Info("Client list created for new room")
	}
	h.rooms[client.roomID][client] = true
	h.roomsMu.Unlock()
	logCtx.Info("Client registered to Hub")

	// 加入房间主题是阻塞操作（等待订阅确认），异步执行
	go h.joinSession(client)
}

// joinSession 让客户端的会话加入房间主题，失败时通知客户端并断开。
func (h *Hub) joinSession(client *Client) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": client.roomID, "user_id": client.userID})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := client.session.Join(ctx); err != nil {
		logCtx.WithError(err).Warn("Session failed to join room topic")
		h.sendError(client, "Failed to join room, please retry")
		// 触发注销流程并关闭连接
		h.QueueMessage(HubMessage{Type: "unregister", Client: client})
		client.conn.Close()
		return
	}
	logCtx.Info("Session joined room topic")

	h.enqueueRoomVisit(client)
}

// enqueueRoomVisit 把房间访问历史记录排入后台任务队列。
// 历史记录不在请求路径上，入队失败只记日志。
func (h *Hub) enqueueRoomVisit(client *Client) {
	if h.asynqClient == nil {
		return
	}
	payload, err := tasks.NewRoomVisitTask(client.userID, client.roomID, client.roomCode)
	if err != nil {
		logrus.WithError(err).Error("Failed to build room visit task payload")
		return
	}
	task := asynq.NewTask(tasks.TypeRoomVisit, payload)
	if _, err := h.asynqClient.Enqueue(task, asynq.Queue("default"), asynq.MaxRetry(3)); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": client.roomID, "user_id": client.userID}).
			WithError(err).Warn("Failed to enqueue room visit task")
	}
}

// unregisterClient 处理客户端注销逻辑
func (h *Hub) unregisterClient(client *Client) {
	if client == nil {
		logrus.Error("Hub: Attempted to unregister a nil client")
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{
		"room_id": client.roomID,
		"user_id": client.userID,
		"action":  "unregisterClient",
	})

	h.roomsMu.Lock()
	removed := false
	if roomClients, roomExists := h.rooms[client.roomID]; roomExists {
		if _, clientExists := roomClients[client]; clientExists {
			delete(roomClients, client)
			removed = true
			// 关闭此客户端的 send 通道，这将导致其 WritePump 退出
			client.closeSend()
			if len(roomClients) == 0 {
				delete(h.rooms, client.roomID)
				logCtx.Info("Room empty, removed from Hub")
			}
		} else {
			logCtx.Warn("Client not found in room during unregister")
		}
	} else {
		logCtx.Warn("Room not found during client unregister")
	}
	h.roomsMu.Unlock()

	if removed {
		// Leave 是幂等的：撤销 presence 跟踪并关闭订阅
		client.session.Leave()
		logCtx.Info("Client unregistered from Hub")
	}
}

// handleClientFrame 解析并路由一个客户端帧。
// 业务错误（空消息、未知文件、重名）以 error 帧回给发送方，
// 不影响其他客户端。
func (h *Hub) handleClientFrame(msg HubMessage) {
	client := msg.Client
	if client == nil {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"room_id": msg.RoomID, "user_id": msg.UserID})

	var frame clientFrame
	if err := json.Unmarshal(msg.RawData, &frame); err != nil {
		logCtx.WithError(err).Warn("Discarding malformed client frame")
		h.sendError(client, "malformed frame")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	session := client.session

	switch frame.Type {
	case "cursor":
		session.UpdateCursor(frame.Line, frame.Column, frame.FileID)

	case "edit":
		if err := session.Files().ApplyLocalEdit(ctx, frame.FileID, frame.Content); err != nil {
			logCtx.WithError(err).Warn("Failed to apply local edit")
			h.sendError(client, frameErrorMessage(err))
		}

	case "chat":
		message, err := session.Chat().Send(ctx, frame.Text)
		if err != nil {
			if !errors.Is(err, collab.ErrEmptyMessage) {
				logCtx.WithError(err).Warn("Failed to send chat message")
			}
			h.sendError(client, frameErrorMessage(err))
			return
		}
		// 发送方的回显：远端回流会被按 ID 去重，这里直接通知本端
		h.notifyClient(client, collab.Notification{Kind: collab.NotifyMessageReceived, Message: message})

	case "file-create":
		if _, err := session.Files().CreateFile(ctx, frame.Name, frame.Language); err != nil {
			logCtx.WithError(err).Warn("Failed to create file")
			h.sendError(client, frameErrorMessage(err))
		}

	case "file-rename":
		if err := session.Files().RenameFile(ctx, frame.FileID, frame.Name); err != nil {
			logCtx.WithError(err).Warn("Failed to rename file")
			h.sendError(client, frameErrorMessage(err))
		}

	case "file-delete":
		if err := session.Files().DeleteFile(ctx, frame.FileID); err != nil {
			logCtx.WithError(err).Warn("Failed to delete file")
			h.sendError(client, frameErrorMessage(err))
		}

	case "status":
		session.SetStatus(ctx, domain.ParticipantStatus(frame.Status))

	case "resync":
		// 客户端显式请求全量重新同步
		if err := session.Files().Resync(ctx); err != nil {
			logCtx.WithError(err).Warn("Client-requested resync failed")
			h.sendError(client, "resync failed")
		}

	default:
		logCtx.Warnf("Unknown client frame type: %s", frame.Type)
		h.sendError(client, "unknown frame type")
	}
}

// notifyClient 把一条通知序列化后放进客户端的发送队列。
func (h *Hub) notifyClient(client *Client, n collab.Notification) {
	data, err := json.Marshal(n)
	if err != nil {
		logrus.WithField("kind", n.Kind).WithError(err).Error("Failed to marshal notification")
		return
	}
	client.enqueue(data)
}

// sendError 向客户端发送一个 error 帧。
func (h *Hub) sendError(client *Client, message string) {
	data, err := json.Marshal(map[string]string{"kind": "error", "message": message})
	if err != nil {
		return
	}
	client.enqueue(data)
}

// frameErrorMessage 把协作核心的业务错误翻译成面向客户端的文案，
// 内部错误不泄露细节。
func frameErrorMessage(err error) string {
	switch {
	case errors.Is(err, collab.ErrEmptyMessage):
		return "message is empty"
	case errors.Is(err, collab.ErrUnknownFile):
		return "unknown file"
	case errors.Is(err, collab.ErrDuplicateName):
		return "file name already exists"
	case errors.Is(err, collab.ErrConnection):
		return "broadcast failed, changes saved"
	case errors.Is(err, collab.ErrSessionClosed):
		return "session closed"
	default:
		return "operation failed"
	}
}

// StopAllSubscriptions 结束所有客户端的协作会话，用于优雅关闭。
func (h *Hub) StopAllSubscriptions() {
	h.roomsMu.RLock()
	clients := make([]*Client, 0)
	for _, roomClients := range h.rooms {
		for client := range roomClients {
			clients = append(clients, client)
		}
	}
	h.roomsMu.RUnlock()

	for _, client := range clients {
		client.session.Leave()
	}
	logrus.WithField("count", len(clients)).Info("All client sessions left their rooms")
}

// QueueMessage 将消息放入 Hub 的处理队列 (非阻塞)。
// 这是 Client 向 Hub 发送消息的安全方式。
// 返回 true 如果消息成功入队，false 如果队列已满。
func (h *Hub) QueueMessage(msg HubMessage) bool {
	select {
	case h.messageChan <- msg:
		return true
	default:
		logrus.WithFields(logrus.Fields{
			"message_type": msg.Type,
			"room_id":      msg.RoomID,
			"user_id":      msg.UserID,
		}).Warn("Hub message channel full, dropping message")
		return false
	}
}
