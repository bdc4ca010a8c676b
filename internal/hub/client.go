package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/collab"
)

// Client 代表一个连接到 Hub 的 WebSocket 客户端。
// 每个客户端持有自己的协作会话：presence 注册表、文件同步引擎和聊天流
// 都是会话私有的，跨客户端的一致性由实时传输层保证。
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	roomID   uint
	roomCode string
	userID   uint
	userName string
	session  *collab.Session

	// send 由 enqueue/closeSend 统一管理：会话通知可能在注销之后
	// 仍在途，closed 标志防止向已关闭的通道写入。
	send     chan []byte
	sendMu   sync.Mutex
	closed   bool
}

// Run 启动客户端的读写 goroutine
func (c *Client) Run() {
	go c.WritePump()
	go c.ReadPump()
}

// ReadPump 将消息从 WebSocket 连接泵送到 Hub 的处理通道。
// 它在自己的 goroutine 中运行。
func (c *Client) ReadPump() {
	defer func() {
		// 清理操作：请求 Hub 注销此客户端
		unregisterMsg := HubMessage{Type: "unregister", Client: c}
		select {
		case c.hub.messageChan <- unregisterMsg:
		case <-time.After(1 * time.Second):
			logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).Warn("Timeout sending unregister message to Hub channel")
		}
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).Info("readPump exited, unregistered client")
	}()

	c.conn.SetReadLimit(maxMessageSize)
	// 设置初始读取超时和 Pong 处理程序
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait)) // 收到 Pong 后重置读取超时
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			logCtx := logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID})
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logCtx.WithError(err).Warn("WebSocket read error (unexpected close)")
			} else {
				logCtx.Debug("WebSocket connection closed normally or read error")
			}
			break // 退出循环，触发 defer 中的注销
		}

		// 只处理文本消息
		if messageType != websocket.TextMessage {
			logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).Debugf("Received non-text message type: %d", messageType)
			continue
		}

		frameMsg := HubMessage{
			Type:    "frame",
			RoomID:  c.roomID,
			UserID:  c.userID,
			Client:  c,
			RawData: message,
		}
		// 非阻塞发送到 Hub，如果 Hub 处理不过来则丢弃
		select {
		case c.hub.messageChan <- frameMsg:
		default:
			logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).Warn("Hub message channel full, dropping client message")
		}
	}
}

// WritePump 将消息从 Client 的 send 通道泵送到 WebSocket 连接。
// 它在自己的 goroutine 中运行。
func (c *Client) WritePump() {
	// 定时发送 Ping 以保持连接活跃并检测断开
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).Info("writePump exited")
		// 不需要在这里 unregister，readPump 退出会处理
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// send 通道被 Hub 关闭了（通常在注销时）
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).Info("Hub closed send channel")
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).WithError(err).Warn("Failed to write message to websocket")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).WithError(err).Warn("Failed to send ping message")
				return
			}
			_ = c.conn.SetWriteDeadline(time.Time{})
		}
	}
}

func (c *Client) RoomID() uint             { return c.roomID }
func (c *Client) UserID() uint             { return c.userID }
func (c *Client) Session() *collab.Session { return c.session }

// CloseConn 直接关闭底层 WebSocket 连接。
// 供注册失败等还没进入读写循环的场景使用。
func (c *Client) CloseConn() {
	_ = c.conn.Close()
}

// enqueue 把一条出站消息放进客户端的发送队列 (非阻塞)。
// 队列满说明客户端消费过慢，丢弃这条消息并记录警告。
// 已注销的客户端静默丢弃。
func (c *Client) enqueue(message []byte) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- message:
	default:
		logrus.WithFields(logrus.Fields{"user_id": c.userID, "room_id": c.roomID}).
			Warn("Client send channel full, dropping outbound message")
	}
}

// closeSend 关闭发送队列，使 WritePump 退出。幂等。
func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}
