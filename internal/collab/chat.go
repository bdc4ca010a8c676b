package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
)

// ChatStream 维护一个房间的只追加消息日志：由持久化插入和实时投递共同
// 驱动。消息一旦发出就不可编辑、不可删除。本地序列只追加、从不重排，
// 避免界面上的消息跳动；排序按 (CreatedAt, ID) 单调递增。
type ChatStream struct {
	messageRepo repository.MessageRepository
	transport   ChannelTransport
	topic       string
	roomID      uint
	userID      uint
	userName    string

	mu       sync.RWMutex
	messages []domain.ChatMessage
	seen     map[string]struct{} // 按消息 ID 去重，防止持久化回放与实时投递重复追加

	notify Notifier
	now    func() time.Time
}

// NewChatStream 创建某个房间的聊天流。
func NewChatStream(messageRepo repository.MessageRepository, transport ChannelTransport, roomID uint, userID uint, userName string, notify Notifier) *ChatStream {
	if messageRepo == nil {
		panic("MessageRepository cannot be nil for ChatStream")
	}
	if transport == nil {
		panic("ChannelTransport cannot be nil for ChatStream")
	}
	if notify == nil {
		notify = func(Notification) {}
	}
	return &ChatStream{
		messageRepo: messageRepo,
		transport:   transport,
		topic:       Topic(roomID),
		roomID:      roomID,
		userID:      userID,
		userName:    userName,
		seen:        make(map[string]struct{}),
		notify:      notify,
		now:         time.Now,
	}
}

// Send 发送一条消息：先持久化，存储确认后再广播。
// 空白内容（空串或纯空白）返回 ErrEmptyMessage。
func (c *ChatStream) Send(ctx context.Context, text string) (*domain.ChatMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	msg := &domain.ChatMessage{
		ID:        uuid.NewString(),
		RoomID:    c.roomID,
		UserID:    c.userID,
		UserName:  c.userName,
		Text:      strings.TrimSpace(text),
		CreatedAt: c.now().UTC(),
	}

	if err := c.messageRepo.Append(ctx, msg); err != nil {
		return nil, fmt.Errorf("persist message: %w", err)
	}

	c.append(*msg)

	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	if err := c.transport.Publish(ctx, c.topic, EventChatMessage, payload); err != nil {
		// 消息已持久化，对端会在下一次 LoadHistory 时看到。
		logrus.WithFields(logrus.Fields{"room_id": c.roomID, "message_id": msg.ID}).
			WithError(err).Warn("Failed to broadcast chat message")
		return msg, fmt.Errorf("broadcast message: %w", ErrConnection)
	}
	return msg, nil
}

// OnRemoteMessage 追加一条实时投递的消息。只追加、从不重排已有条目；
// 重复投递（相同 ID）被丢弃。
func (c *ChatStream) OnRemoteMessage(msg domain.ChatMessage) {
	if c.append(msg) {
		c.notify(Notification{Kind: NotifyMessageReceived, Message: &msg})
	}
}

// LoadHistory 在实时投递开始前一次性拉取已有消息（按创建时间升序）
// 作为本地序列的种子。
func (c *ChatStream) LoadHistory(ctx context.Context) ([]domain.ChatMessage, error) {
	history, err := c.messageRepo.ListByRoom(ctx, c.roomID, time.Time{})
	if err != nil {
		return nil, fmt.Errorf("load chat history for room %d: %w", c.roomID, err)
	}

	c.mu.Lock()
	c.messages = make([]domain.ChatMessage, len(history))
	copy(c.messages, history)
	c.seen = make(map[string]struct{}, len(history))
	for i := range history {
		c.seen[history[i].ID] = struct{}{}
	}
	out := make([]domain.ChatMessage, len(history))
	copy(out, history)
	c.mu.Unlock()
	return out, nil
}

// Messages 返回当前本地消息序列的副本。
func (c *ChatStream) Messages() []domain.ChatMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.ChatMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// append 把消息追加到本地序列。返回 false 表示该 ID 已存在。
func (c *ChatStream) append(msg domain.ChatMessage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.seen[msg.ID]; dup {
		return false
	}
	c.seen[msg.ID] = struct{}{}
	c.messages = append(c.messages, msg)
	return true
}
