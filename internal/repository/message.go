package repository

import (
	"context"
	"time"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// MessageRepository 定义了聊天消息的存储和查询。
// 消息是只追加的：没有更新和删除操作。
type MessageRepository interface {
	// ListByRoom 返回指定房间的消息，按 (created_at, id) 升序。
	// since 非零时只返回该时间之后的消息。
	ListByRoom(ctx context.Context, roomID uint, since time.Time) ([]domain.ChatMessage, error)

	// Append 追加一条新消息。
	Append(ctx context.Context, message *domain.ChatMessage) error
}
