package collab

import "github.com/keshav-const/inkwell-code/internal/domain"

// 向 UI 层（hub / WebSocket 客户端）投递的通知类型。
const (
	NotifyPresenceChanged = "presence-changed"
	NotifyFileChanged     = "file-changed"
	NotifyMessageReceived = "message-received"
)

// Notification 是协作核心暴露给 UI 层的事件。
// Kind 决定哪些字段有效。
type Notification struct {
	Kind         string               `json:"kind"`
	Participants []domain.Participant `json:"participants,omitempty"` // NotifyPresenceChanged: 当前全量集合
	File         *domain.File         `json:"file,omitempty"`         // NotifyFileChanged；nil 表示整个文件集已被 resync 替换
	Files        []domain.File        `json:"files,omitempty"`        // NotifyFileChanged 且 File 为 nil 时的全量文件集
	Message      *domain.ChatMessage  `json:"message,omitempty"`      // NotifyMessageReceived
}

// Notifier 接收协作核心产生的通知。回调在会话事件循环中同步执行，
// 实现方不得阻塞；需要慢速处理时应自行排队。
type Notifier func(Notification)
