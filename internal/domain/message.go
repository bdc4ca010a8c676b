package domain

import "time"

// ChatMessage 表示房间内的一条聊天消息。
// 消息一旦创建就不可变也不可删除，排序键为 (CreatedAt, ID)。
type ChatMessage struct {
	ID        string    `gorm:"type:varchar(36);primaryKey"` // 消息唯一标识符 (UUID)，同时用于排序时的平局判定
	RoomID    uint      `gorm:"index;not null"`              // 所属房间 ID (外键关联 Room.ID, 添加索引)
	UserID    uint      `gorm:"index;not null"`              // 发送者用户 ID
	UserName  string    `gorm:"size:100"`                    // 发送时的展示名称（冗余存储，避免查询 profiles）
	Text      string    `gorm:"type:text;not null"`          // 消息正文
	CreatedAt time.Time `gorm:"autoCreateTime;index"`        // 消息创建时间，主排序键
}

// Before 判断当前消息在排序上是否位于 other 之前。
// 先比较创建时间，相同时按 ID 字典序打破平局。
func (m *ChatMessage) Before(other *ChatMessage) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}
