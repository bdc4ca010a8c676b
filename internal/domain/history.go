package domain

import "time"

// RoomHistory 记录用户访问过的房间，用于首页的 "最近的房间" 列表。
// 由后台任务在用户加入房间时异步写入，不在请求路径上。
type RoomHistory struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"index:idx_user_room,unique;not null"` // 访问者用户 ID
	RoomID      uint      `gorm:"index:idx_user_room,unique;not null"` // 被访问的房间 ID
	RoomCode    string    `gorm:"size:191;not null"`                   // 冗余存储房间码，房间删除后仍可展示
	JoinedAt    time.Time `gorm:"not null"`                            // 首次加入时间
	LastVisited time.Time `gorm:"index;not null"`                      // 最近一次访问时间
}
