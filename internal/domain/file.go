package domain

import "time"

// File 表示房间内的一个代码文件。
// ID 在文件整个生命周期内保持稳定（包括重命名），因此使用 UUID 字符串主键，
// 而不是自增 ID。Content 始终与存储层接受的最新一次写入保持一致。
type File struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"` // 文件唯一标识符 (UUID)
	RoomID       uint      `gorm:"index;not null"`              // 所属房间 ID (外键关联 Room.ID, 添加索引)
	Name         string    `gorm:"size:255;not null"`           // 文件名（含扩展名）
	Language     string    `gorm:"size:50;not null"`            // 语言标签，由扩展名推导，例如 "javascript"
	Content      string    `gorm:"type:mediumtext"`             // 文件完整内容
	LastModified int64     `gorm:"index;not null"`              // 最近一次被接受写入的毫秒时间戳 (LWW 判定依据)
	ModifiedBy   uint      `gorm:""`                            // 最近一次修改者的用户 ID
	CreatedAt    time.Time `gorm:"autoCreateTime"`              // 记录创建时间 (GORM 自动填充)
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`              // 记录最后更新时间 (GORM 自动填充)
}
