package domain

import "time"

// Room 表示一个协作编辑房间。
type Room struct {
	ID         uint      `gorm:"primaryKey"`                    // 房间唯一标识符 (主键)
	Name       string    `gorm:"size:100;not null"`             // 房间显示名称
	Code       string    `gorm:"uniqueIndex;size:191;not null"` // 用于加入房间的房间码，全局唯一且创建后不可变
	CreatorID  uint      `gorm:"index;not null"`                // 创建该房间的用户 ID (外键关联到 User.ID, 添加索引)
	CreatedAt  time.Time `gorm:"autoCreateTime"`                // 房间创建时间 (GORM 自动填充)
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`                // 记录最后更新时间 (GORM 自动填充)
	LastActive time.Time `gorm:"index"`                         // 房间最后活跃时间 (用于清理不活跃房间, 添加索引)
}
