package repository

import (
	"context"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// RoomRepository 定义了房间数据的存储和检索操作。
type RoomRepository interface {
	// FindByID 根据房间 ID 查找房间。
	// 如果房间不存在，应返回 repository.ErrRoomNotFound。
	FindByID(ctx context.Context, id uint) (*domain.Room, error)

	// FindByCode 根据房间码查找房间。
	// 如果房间不存在，应返回 repository.ErrRoomNotFound。
	FindByCode(ctx context.Context, code string) (*domain.Room, error)

	// Save 保存房间信息。
	// 如果房间已存在 (基于 ID)，则更新；否则创建新房间。
	Save(ctx context.Context, room *domain.Room) error

	// Delete 删除房间，并级联删除其下的文件和消息。
	Delete(ctx context.Context, id uint) error

	// IsCodeExists 检查房间码是否已存在。
	IsCodeExists(ctx context.Context, code string) (bool, error)

	// TouchLastActive 更新房间的最后活跃时间。
	TouchLastActive(ctx context.Context, id uint) error
}
