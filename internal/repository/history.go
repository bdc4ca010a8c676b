package repository

import (
	"context"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// HistoryRepository 定义了房间访问历史的存储操作。
type HistoryRepository interface {
	// Upsert 记录一次房间访问：已有记录则只更新 LastVisited，
	// 否则插入新记录。
	Upsert(ctx context.Context, entry *domain.RoomHistory) error

	// ListByUser 返回用户最近访问的房间，按 LastVisited 降序。
	ListByUser(ctx context.Context, userID uint, limit int) ([]domain.RoomHistory, error)
}
