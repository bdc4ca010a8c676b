package gormpersistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// GormHistoryRepository 是 HistoryRepository 接口的 GORM 实现
type GormHistoryRepository struct {
	db *gorm.DB
}

// NewGormHistoryRepository 创建 GormHistoryRepository 实例
func NewGormHistoryRepository(db *gorm.DB) *GormHistoryRepository {
	if db == nil {
		panic("database connection cannot be nil for GormHistoryRepository")
	}
	return &GormHistoryRepository{db: db}
}

// Upsert 实现记录一次房间访问。
// (user_id, room_id) 上有唯一索引，冲突时只刷新 last_visited，
// 首次加入时间保持不变。
func (r *GormHistoryRepository) Upsert(ctx context.Context, entry *domain.RoomHistory) error {
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "room_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_visited", "room_code"}),
	}).Create(entry).Error
	if err != nil {
		return fmt.Errorf("gorm: upsert room history (user: %d, room: %d): %w", entry.UserID, entry.RoomID, err)
	}
	return nil
}

// ListByUser 实现获取用户最近访问的房间，按 last_visited 降序
func (r *GormHistoryRepository) ListByUser(ctx context.Context, userID uint, limit int) ([]domain.RoomHistory, error) {
	if limit <= 0 {
		limit = 20 // 默认返回最近 20 条
	}
	entries := make([]domain.RoomHistory, 0)
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("last_visited desc").Limit(limit).Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list room history of user %d: %w", userID, err)
	}
	return entries, nil
}
