package gormpersistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
)

// GormMessageRepository 是 MessageRepository 接口的 GORM 实现
type GormMessageRepository struct {
	db *gorm.DB
}

// NewGormMessageRepository 创建 GormMessageRepository 实例
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	if db == nil {
		panic("database connection cannot be nil for GormMessageRepository")
	}
	return &GormMessageRepository{db: db}
}

// ListByRoom 实现获取房间消息，按 (created_at, id) 升序。
// 这与内存里的排序键一致，保证各端看到相同的顺序。
func (r *GormMessageRepository) ListByRoom(ctx context.Context, roomID uint, since time.Time) ([]domain.ChatMessage, error) {
	messages := make([]domain.ChatMessage, 0)
	query := r.db.WithContext(ctx).Where("room_id = ?", roomID)
	if !since.IsZero() {
		query = query.Where("created_at > ?", since)
	}
	err := query.Order("created_at asc, id asc").Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list messages of room %d: %w", roomID, err)
	}
	return messages, nil
}

// Append 实现追加一条新消息。消息只追加，重复的消息 ID 映射为
// ErrDuplicateEntry。
func (r *GormMessageRepository) Append(ctx context.Context, message *domain.ChatMessage) error {
	err := r.db.WithContext(ctx).Create(message).Error
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: append message %s to room %d: %w", message.ID, message.RoomID, err)
	}
	return nil
}
