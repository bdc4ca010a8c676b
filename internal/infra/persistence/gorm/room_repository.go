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

// GormRoomRepository 是 RoomRepository 接口的 GORM 实现
type GormRoomRepository struct {
	db *gorm.DB
}

// NewGormRoomRepository 创建 GormRoomRepository 实例
func NewGormRoomRepository(db *gorm.DB) *GormRoomRepository {
	if db == nil {
		panic("database connection cannot be nil for GormRoomRepository")
	}
	return &GormRoomRepository{db: db}
}

// FindByID 实现根据房间 ID 查找房间
func (r *GormRoomRepository) FindByID(ctx context.Context, id uint) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).First(&roomData, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by id %d: %w", id, err)
	}
	return &roomData, nil
}

// FindByCode 实现根据房间码查找房间
func (r *GormRoomRepository) FindByCode(ctx context.Context, code string) (*domain.Room, error) {
	var roomData domain.Room
	err := r.db.WithContext(ctx).Where("code = ?", code).First(&roomData).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrRoomNotFound
		}
		return nil, fmt.Errorf("gorm: find room by code '%s': %w", code, err)
	}
	return &roomData, nil
}

// Save 实现保存房间信息（创建或更新）
func (r *GormRoomRepository) Save(ctx context.Context, roomData *domain.Room) error {
	result := r.db.WithContext(ctx).Save(roomData)
	err := result.Error
	if err != nil {
		// 唯一约束检查 (以 MySQL 为例)：房间码冲突映射为仓库错误
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save room (id: %d, code: %s): %w", roomData.ID, roomData.Code, err)
	}
	return nil
}

// Delete 实现删除房间并级联删除其下的文件和消息。
// 在同一事务中完成，避免留下孤儿记录。
func (r *GormRoomRepository) Delete(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("room_id = ?", id).Delete(&domain.File{}).Error; err != nil {
			return fmt.Errorf("delete files of room %d: %w", id, err)
		}
		if err := tx.Where("room_id = ?", id).Delete(&domain.ChatMessage{}).Error; err != nil {
			return fmt.Errorf("delete messages of room %d: %w", id, err)
		}
		result := tx.Delete(&domain.Room{}, id)
		if result.Error != nil {
			return fmt.Errorf("delete room %d: %w", id, result.Error)
		}
		if result.RowsAffected == 0 {
			return repository.ErrRoomNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return err
		}
		return fmt.Errorf("gorm: delete room %d: %w", id, err)
	}
	return nil
}

// IsCodeExists 实现检查房间码是否存在
func (r *GormRoomRepository) IsCodeExists(ctx context.Context, code string) (bool, error) {
	var count int64
	// 使用 Count() 优化查询，只查询数量
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("code = ?", code).Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("gorm: count rooms by code '%s': %w", code, err)
	}
	return count > 0, nil
}

// TouchLastActive 实现更新房间的最后活跃时间
func (r *GormRoomRepository) TouchLastActive(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&domain.Room{}).Where("id = ?", id).
		UpdateColumn("last_active", time.Now()).Error
	if err != nil {
		return fmt.Errorf("gorm: touch last_active for room %d: %w", id, err)
	}
	return nil
}
