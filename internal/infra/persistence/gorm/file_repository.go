package gormpersistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
)

// GormFileRepository 是 FileRepository 接口的 GORM 实现。
// 每次成功写入后通过 ChangeNotifier 向房间的实时主题发出变更通知，
// 这是存储层变更反馈回各个客户端的唯一信号。
type GormFileRepository struct {
	db       *gorm.DB
	notifier repository.ChangeNotifier // 可为 nil (例如离线工具、测试)
}

// NewGormFileRepository 创建 GormFileRepository 实例。notifier 可以为 nil。
func NewGormFileRepository(db *gorm.DB, notifier repository.ChangeNotifier) *GormFileRepository {
	if db == nil {
		panic("database connection cannot be nil for GormFileRepository")
	}
	return &GormFileRepository{db: db, notifier: notifier}
}

// ListByRoom 实现获取房间全部文件，按创建时间升序。
// 房间没有文件时返回空 slice。
func (r *GormFileRepository) ListByRoom(ctx context.Context, roomID uint) ([]domain.File, error) {
	files := make([]domain.File, 0)
	err := r.db.WithContext(ctx).Where("room_id = ?", roomID).
		Order("created_at asc, id asc").Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("gorm: list files of room %d: %w", roomID, err)
	}
	return files, nil
}

// FindByID 实现根据文件 ID 查找文件
func (r *GormFileRepository) FindByID(ctx context.Context, id string) (*domain.File, error) {
	var fileData domain.File
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&fileData).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrFileNotFound
		}
		return nil, fmt.Errorf("gorm: find file by id %s: %w", id, err)
	}
	return &fileData, nil
}

// Save 实现创建或整体更新一个文件
func (r *GormFileRepository) Save(ctx context.Context, fileData *domain.File) error {
	result := r.db.WithContext(ctx).Save(fileData)
	if err := result.Error; err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return repository.ErrDuplicateEntry
		}
		return fmt.Errorf("gorm: save file (id: %s, room: %d): %w", fileData.ID, fileData.RoomID, err)
	}
	r.notifyChange(ctx, fileData.RoomID, fileData.ID)
	return nil
}

// SaveContent 实现写入文件内容与写入时间戳。
// WHERE 条件里的 last_modified <= ? 让存储层同样遵循 last-write-wins：
// 存储中已有更新的写入时，本次写入被当作过期拒绝。被拒绝不是错误——
// 拒绝方随后的变更通知 / resync 会把权威内容带回给写入方。
func (r *GormFileRepository) SaveContent(ctx context.Context, id string, content string, timestamp int64, modifiedBy uint) error {
	result := r.db.WithContext(ctx).Model(&domain.File{}).
		Where("id = ? AND last_modified <= ?", id, timestamp).
		Updates(map[string]interface{}{
			"content":       content,
			"last_modified": timestamp,
			"modified_by":   modifiedBy,
		})
	if result.Error != nil {
		return fmt.Errorf("gorm: save content of file %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		// 区分 "文件不存在" 和 "LWW 拒绝"
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.File{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return fmt.Errorf("gorm: check existence of file %s: %w", id, err)
		}
		if count == 0 {
			return repository.ErrFileNotFound
		}
		logrus.WithFields(logrus.Fields{"file_id": id, "timestamp": timestamp}).
			Debug("Stale content write rejected by store")
	}
	// 无论接受还是 LWW 拒绝都发通知：写入方登记的期望计数依赖这条
	// 通知回流来平衡
	roomID, err := r.roomOf(ctx, id)
	if err == nil {
		r.notifyChange(ctx, roomID, id)
	}
	return nil
}

// Rename 实现更新文件名和语言标签
func (r *GormFileRepository) Rename(ctx context.Context, id string, newName string, language string) error {
	result := r.db.WithContext(ctx).Model(&domain.File{}).Where("id = ?", id).
		Updates(map[string]interface{}{"name": newName, "language": language})
	if result.Error != nil {
		return fmt.Errorf("gorm: rename file %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrFileNotFound
	}
	roomID, err := r.roomOf(ctx, id)
	if err == nil {
		r.notifyChange(ctx, roomID, id)
	}
	return nil
}

// Delete 实现删除单个文件
func (r *GormFileRepository) Delete(ctx context.Context, id string) error {
	// 先取 room_id，删除后就查不到了
	roomID, err := r.roomOf(ctx, id)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&domain.File{})
	if result.Error != nil {
		return fmt.Errorf("gorm: delete file %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return repository.ErrFileNotFound
	}
	r.notifyChange(ctx, roomID, id)
	return nil
}

// roomOf 查询文件所属的房间 ID。
func (r *GormFileRepository) roomOf(ctx context.Context, id string) (uint, error) {
	var fileData domain.File
	err := r.db.WithContext(ctx).Select("room_id").Where("id = ?", id).First(&fileData).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, repository.ErrFileNotFound
		}
		return 0, fmt.Errorf("gorm: find room of file %s: %w", id, err)
	}
	return fileData.RoomID, nil
}

// notifyChange 发出变更通知。通知是尽力而为的：失败只记日志，
// 不影响已经成功的写入，错过的通知由订阅方的下一次 resync 兜底。
func (r *GormFileRepository) notifyChange(ctx context.Context, roomID uint, fileID string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.NotifyFileChange(ctx, roomID, fileID); err != nil {
		logrus.WithFields(logrus.Fields{"room_id": roomID, "file_id": fileID}).
			WithError(err).Warn("Failed to publish file change notification")
	}
}
