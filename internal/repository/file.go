package repository

import (
	"context"

	"github.com/keshav-const/inkwell-code/internal/domain"
)

// FileRepository 定义了房间文件在持久化存储中的操作。
// 这是协作核心对 "权威存储" 的唯一依赖面：FileSyncEngine 的
// Resync 通过 ListByRoom 获取完整权威文件列表，本地编辑通过
// SaveContent 写穿到存储。
type FileRepository interface {
	// ListByRoom 返回指定房间的全部文件，按创建时间升序。
	// 房间没有文件时返回空 slice，不是错误。
	ListByRoom(ctx context.Context, roomID uint) ([]domain.File, error)

	// FindByID 根据文件 ID 查找文件。
	// 如果文件不存在，应返回 repository.ErrFileNotFound。
	FindByID(ctx context.Context, id string) (*domain.File, error)

	// Save 创建或整体更新一个文件。
	Save(ctx context.Context, file *domain.File) error

	// SaveContent 写入文件内容与本次写入的毫秒时间戳。
	// 只有当 timestamp 不早于已存储的 LastModified 时写入才被接受，
	// 保证存储层同样遵循 last-write-wins。
	SaveContent(ctx context.Context, id string, content string, timestamp int64, modifiedBy uint) error

	// Rename 更新文件名和语言标签，文件 ID 保持不变。
	Rename(ctx context.Context, id string, newName string, language string) error

	// Delete 删除单个文件。
	Delete(ctx context.Context, id string) error
}
