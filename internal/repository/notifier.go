package repository

import "context"

// ChangeNotifier 在持久化写入成功后向房间的实时主题发送变更通知。
// 持久化层只负责"存储变了"这一事实，订阅方自行决定是否需要 resync。
type ChangeNotifier interface {
	// NotifyFileChange 通知某房间的某个文件发生了持久化变更。
	// fileID 为空表示房间级变更（例如批量删除）。
	NotifyFileChange(ctx context.Context, roomID uint, fileID string) error
}
