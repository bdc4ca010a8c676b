package collab

import "errors"

// 协作核心的业务错误。
// 注意：丢弃过期的远端操作（stale operation）是正常流程而不是错误，
// 最多记录一条 debug 日志，因此这里没有对应的错误定义。
var (
	// ErrConnection 表示实时通道订阅或发布失败。可重试，但由调用方决定，
	// 本层绝不静默自动重试。
	ErrConnection = errors.New("collab: realtime connection failed")
	// ErrUnknownFile 表示操作引用了一个未被跟踪的文件 ID（调用方持有过期引用）。
	ErrUnknownFile = errors.New("collab: unknown file")
	// ErrDuplicateName 表示房间策略要求文件名唯一时出现了重名。
	ErrDuplicateName = errors.New("collab: duplicate file name")
	// ErrEmptyMessage 表示聊天消息为空白内容。
	ErrEmptyMessage = errors.New("collab: empty chat message")
	// ErrSessionClosed 表示会话已关闭，不再接受操作。
	ErrSessionClosed = errors.New("collab: session closed")
)
