package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
)

// FileSyncEngine 持有一个房间文件集的权威内存副本，并使它在所有参与者
// 之间保持一致：应用本地编辑、广播、合并远端编辑和远端来源的持久化
// 变更通知，并在（重新）连接时做全量 resync。
//
// 冲突策略是按时间戳的 last-write-wins：同一文件在一个广播往返内的
// 并发编辑会静默丢掉时间戳较小一方的按键。这是有意为之的已知限制
// （见 Operation 的说明），resync 是限制两个客户端分歧时长的正确性兜底。
type FileSyncEngine struct {
	fileRepo  repository.FileRepository
	transport ChannelTransport
	topic     string
	roomID    uint
	userID    uint

	// uniqueNames 由房间策略决定：为 true 时 CreateFile 对重名返回
	// ErrDuplicateName。引擎本身不强制唯一。
	uniqueNames bool

	mu       sync.RWMutex
	files    map[string]*domain.File
	order    []string       // 文件插入顺序，Resync 后为存储返回顺序
	expected map[string]int // 文件 ID → 已在本地解释、等待存储变更通知回流的写入计数

	notify Notifier
	now    func() time.Time
}

// NewFileSyncEngine 创建某个房间的文件同步引擎。
func NewFileSyncEngine(fileRepo repository.FileRepository, transport ChannelTransport, roomID uint, userID uint, uniqueNames bool, notify Notifier) *FileSyncEngine {
	if fileRepo == nil {
		panic("FileRepository cannot be nil for FileSyncEngine")
	}
	if transport == nil {
		panic("ChannelTransport cannot be nil for FileSyncEngine")
	}
	if notify == nil {
		notify = func(Notification) {}
	}
	return &FileSyncEngine{
		fileRepo:    fileRepo,
		transport:   transport,
		topic:       Topic(roomID),
		roomID:      roomID,
		userID:      userID,
		uniqueNames: uniqueNames,
		files:       make(map[string]*domain.File),
		expected:    make(map[string]int),
		notify:      notify,
		now:         time.Now,
	}
}

// Files 返回当前文件集的副本。空文件集是合法状态（新房间尚未创建文件），
// 调用方不得假定 files[0] 存在。
func (e *FileSyncEngine) Files() []domain.File {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.File, 0, len(e.order))
	for _, id := range e.order {
		out = append(out, *e.files[id])
	}
	return out
}

// File 返回单个文件的副本。
func (e *FileSyncEngine) File(id string) (domain.File, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	f, ok := e.files[id]
	if !ok {
		return domain.File{}, false
	}
	return *f, true
}

// ApplyLocalEdit 应用一次本地编辑：写穿到持久化存储，打上本次写入的
// 逻辑时间戳（操作是全量快照而非增量，墙钟毫秒已足够），立即更新本地
// 权威副本（本地优先的乐观更新），然后广播 Operation。
// 持久化失败时绝不广播——广播只在存储确认之后发出。
func (e *FileSyncEngine) ApplyLocalEdit(ctx context.Context, fileID string, newContent string) error {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": e.roomID, "file_id": fileID})

	e.mu.Lock()
	file, ok := e.files[fileID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	ts := e.now().UnixMilli()
	// 在写存储之前登记期望，保证变更通知回流时能识别为本地来源。
	e.expected[fileID]++
	e.mu.Unlock()

	if err := e.fileRepo.SaveContent(ctx, fileID, newContent, ts, e.userID); err != nil {
		e.mu.Lock()
		e.unmarkExpectedLocked(fileID)
		e.mu.Unlock()
		logCtx.WithError(err).Error("Failed to persist local edit")
		return fmt.Errorf("persist edit: %w", err)
	}

	e.mu.Lock()
	// 存储已确认，更新本地副本。期间可能有更新的远端操作到达，
	// 仍然按 LWW 判定。
	if file.LastModified <= ts {
		file.Content = newContent
		file.LastModified = ts
		file.ModifiedBy = e.userID
	}
	updated := *file
	e.mu.Unlock()

	op := domain.Operation{FileID: fileID, UserID: e.userID, Timestamp: ts, Content: newContent}
	payload, err := json.Marshal(op)
	if err != nil {
		return fmt.Errorf("marshal operation: %w", err)
	}
	if err := e.transport.Publish(ctx, e.topic, EventCodeChange, payload); err != nil {
		// 本地与存储已是新内容，广播失败由对端的下一次 resync 补齐。
		logCtx.WithError(err).Warn("Failed to broadcast local edit")
		return fmt.Errorf("broadcast edit: %w", ErrConnection)
	}

	e.notify(Notification{Kind: NotifyFileChanged, File: &updated})
	return nil
}

// ApplyRemoteOperation 合并一个远端操作。
// 合并规则——按时间戳 last-write-wins：op.Timestamp 不早于本地记录的
// 时间戳时整体覆盖本地内容，否则把入站操作当作过期丢弃。
// 丢弃过期操作是正常流程而不是错误，只记 debug 日志。
func (e *FileSyncEngine) ApplyRemoteOperation(op domain.Operation) {
	logCtx := logrus.WithFields(logrus.Fields{"room_id": e.roomID, "file_id": op.FileID, "origin": op.UserID})

	e.mu.Lock()
	file, ok := e.files[op.FileID]
	if !ok {
		// 文件尚未被本地跟踪（例如对端刚创建）。忽略操作本身，
		// 下一次变更通知或 resync 会带来完整文件。
		e.mu.Unlock()
		logCtx.Debug("Remote operation for untracked file, waiting for resync")
		return
	}
	// 无论接受还是丢弃，发起方的存储写入都会产生一条变更通知；
	// 预先登记期望，避免把它误判为未知来源而触发多余的 resync。
	e.expected[op.FileID]++
	if !op.Supersedes(file.LastModified) {
		e.mu.Unlock()
		logCtx.WithFields(logrus.Fields{"op_ts": op.Timestamp, "local_ts": file.LastModified}).
			Debug("Stale remote operation discarded")
		return
	}
	file.Content = op.Content
	file.LastModified = op.Timestamp
	file.ModifiedBy = op.UserID
	updated := *file
	e.mu.Unlock()

	e.notify(Notification{Kind: NotifyFileChanged, File: &updated})
}

// Resync 从权威存储取回完整文件列表并无条件替换本地状态。
// 这是限制分歧时长的正确性兜底：两个客户端最多分歧到下一次 resync 触发。
// 触发时机：会话（重新）进入 Active，或收到无法用本地未决写入解释的
// 持久化变更通知。没有硬超时，失败时由调用方重试。
func (e *FileSyncEngine) Resync(ctx context.Context) error {
	files, err := e.fileRepo.ListByRoom(ctx, e.roomID)
	if err != nil {
		return fmt.Errorf("resync room %d: %w", e.roomID, err)
	}

	e.mu.Lock()
	e.files = make(map[string]*domain.File, len(files))
	e.order = e.order[:0]
	for i := range files {
		f := files[i]
		e.files[f.ID] = &f
		e.order = append(e.order, f.ID)
	}
	e.expected = make(map[string]int)
	snapshot := make([]domain.File, len(files))
	copy(snapshot, files)
	e.mu.Unlock()

	logrus.WithFields(logrus.Fields{"room_id": e.roomID, "files": len(files)}).Debug("File set resynced from store")
	e.notify(Notification{Kind: NotifyFileChanged, Files: snapshot})
	return nil
}

// HandleChangeNotification 处理存储层的变更通知。
// 本地发起的写入和已经合并过的远端操作会先登记期望，通知回流时据此
// 识别并跳过；其余通知说明有会话之外的写入发生，触发 resync。
func (e *FileSyncEngine) HandleChangeNotification(ctx context.Context, fileID string) error {
	e.mu.Lock()
	if fileID != "" && e.expected[fileID] > 0 {
		e.unmarkExpectedLocked(fileID)
		e.mu.Unlock()
		logrus.WithFields(logrus.Fields{"room_id": e.roomID, "file_id": fileID}).
			Debug("Change notification already explained locally, skipping resync")
		return nil
	}
	e.mu.Unlock()
	return e.Resync(ctx)
}

// CreateFile 创建一个新文件：生成新的文件 ID，按语言模板填充起始内容，
// 持久化并广播其存在。language 为空时由文件名扩展名推导。
func (e *FileSyncEngine) CreateFile(ctx context.Context, name string, language string) (*domain.File, error) {
	if language == "" {
		language = domain.LanguageForFilename(name)
	}

	e.mu.Lock()
	if e.uniqueNames {
		for _, id := range e.order {
			if e.files[id].Name == name {
				e.mu.Unlock()
				return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
			}
		}
	}
	e.mu.Unlock()

	file := &domain.File{
		ID:           uuid.NewString(),
		RoomID:       e.roomID,
		Name:         name,
		Language:     language,
		Content:      domain.TemplateForLanguage(language),
		LastModified: e.now().UnixMilli(),
		ModifiedBy:   e.userID,
	}

	e.mu.Lock()
	e.expected[file.ID]++
	e.mu.Unlock()

	if err := e.fileRepo.Save(ctx, file); err != nil {
		e.mu.Lock()
		e.unmarkExpectedLocked(file.ID)
		e.mu.Unlock()
		return nil, fmt.Errorf("persist new file: %w", err)
	}

	e.mu.Lock()
	e.files[file.ID] = file
	e.order = append(e.order, file.ID)
	created := *file
	e.mu.Unlock()

	e.notify(Notification{Kind: NotifyFileChanged, File: &created})
	return &created, nil
}

// RenameFile 重命名文件并根据新扩展名重新推导语言标签。
// 未收录的扩展名映射为 "plaintext"——这是接受的默认值，不是错误。
// 文件 ID 在重命名后保持不变。
func (e *FileSyncEngine) RenameFile(ctx context.Context, fileID string, newName string) error {
	e.mu.Lock()
	file, ok := e.files[fileID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	e.expected[fileID]++
	e.mu.Unlock()

	language := domain.LanguageForFilename(newName)
	if err := e.fileRepo.Rename(ctx, fileID, newName, language); err != nil {
		e.mu.Lock()
		e.unmarkExpectedLocked(fileID)
		e.mu.Unlock()
		return fmt.Errorf("persist rename: %w", err)
	}

	e.mu.Lock()
	file.Name = newName
	file.Language = language
	updated := *file
	e.mu.Unlock()

	e.notify(Notification{Kind: NotifyFileChanged, File: &updated})
	return nil
}

// DeleteFile 删除单个文件并广播。
func (e *FileSyncEngine) DeleteFile(ctx context.Context, fileID string) error {
	e.mu.Lock()
	if _, ok := e.files[fileID]; !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownFile, fileID)
	}
	e.mu.Unlock()

	if err := e.fileRepo.Delete(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}

	e.mu.Lock()
	delete(e.files, fileID)
	delete(e.expected, fileID)
	for i, id := range e.order {
		if id == fileID {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
	e.mu.Unlock()

	e.notify(Notification{Kind: NotifyFileChanged})
	return nil
}

func (e *FileSyncEngine) unmarkExpectedLocked(fileID string) {
	if e.expected[fileID] <= 1 {
		delete(e.expected, fileID)
		return
	}
	e.expected[fileID]--
}
