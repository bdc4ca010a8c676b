package collab_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keshav-const/inkwell-code/internal/collab"
	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository/mocks"
)

// seedEngine 创建一个文件引擎并通过 Resync 填充初始文件集。
func seedEngine(t *testing.T, fileRepo *mocks.FileRepository, transport *fakeTransport, notify collab.Notifier, files []domain.File) *collab.FileSyncEngine {
	t.Helper()
	engine := collab.NewFileSyncEngine(fileRepo, transport, 1, 10, true, notify)
	fileRepo.On("ListByRoom", mock.Anything, uint(1)).Return(files, nil).Once()
	require.NoError(t, engine.Resync(context.Background()))
	return engine
}

func TestFileSyncEngine_ApplyLocalEdit_PersistsThenBroadcasts(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	engine := seedEngine(t, fileRepo, transport, rec.fn(), []domain.File{
		{ID: "f1", RoomID: 1, Name: "main.js", Language: "javascript", Content: "old", LastModified: 100},
	})

	fileRepo.On("SaveContent", mock.Anything, "f1", "new content", mock.AnythingOfType("int64"), uint(10)).
		Return(nil).Once()

	// Act
	err := engine.ApplyLocalEdit(context.Background(), "f1", "new content")

	// Assert
	require.NoError(t, err)
	updated, ok := engine.File("f1")
	require.True(t, ok)
	assert.Equal(t, "new content", updated.Content)
	assert.Equal(t, uint(10), updated.ModifiedBy)
	assert.Greater(t, updated.LastModified, int64(100), "时间戳应前进")

	// 广播发出并携带完整内容快照
	publishes := transport.publishCalls()
	require.Len(t, publishes, 1)
	assert.Equal(t, collab.EventCodeChange, publishes[0].Event)
	assert.Contains(t, string(publishes[0].Payload), "new content")
	assert.Contains(t, string(publishes[0].Payload), "f1")

	fileRepo.AssertExpectations(t)
}

func TestFileSyncEngine_ApplyLocalEdit_UnknownFile(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, nil)

	// Act
	err := engine.ApplyLocalEdit(context.Background(), "missing", "text")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, collab.ErrUnknownFile))
	assert.Empty(t, transport.publishCalls())
	fileRepo.AssertNotCalled(t, "SaveContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFileSyncEngine_ApplyLocalEdit_NoBroadcastOnPersistFailure(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Content: "old", LastModified: 100},
	})
	fileRepo.On("SaveContent", mock.Anything, "f1", mock.Anything, mock.Anything, mock.Anything).
		Return(errors.New("db down")).Once()

	// Act
	err := engine.ApplyLocalEdit(context.Background(), "f1", "unsaved")

	// Assert: 持久化失败时绝不广播，本地内容保持不变
	require.Error(t, err)
	assert.Empty(t, transport.publishCalls(), "存储确认前不得广播")
	current, _ := engine.File("f1")
	assert.Equal(t, "old", current.Content)
}

func TestFileSyncEngine_ApplyLocalEdit_BroadcastFailureReturnsConnectionError(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Content: "old", LastModified: 100},
	})
	fileRepo.On("SaveContent", mock.Anything, "f1", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()
	transport.publishErr = errors.New("pubsub down")

	// Act
	err := engine.ApplyLocalEdit(context.Background(), "f1", "saved but not broadcast")

	// Assert: 错误是 ErrConnection，但内容已保存且本地已更新
	require.Error(t, err)
	assert.True(t, errors.Is(err, collab.ErrConnection))
	current, _ := engine.File("f1")
	assert.Equal(t, "saved but not broadcast", current.Content)
}

func TestFileSyncEngine_ApplyRemoteOperation_LastWriteWins(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	engine := seedEngine(t, fileRepo, transport, rec.fn(), []domain.File{
		{ID: "f1", RoomID: 1, Content: "local", LastModified: 500, ModifiedBy: 10},
	})

	// Act: 较新的远端操作被接受
	engine.ApplyRemoteOperation(domain.Operation{FileID: "f1", UserID: 20, Timestamp: 600, Content: "remote wins"})

	// Assert
	current, _ := engine.File("f1")
	assert.Equal(t, "remote wins", current.Content)
	assert.Equal(t, int64(600), current.LastModified)
	assert.Equal(t, uint(20), current.ModifiedBy)
	assert.Equal(t, 1, rec.countKind(collab.NotifyFileChanged))
}

func TestFileSyncEngine_ApplyRemoteOperation_StaleDiscarded(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	engine := seedEngine(t, fileRepo, transport, rec.fn(), []domain.File{
		{ID: "f1", RoomID: 1, Content: "local", LastModified: 500},
	})

	// Act: 过期操作被静默丢弃
	engine.ApplyRemoteOperation(domain.Operation{FileID: "f1", UserID: 20, Timestamp: 400, Content: "stale"})

	// Assert: 丢弃不是错误，本地内容不变，也没有通知
	current, _ := engine.File("f1")
	assert.Equal(t, "local", current.Content)
	assert.Equal(t, int64(500), current.LastModified)
	assert.Equal(t, 0, rec.countKind(collab.NotifyFileChanged))
}

func TestFileSyncEngine_ApplyRemoteOperation_TieAcceptsRemote(t *testing.T) {
	// Arrange: 两端在平局时必须收敛到同一份内容
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Content: "local", LastModified: 500},
	})

	// Act: 时间戳相等的远端操作
	engine.ApplyRemoteOperation(domain.Operation{FileID: "f1", UserID: 20, Timestamp: 500, Content: "tie"})

	// Assert
	current, _ := engine.File("f1")
	assert.Equal(t, "tie", current.Content, "时间戳平局时应接受远端操作")
}

func TestFileSyncEngine_ApplyRemoteOperation_UntrackedFileIgnored(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, nil)

	// Act: 本地尚未跟踪的文件，操作被忽略，等待变更通知/resync 带来完整文件
	engine.ApplyRemoteOperation(domain.Operation{FileID: "unseen", UserID: 20, Timestamp: 100, Content: "x"})

	// Assert
	_, ok := engine.File("unseen")
	assert.False(t, ok)
}

func TestFileSyncEngine_Resync_ReplacesLocalState(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	rec := &notifyRecorder{}
	engine := seedEngine(t, fileRepo, transport, rec.fn(), []domain.File{
		{ID: "f1", RoomID: 1, Content: "diverged", LastModified: 999},
		{ID: "f2", RoomID: 1, Content: "doomed"},
	})

	// Act: 存储返回的权威状态无条件替换本地（f2 已不存在）
	authoritative := []domain.File{
		{ID: "f1", RoomID: 1, Content: "authoritative", LastModified: 800},
		{ID: "f3", RoomID: 1, Content: "new file"},
	}
	fileRepo.On("ListByRoom", mock.Anything, uint(1)).Return(authoritative, nil).Once()
	require.NoError(t, engine.Resync(context.Background()))

	// Assert
	files := engine.Files()
	require.Len(t, files, 2)
	f1, _ := engine.File("f1")
	assert.Equal(t, "authoritative", f1.Content, "resync 无条件覆盖，即使本地时间戳更大")
	_, f2ok := engine.File("f2")
	assert.False(t, f2ok)
	_, f3ok := engine.File("f3")
	assert.True(t, f3ok)
}

func TestFileSyncEngine_Resync_EmptyRoomIsValid(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := collab.NewFileSyncEngine(fileRepo, transport, 1, 10, true, nil)
	fileRepo.On("ListByRoom", mock.Anything, uint(1)).Return([]domain.File{}, nil).Once()

	// Act
	err := engine.Resync(context.Background())

	// Assert: 空文件集是合法状态
	require.NoError(t, err)
	assert.Empty(t, engine.Files())
}

func TestFileSyncEngine_ChangeNotification_LocalWriteAbsorbed(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Content: "old", LastModified: 100},
	})
	fileRepo.On("SaveContent", mock.Anything, "f1", mock.Anything, mock.Anything, mock.Anything).
		Return(nil).Once()
	require.NoError(t, engine.ApplyLocalEdit(context.Background(), "f1", "edited"))

	// Act: 本地写入产生的变更通知回流，应被吸收而不触发 resync
	err := engine.HandleChangeNotification(context.Background(), "f1")

	// Assert: 没有第二次 ListByRoom 调用
	require.NoError(t, err)
	fileRepo.AssertNumberOfCalls(t, "ListByRoom", 1)
}

func TestFileSyncEngine_ChangeNotification_UnexplainedTriggersResync(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Content: "old", LastModified: 100},
	})

	// Act: 会话之外的写入（例如 HTTP 接口直接改库）产生的通知
	fileRepo.On("ListByRoom", mock.Anything, uint(1)).Return([]domain.File{
		{ID: "f1", RoomID: 1, Content: "changed elsewhere", LastModified: 200},
	}, nil).Once()
	err := engine.HandleChangeNotification(context.Background(), "f1")

	// Assert: 无法用本地未决写入解释的通知触发 resync
	require.NoError(t, err)
	current, _ := engine.File("f1")
	assert.Equal(t, "changed elsewhere", current.Content)
	fileRepo.AssertExpectations(t)
}

func TestFileSyncEngine_ChangeNotification_MergedRemoteOpAbsorbed(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Content: "old", LastModified: 100},
	})

	// 合并过的远端操作：发起方的存储写入也会产生一条通知
	engine.ApplyRemoteOperation(domain.Operation{FileID: "f1", UserID: 20, Timestamp: 200, Content: "remote"})

	// Act
	err := engine.HandleChangeNotification(context.Background(), "f1")

	// Assert: 通知被吸收，不触发 resync
	require.NoError(t, err)
	fileRepo.AssertNumberOfCalls(t, "ListByRoom", 1)
}

func TestFileSyncEngine_CreateFile_TemplateAndLanguage(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, nil)
	fileRepo.On("Save", mock.Anything, mock.MatchedBy(func(f *domain.File) bool {
		return f.Name == "script.js" && f.Language == "javascript"
	})).Return(nil).Once()

	// Act: language 为空时由扩展名推导
	file, err := engine.CreateFile(context.Background(), "script.js", "")

	// Assert
	require.NoError(t, err)
	assert.NotEmpty(t, file.ID, "新文件应有生成的 ID")
	assert.Equal(t, "javascript", file.Language)
	assert.Equal(t, domain.TemplateForLanguage("javascript"), file.Content, "起始内容应为语言模板")
	assert.Equal(t, uint(10), file.ModifiedBy)

	_, tracked := engine.File(file.ID)
	assert.True(t, tracked, "创建后文件应进入本地跟踪")
	fileRepo.AssertExpectations(t)
}

func TestFileSyncEngine_CreateFile_DuplicateName(t *testing.T) {
	// Arrange: uniqueNames 策略开启
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Name: "main.js"},
	})

	// Act
	_, err := engine.CreateFile(context.Background(), "main.js", "")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, collab.ErrDuplicateName))
	fileRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

func TestFileSyncEngine_RenameFile_RemapsLanguage(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Name: "script.js", Language: "javascript"},
	})
	fileRepo.On("Rename", mock.Anything, "f1", "script.py", "python").Return(nil).Once()

	// Act
	err := engine.RenameFile(context.Background(), "f1", "script.py")

	// Assert: 文件 ID 不变，语言按新扩展名重新推导
	require.NoError(t, err)
	renamed, ok := engine.File("f1")
	require.True(t, ok)
	assert.Equal(t, "script.py", renamed.Name)
	assert.Equal(t, "python", renamed.Language)
	fileRepo.AssertExpectations(t)
}

func TestFileSyncEngine_RenameFile_UnknownExtensionIsPlaintext(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Name: "notes.md", Language: "markdown"},
	})
	fileRepo.On("Rename", mock.Anything, "f1", "notes.xyz", "plaintext").Return(nil).Once()

	// Act
	err := engine.RenameFile(context.Background(), "f1", "notes.xyz")

	// Assert: 未收录的扩展名是接受的默认值，不是错误
	require.NoError(t, err)
	renamed, _ := engine.File("f1")
	assert.Equal(t, "plaintext", renamed.Language)
}

func TestFileSyncEngine_DeleteFile(t *testing.T) {
	// Arrange
	fileRepo := new(mocks.FileRepository)
	transport := newFakeTransport()
	engine := seedEngine(t, fileRepo, transport, nil, []domain.File{
		{ID: "f1", RoomID: 1, Name: "a.js"},
		{ID: "f2", RoomID: 1, Name: "b.js"},
	})
	fileRepo.On("Delete", mock.Anything, "f1").Return(nil).Once()

	// Act
	err := engine.DeleteFile(context.Background(), "f1")

	// Assert
	require.NoError(t, err)
	_, ok := engine.File("f1")
	assert.False(t, ok)
	assert.Len(t, engine.Files(), 1)

	// 删除不存在的文件是错误
	err = engine.DeleteFile(context.Background(), "f1")
	assert.True(t, errors.Is(err, collab.ErrUnknownFile))
}
