package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
	"github.com/keshav-const/inkwell-code/internal/repository/mocks"
	"github.com/keshav-const/inkwell-code/internal/service"
)

// --- 测试 CreateRoom 方法 ---

func TestRoomService_CreateRoom_Success(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()
	creatorID := uint(3)

	// 设置 Mock 预期:
	// 1. 生成的房间码未被占用
	mockRoomRepo.On("IsCodeExists", ctx, mock.MatchedBy(func(code string) bool {
		return len(code) == 6
	})).Return(false, nil).Once()
	// 2. Save 成功并分配 ID
	mockRoomRepo.On("Save", ctx, mock.MatchedBy(func(room *domain.Room) bool {
		assert.Equal(t, "My Project", room.Name)
		assert.Equal(t, creatorID, room.CreatorID)
		assert.Len(t, room.Code, 6, "房间码应为 6 位")
		return true
	})).
		Run(func(args mock.Arguments) {
			args.Get(1).(*domain.Room).ID = 11
		}).
		Return(nil).Once()
	// 3. 播种三个默认文件
	seededNames := make(map[string]bool)
	mockFileRepo.On("Save", ctx, mock.MatchedBy(func(file *domain.File) bool {
		assert.Equal(t, uint(11), file.RoomID)
		assert.NotEmpty(t, file.ID, "播种文件应有 UUID")
		seededNames[file.Name] = true
		return true
	})).Return(nil).Times(3)

	// Act
	room, err := roomService.CreateRoom(ctx, creatorID, "My Project")

	// Assert
	require.NoError(t, err)
	require.NotNil(t, room)
	assert.Equal(t, uint(11), room.ID)
	assert.True(t, seededNames["index.html"], "应播种 index.html")
	assert.True(t, seededNames["styles.css"], "应播种 styles.css")
	assert.True(t, seededNames["main.js"], "应播种 main.js")

	mockRoomRepo.AssertExpectations(t)
	mockFileRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_DefaultName(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	mockRoomRepo.On("IsCodeExists", ctx, mock.Anything).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()
	mockFileRepo.On("Save", ctx, mock.AnythingOfType("*domain.File")).Return(nil).Times(3)

	// Act: 名称为空时回退到默认名
	room, err := roomService.CreateRoom(ctx, 1, "")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "Untitled Room", room.Name)
}

func TestRoomService_CreateRoom_CodeCollisionRetries(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	// 第一次生成的房间码冲突，第二次成功
	mockRoomRepo.On("IsCodeExists", ctx, mock.Anything).Return(true, nil).Once()
	mockRoomRepo.On("IsCodeExists", ctx, mock.Anything).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()
	mockFileRepo.On("Save", ctx, mock.AnythingOfType("*domain.File")).Return(nil).Times(3)

	// Act
	_, err := roomService.CreateRoom(ctx, 1, "retry")

	// Assert
	require.NoError(t, err, "房间码冲突应重试而不是失败")
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_CreateRoom_SeedFailureIsNotFatal(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	mockRoomRepo.On("IsCodeExists", ctx, mock.Anything).Return(false, nil).Once()
	mockRoomRepo.On("Save", ctx, mock.AnythingOfType("*domain.Room")).Return(nil).Once()
	// 播种第一个文件就失败
	mockFileRepo.On("Save", ctx, mock.AnythingOfType("*domain.File")).
		Return(errors.New("disk full")).Once()

	// Act
	room, err := roomService.CreateRoom(ctx, 1, "broken seed")

	// Assert: 播种失败不回滚房间创建
	require.NoError(t, err, "播种失败不应导致创建房间失败")
	require.NotNil(t, room)
}

// --- 测试 JoinRoom 方法 ---

func TestRoomService_JoinRoom_Success(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	stored := &domain.Room{ID: 9, Name: "Shared", Code: "A1B2C3"}
	mockRoomRepo.On("FindByCode", ctx, "A1B2C3").Return(stored, nil).Once()
	mockRoomRepo.On("TouchLastActive", ctx, uint(9)).Return(nil).Once()

	// Act
	room, err := roomService.JoinRoom(ctx, 2, "A1B2C3")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint(9), room.ID)
	mockRoomRepo.AssertExpectations(t)
}

func TestRoomService_JoinRoom_InvalidCode(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	mockRoomRepo.On("FindByCode", ctx, "ZZZZZZ").Return(nil, repository.ErrRoomNotFound).Once()

	// Act
	_, err := roomService.JoinRoom(ctx, 2, "ZZZZZZ")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrInvalidRoomCode), "不存在的房间码应返回 ErrInvalidRoomCode")
	mockRoomRepo.AssertNotCalled(t, "TouchLastActive", mock.Anything, mock.Anything)
}

func TestRoomService_JoinRoom_TouchFailureIgnored(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	stored := &domain.Room{ID: 4, Code: "QWERTY"}
	mockRoomRepo.On("FindByCode", ctx, "QWERTY").Return(stored, nil).Once()
	mockRoomRepo.On("TouchLastActive", ctx, uint(4)).Return(errors.New("timeout")).Once()

	// Act
	room, err := roomService.JoinRoom(ctx, 2, "QWERTY")

	// Assert: 活跃时间刷新失败不影响加入
	require.NoError(t, err)
	assert.Equal(t, uint(4), room.ID)
}

// --- 测试 DeleteRoom 方法 ---

func TestRoomService_DeleteRoom_CreatorOnly(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	stored := &domain.Room{ID: 6, CreatorID: 1}
	mockRoomRepo.On("FindByID", ctx, uint(6)).Return(stored, nil).Once()

	// Act: 非创建者尝试删除
	err := roomService.DeleteRoom(ctx, 99, 6)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrPermissionDenied), "非创建者删除应返回 ErrPermissionDenied")
	mockRoomRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestRoomService_DeleteRoom_Success(t *testing.T) {
	// Arrange
	mockRoomRepo := new(mocks.RoomRepository)
	mockFileRepo := new(mocks.FileRepository)
	roomService := service.NewRoomService(mockRoomRepo, mockFileRepo)
	ctx := context.Background()

	stored := &domain.Room{ID: 6, CreatorID: 1}
	mockRoomRepo.On("FindByID", ctx, uint(6)).Return(stored, nil).Once()
	mockRoomRepo.On("Delete", ctx, uint(6)).Return(nil).Once()

	// Act
	err := roomService.DeleteRoom(ctx, 1, 6)

	// Assert
	require.NoError(t, err)
	mockRoomRepo.AssertExpectations(t)
}
