package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
)

// RoomService 负责房间管理相关的业务逻辑。
type RoomService struct {
	roomRepo repository.RoomRepository
	fileRepo repository.FileRepository
}

// NewRoomService 创建 RoomService 实例。
func NewRoomService(roomRepo repository.RoomRepository, fileRepo repository.FileRepository) *RoomService {
	if roomRepo == nil {
		panic("RoomRepository cannot be nil for RoomService")
	}
	if fileRepo == nil {
		panic("FileRepository cannot be nil for RoomService")
	}
	return &RoomService{
		roomRepo: roomRepo,
		fileRepo: fileRepo,
	}
}

// CreateRoom 创建一个新房间，并播种默认的起始文件
// (index.html / styles.css / main.js)，让新房间打开即有内容可编辑。
func (s *RoomService) CreateRoom(ctx context.Context, creatorID uint, name string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"creator_id": creatorID, "room_name": name})

	if name == "" {
		name = "Untitled Room"
	}

	// 1. 生成唯一的房间码
	code, err := s.generateUniqueRoomCode(ctx)
	if err != nil {
		logCtx.WithError(err).Error("Failed to generate unique room code")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_code", code)

	// 2. 创建房间对象
	room := &domain.Room{
		Name:      name,
		Code:      code,
		CreatorID: creatorID,
		// GORM 会自动处理 CreatedAt, UpdatedAt
	}

	// 3. 保存房间 (调用 Repository 接口)
	err = s.roomRepo.Save(ctx, room)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateEntry) {
			// 唯一性检查和插入之间的竞态，理论上极少发生
			logCtx.WithError(err).Error("Failed to save new room due to duplicate entry (room code conflict?)")
			return nil, ErrInternalServer
		}
		logCtx.WithError(err).Error("Failed to save new room to database")
		return nil, ErrInternalServer
	}
	logCtx = logCtx.WithField("room_id", room.ID)

	// 4. 播种默认文件。播种失败不回滚房间：空房间依然可用，
	// 用户可以手动创建文件。
	if err := s.seedDefaultFiles(ctx, room.ID, creatorID); err != nil {
		logCtx.WithError(err).Warn("Failed to seed default files for new room")
	}

	logCtx.Info("Room created successfully")
	return room, nil
}

// JoinRoom 处理用户通过房间码加入房间。
func (s *RoomService) JoinRoom(ctx context.Context, userID uint, code string) (*domain.Room, error) {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_code": code})

	// 1. 根据房间码查找房间 (调用 Repository 接口)
	room, err := s.roomRepo.FindByCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.WithError(err).Warn("Failed to find room by code: Not found")
			return nil, ErrInvalidRoomCode // 返回业务错误：无效房间码
		}
		logCtx.WithError(err).Warn("Failed to find room by code: Repository error")
		return nil, ErrInternalServer
	}
	// 防御性检查
	if room == nil {
		logCtx.Warn("Failed to find room by code (repo returned nil room without error)")
		return nil, ErrInvalidRoomCode
	}

	logCtx = logCtx.WithField("room_id", room.ID)

	// 2. 刷新房间活跃时间，失败只记日志
	if err := s.roomRepo.TouchLastActive(ctx, room.ID); err != nil {
		logCtx.WithError(err).Warn("Failed to touch room last_active")
	}

	logCtx.Info("User joined room successfully")
	return room, nil
}

// FindRoomByID 按 ID 查找房间，供 WebSocket Handler 使用。
func (s *RoomService) FindRoomByID(ctx context.Context, roomID uint) (*domain.Room, error) {
	logCtx := logrus.WithField("room_id", roomID)
	room, err := s.roomRepo.FindByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			logCtx.Warn("FindRoomByID: Room not found")
			return nil, ErrRoomNotFound
		}
		logCtx.WithError(err).Error("FindRoomByID: Repository error")
		return nil, ErrInternalServer
	}
	if room == nil { // 防御
		logCtx.Warn("FindRoomByID: Repository returned nil room without error")
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// DeleteRoom 删除房间及其全部文件和消息。只有创建者可以删除。
func (s *RoomService) DeleteRoom(ctx context.Context, userID uint, roomID uint) error {
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	room, err := s.FindRoomByID(ctx, roomID)
	if err != nil {
		return err
	}
	if room.CreatorID != userID {
		logCtx.Warn("DeleteRoom: User is not the room creator")
		return ErrPermissionDenied
	}

	if err := s.roomRepo.Delete(ctx, roomID); err != nil {
		if errors.Is(err, repository.ErrRoomNotFound) {
			return ErrRoomNotFound
		}
		logCtx.WithError(err).Error("DeleteRoom: Repository error")
		return ErrInternalServer
	}

	logCtx.Info("Room deleted successfully")
	return nil
}

// ListRoomFiles 返回房间的全部文件，供 HTTP 接口展示。
func (s *RoomService) ListRoomFiles(ctx context.Context, roomID uint) ([]domain.File, error) {
	files, err := s.fileRepo.ListByRoom(ctx, roomID)
	if err != nil {
		logrus.WithField("room_id", roomID).WithError(err).Error("ListRoomFiles: Repository error")
		return nil, ErrInternalServer
	}
	return files, nil
}

// --- 私有辅助函数 ---

// seedDefaultFiles 为新房间播种起始文件。
func (s *RoomService) seedDefaultFiles(ctx context.Context, roomID uint, creatorID uint) error {
	seeds := []struct {
		name     string
		language string
	}{
		{"index.html", "html"},
		{"styles.css", "css"},
		{"main.js", "javascript"},
	}
	for _, seed := range seeds {
		file := &domain.File{
			ID:         uuid.NewString(),
			RoomID:     roomID,
			Name:       seed.name,
			Language:   seed.language,
			Content:    domain.TemplateForLanguage(seed.language),
			ModifiedBy: creatorID,
		}
		if err := s.fileRepo.Save(ctx, file); err != nil {
			return fmt.Errorf("seed file %s: %w", seed.name, err)
		}
	}
	return nil
}

// generateUniqueRoomCode 生成唯一的房间码
func (s *RoomService) generateUniqueRoomCode(ctx context.Context) (string, error) {
	const letters = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	const codeLength = 6
	const maxAttempts = 10

	b := make([]byte, codeLength)
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if _, err := rand.Read(b); err != nil {
			return "", fmt.Errorf("failed to generate random bytes: %w", err)
		}
		for i := range b {
			b[i] = letters[int(b[i])%len(letters)]
		}
		code := string(b)

		// 检查房间码是否已被占用
		exists, err := s.roomRepo.IsCodeExists(ctx, code)
		if err != nil {
			logrus.WithError(err).WithField("room_code", code).Error("Database error checking room code uniqueness")
			return "", fmt.Errorf("database error checking room code: %w", err)
		}
		if !exists {
			logrus.WithField("room_code", code).Debugf("Generated unique room code after %d attempt(s).", attempt+1)
			return code, nil
		}
		// code 已存在，重试
		logrus.WithField("room_code", code).Warnf("Generated room code already exists, retrying (attempt %d)...", attempt+1)
	}
	return "", fmt.Errorf("failed to generate a unique room code after %d attempts", maxAttempts)
}
