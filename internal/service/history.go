package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
)

// HistoryService 维护用户的房间访问历史。
// 写入由后台任务在用户加入房间后异步执行，不在请求路径上。
type HistoryService struct {
	historyRepo repository.HistoryRepository
}

// NewHistoryService 创建 HistoryService 实例。
func NewHistoryService(historyRepo repository.HistoryRepository) *HistoryService {
	if historyRepo == nil {
		panic("HistoryRepository cannot be nil for HistoryService")
	}
	return &HistoryService{historyRepo: historyRepo}
}

// RecordVisit 记录一次房间访问。重复访问只刷新 LastVisited。
func (s *HistoryService) RecordVisit(ctx context.Context, userID uint, roomID uint, roomCode string) error {
	now := time.Now()
	entry := &domain.RoomHistory{
		UserID:      userID,
		RoomID:      roomID,
		RoomCode:    roomCode,
		JoinedAt:    now,
		LastVisited: now,
	}
	if err := s.historyRepo.Upsert(ctx, entry); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID}).
			WithError(err).Error("Failed to record room visit")
		return ErrInternalServer
	}
	return nil
}

// RecentRooms 返回用户最近访问的房间，按最近访问时间降序。
func (s *HistoryService) RecentRooms(ctx context.Context, userID uint, limit int) ([]domain.RoomHistory, error) {
	entries, err := s.historyRepo.ListByUser(ctx, userID, limit)
	if err != nil {
		logrus.WithField("user_id", userID).WithError(err).Error("Failed to list room history")
		return nil, ErrInternalServer
	}
	return entries, nil
}
