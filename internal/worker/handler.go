package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/service"
	"github.com/keshav-const/inkwell-code/internal/tasks"
)

// RoomVisitHandler 处理房间访问记录任务。
// 访问记录写在任务里做，避免阻塞 WebSocket 加入流程。
type RoomVisitHandler struct {
	historyService *service.HistoryService
}

// NewRoomVisitHandler 创建 Handler 实例
func NewRoomVisitHandler(historyService *service.HistoryService) *RoomVisitHandler {
	if historyService == nil {
		panic("HistoryService cannot be nil for RoomVisitHandler")
	}
	return &RoomVisitHandler{historyService: historyService}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *RoomVisitHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	taskID := ""
	if rw := t.ResultWriter(); rw != nil {
		taskID = rw.TaskID()
	}
	currentRetry, _ := asynq.GetRetryCount(ctx)
	logCtx := logrus.WithFields(logrus.Fields{
		"task_id":   taskID,
		"task_type": t.Type(),
		"retry":     currentRetry,
	})

	var payload tasks.RoomVisitPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		logCtx.WithError(err).Error("Failed to unmarshal room visit payload")
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	logCtx = logCtx.WithFields(logrus.Fields{"user_id": payload.UserID, "room_id": payload.RoomID})

	if err := h.historyService.RecordVisit(ctx, payload.UserID, payload.RoomID, payload.RoomCode); err != nil {
		logCtx.WithError(err).Error("Failed to record room visit")
		return fmt.Errorf("failed to record visit for user %d room %d: %w", payload.UserID, payload.RoomID, err)
	}

	logCtx.Debug("Room visit task processed successfully")
	return nil
}
