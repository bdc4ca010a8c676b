package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// 条目超过这个时长没有刷新就视为残留。正常离开的会话会主动注销，
// 这里只兜底处理进程被强杀等没走注销路径的情况。
const presenceMaxAge = 24 * time.Hour

// PresenceSweeper 清除超过 maxAge 未刷新的在线状态条目
type PresenceSweeper interface {
	SweepStalePresence(ctx context.Context, maxAge time.Duration) (int, error)
}

// PresenceSweepHandler 处理周期性的在线状态清理任务
type PresenceSweepHandler struct {
	sweeper PresenceSweeper
}

// NewPresenceSweepHandler 创建 Handler 实例
func NewPresenceSweepHandler(sweeper PresenceSweeper) *PresenceSweepHandler {
	if sweeper == nil {
		panic("PresenceSweeper cannot be nil for PresenceSweepHandler")
	}
	return &PresenceSweepHandler{sweeper: sweeper}
}

// ProcessTask 实现 asynq.Handler 接口
func (h *PresenceSweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	logCtx := logrus.WithField("task_type", t.Type())

	sweepCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := h.sweeper.SweepStalePresence(sweepCtx, presenceMaxAge)
	if err != nil {
		logCtx.WithError(err).Error("Presence sweep failed")
		return fmt.Errorf("presence sweep failed: %w", err)
	}

	if removed > 0 {
		logCtx.Infof("Presence sweep removed %d stale entries", removed)
	} else {
		logCtx.Debug("Presence sweep found no stale entries")
	}
	return nil
}
