// Package tasks 定义了后台任务的类型和载荷格式，供入队方和 worker 共享。
package tasks

import (
	"encoding/json"
)

// 定义任务类型常量
const (
	TypeRoomVisit     = "room:visit"      // 房间访问历史记录任务
	TypePresenceSweep = "presence:sweep"  // 清理在线状态残留的周期任务
)

// RoomVisitPayload 是房间访问历史记录任务的数据结构。
// RoomCode 冗余携带，worker 写历史时无需再查房间表。
type RoomVisitPayload struct {
	UserID   uint   `json:"user_id"`
	RoomID   uint   `json:"room_id"`
	RoomCode string `json:"room_code"`
}

// NewRoomVisitTask 创建房间访问历史任务的载荷
func NewRoomVisitTask(userID uint, roomID uint, roomCode string) ([]byte, error) {
	payload := RoomVisitPayload{
		UserID:   userID,
		RoomID:   roomID,
		RoomCode: roomCode,
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return payloadBytes, nil
}

// NewPresenceSweepTask 创建在线状态清理任务的载荷。
// 周期任务没有参数，载荷为空对象，保留 JSON 以便日后扩展。
func NewPresenceSweepTask() ([]byte, error) {
	return json.Marshal(struct{}{})
}
