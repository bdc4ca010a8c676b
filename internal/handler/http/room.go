package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/service"
)

// RoomHandler 封装了与房间管理相关的 HTTP 处理逻辑
type RoomHandler struct {
	roomService    *service.RoomService
	historyService *service.HistoryService
}

// NewRoomHandler 创建 RoomHandler 实例
func NewRoomHandler(roomService *service.RoomService, historyService *service.HistoryService) *RoomHandler {
	return &RoomHandler{roomService: roomService, historyService: historyService}
}

// authenticatedUserID 从 Gin 上下文取出 Auth 中间件放入的用户 ID。
// 取不到说明中间件缺失或失败，直接响应错误并返回 false。
func authenticatedUserID(c *gin.Context) (uint, bool) {
	userIDAny, exists := c.Get("user_id")
	if !exists {
		logrus.Warn("Handler: User ID not found in context, middleware missing or failed?")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, false
	}
	userID, ok := userIDAny.(uint)
	if !ok {
		logrus.Error("Handler: User ID in context is not uint")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error processing user ID"})
		return 0, false
	}
	return userID, true
}

// CreateRoomRequest 定义创建房间请求的结构体
type CreateRoomRequest struct {
	Name string `json:"name" binding:"omitempty,max=100"`
}

// CreateRoomResponse 定义创建房间成功的响应结构体
type CreateRoomResponse struct {
	Message  string `json:"message"`
	RoomID   uint   `json:"room_id"`
	RoomCode string `json:"room_code"`
	RoomName string `json:"room_name"`
}

// CreateRoom 处理创建新房间的请求
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.CreateRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input")
		return
	}

	newRoom, err := h.roomService.CreateRoom(c.Request.Context(), userID, req.Name)
	if err != nil {
		logCtx.WithError(err).Error("Handler.CreateRoom: Failed to create room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithFields(logrus.Fields{"room_id": newRoom.ID, "room_code": newRoom.Code}).Info("Handler.CreateRoom: Room created successfully")
	SuccessResponse(c, http.StatusOK, CreateRoomResponse{
		Message:  "Room created successfully",
		RoomID:   newRoom.ID,
		RoomCode: newRoom.Code,
		RoomName: newRoom.Name,
	})
}

// JoinRoomRequest 定义加入房间请求的结构体
type JoinRoomRequest struct {
	RoomCode string `json:"room_code" binding:"required,len=6"`
}

// JoinRoomResponse 定义加入房间成功的响应结构体
type JoinRoomResponse struct {
	Message  string `json:"message"`
	RoomID   uint   `json:"room_id"`
	RoomName string `json:"room_name"`
}

// JoinRoom 处理用户通过房间码加入房间的请求
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	logCtx := logrus.WithField("user_id", userID)

	var req JoinRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: room_code is required")
		return
	}
	logCtx = logCtx.WithField("room_code", req.RoomCode)

	joinedRoom, err := h.roomService.JoinRoom(c.Request.Context(), userID, req.RoomCode)
	if err != nil {
		logCtx.WithError(err).Warn("Handler.JoinRoom: Failed to join room via service")
		HandleServiceError(c, err)
		return
	}

	logCtx.WithField("room_id", joinedRoom.ID).Info("Handler.JoinRoom: User joined room successfully")
	SuccessResponse(c, http.StatusOK, JoinRoomResponse{
		Message:  "Joined room successfully",
		RoomID:   joinedRoom.ID,
		RoomName: joinedRoom.Name,
	})
}

// DeleteRoom 处理删除房间的请求。只有房间创建者可以删除。
func (h *RoomHandler) DeleteRoom(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}
	logCtx := logrus.WithFields(logrus.Fields{"user_id": userID, "room_id": roomID})

	if err := h.roomService.DeleteRoom(c.Request.Context(), userID, roomID); err != nil {
		logCtx.WithError(err).Warn("Handler.DeleteRoom: Failed to delete room")
		HandleServiceError(c, err)
		return
	}

	logCtx.Info("Handler.DeleteRoom: Room deleted successfully")
	SuccessResponse(c, http.StatusOK, gin.H{"message": "Room deleted successfully"})
}

// ListFiles 返回房间的全部文件，供进入房间前的预览或非实时客户端使用。
func (h *RoomHandler) ListFiles(c *gin.Context) {
	if _, ok := authenticatedUserID(c); !ok {
		return
	}
	roomID, ok := roomIDParam(c)
	if !ok {
		return
	}

	// 先确认房间存在，区分 404 和空文件列表
	if _, err := h.roomService.FindRoomByID(c.Request.Context(), roomID); err != nil {
		HandleServiceError(c, err)
		return
	}

	files, err := h.roomService.ListRoomFiles(c.Request.Context(), roomID)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"files": files})
}

// History 返回当前用户最近访问的房间列表。
func (h *RoomHandler) History(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	limit := 0
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, _ = strconv.Atoi(limitStr) // 非法值退回默认
	}

	entries, err := h.historyService.RecentRooms(c.Request.Context(), userID, limit)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	SuccessResponse(c, http.StatusOK, gin.H{"history": entries})
}

// roomIDParam 解析 URL 中的 roomId 参数。
func roomIDParam(c *gin.Context) (uint, bool) {
	roomIDStr := c.Param("roomId")
	roomIDUint64, err := strconv.ParseUint(roomIDStr, 10, 32)
	if err != nil {
		logrus.WithError(err).Warnf("Handler: Invalid room ID format: %s", roomIDStr)
		ErrorResponse(c, http.StatusBadRequest, "Invalid room ID format")
		return 0, false
	}
	return uint(roomIDUint64), true
}
