package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/keshav-const/inkwell-code/internal/service"
)

// ExecutionHandler 处理在线代码执行请求
type ExecutionHandler struct {
	executionService *service.ExecutionService
}

func NewExecutionHandler(executionService *service.ExecutionService) *ExecutionHandler {
	return &ExecutionHandler{executionService: executionService}
}

// ExecuteRequest 定义执行代码请求的结构体
type ExecuteRequest struct {
	Language string `json:"language" binding:"required"`
	Source   string `json:"source" binding:"required"`
	Stdin    string `json:"stdin"`
}

// Execute 把一段代码提交给远程执行引擎并同步等待结果。
// 执行引擎本身会限制运行时长，这里不做额外超时控制。
func (h *ExecutionHandler) Execute(c *gin.Context) {
	userID, ok := authenticatedUserID(c)
	if !ok {
		return
	}

	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logrus.WithError(err).Warn("Handler.Execute: Invalid input format")
		ErrorResponse(c, http.StatusBadRequest, "Invalid input: language and source are required")
		return
	}

	result, err := h.executionService.Execute(c.Request.Context(), req.Language, req.Source, req.Stdin)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "language": req.Language}).
			WithError(err).Warn("Handler.Execute: Execution failed")
		HandleServiceError(c, err)
		return
	}

	SuccessResponse(c, http.StatusOK, result)
}
