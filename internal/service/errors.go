package service

import "errors"

// 服务层对外暴露的业务错误。HTTP Handler 依据这些错误决定状态码，
// 仓库层 / 基础设施的原始错误不会越过服务层边界。
var (
	ErrUserNotFound         = errors.New("user not found")
	ErrRoomNotFound         = errors.New("room not found")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrRegistrationFailed   = errors.New("registration failed: username or email already exists")
	ErrInvalidRoomCode      = errors.New("invalid or expired room code")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrInternalServer       = errors.New("internal server error")
	ErrUnsupportedLanguage  = errors.New("unsupported execution language")
	ErrExecutionFailed      = errors.New("code execution failed")
)
