package service_test // 测试包

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/keshav-const/inkwell-code/internal/domain"
	"github.com/keshav-const/inkwell-code/internal/repository"
	"github.com/keshav-const/inkwell-code/internal/repository/mocks"
	"github.com/keshav-const/inkwell-code/internal/service"
)

// --- 测试 Register 方法 ---

func TestAuthService_Register_Success(t *testing.T) {
	// Arrange: 准备 Mock 对象, Service 实例, 和测试数据
	mockUserRepo := new(mocks.UserRepository)
	jwtSecret := "very-secret-key"
	jwtExpiry := 1
	authService, err := service.NewAuthService(mockUserRepo, jwtSecret, jwtExpiry)
	require.NoError(t, err, "创建 AuthService 不应失败")

	ctx := context.Background()
	username := "newbie"
	password := "StrongPass123"
	email := "newbie@example.com"
	displayName := "Newbie Dev"

	// 设置 Mock 预期: Save 被调用时模拟保存成功，并填充 ID/时间戳
	mockUserRepo.On("Save", ctx, mock.MatchedBy(func(user *domain.User) bool {
		assert.Equal(t, username, user.Username)
		assert.Equal(t, email, user.Email)
		assert.Equal(t, displayName, user.DisplayName)
		// 验证密码是否已哈希
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)), "密码应被正确哈希")
		return true
	})).
		Run(func(args mock.Arguments) { // 模拟数据库填充字段
			userArg := args.Get(1).(*domain.User)
			userArg.ID = 5
			userArg.CreatedAt = time.Now().Add(-time.Second)
			userArg.UpdatedAt = time.Now().Add(-time.Second)
		}).
		Return(nil).
		Once()

	// Act: 执行被测试的 Register 方法
	registeredUser, err := authService.Register(ctx, username, password, email, displayName)

	// Assert: 验证 Register 的结果
	assert.NoError(t, err, "成功注册时不应有错误")
	require.NotNil(t, registeredUser, "成功注册时应返回用户对象")
	assert.Equal(t, uint(5), registeredUser.ID, "返回的用户 ID 应为 5")
	assert.Equal(t, username, registeredUser.Username)
	assert.Empty(t, registeredUser.Password, "返回的用户密码应为空")

	// Verify: 确保 Mock 的所有预期都被满足
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_DuplicateUsername(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, _ := service.NewAuthService(mockUserRepo, "secret", 1)
	ctx := context.Background()

	// 设置 Mock 预期: Save 调用时模拟数据库返回唯一约束错误
	mockUserRepo.On("Save", ctx, mock.AnythingOfType("*domain.User")).
		Return(repository.ErrDuplicateEntry).Once()

	// Act
	_, err := authService.Register(ctx, "existingUser", "password", "email@test.com", "")

	// Assert
	require.Error(t, err, "用户名已存在时应返回错误")
	assert.True(t, errors.Is(err, service.ErrRegistrationFailed), "错误类型应为 ErrRegistrationFailed")

	// Verify
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Register_EmptyInput(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, _ := service.NewAuthService(mockUserRepo, "secret", 1)

	// Act
	_, err := authService.Register(context.Background(), "", "", "", "")

	// Assert
	require.Error(t, err, "空用户名/密码应返回错误")
	mockUserRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
}

// --- 测试 Login 方法 ---

func TestAuthService_Login_Success(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	jwtSecret := "login-secret"
	authService, err := service.NewAuthService(mockUserRepo, jwtSecret, 1)
	require.NoError(t, err)

	ctx := context.Background()
	username := "loginUser"
	password := "CorrectPass"
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	require.NoError(t, err)

	storedUser := &domain.User{ID: 7, Username: username, Password: string(hashed)}
	mockUserRepo.On("FindByUsername", ctx, username).Return(storedUser, nil).Once()

	// Act
	tokenString, err := authService.Login(ctx, username, password)

	// Assert
	require.NoError(t, err, "正确凭证登录不应失败")
	require.NotEmpty(t, tokenString, "登录成功应返回 token")

	// 解析返回的 token，验证 user_id 声明
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(jwtSecret), nil
	})
	require.NoError(t, err, "返回的 token 应能用同一密钥解析")
	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	assert.Equal(t, float64(7), claims["user_id"], "token 中的 user_id 应为 7")

	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_WrongPassword(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, _ := service.NewAuthService(mockUserRepo, "secret", 1)
	ctx := context.Background()
	hashed, _ := bcrypt.GenerateFromPassword([]byte("RealPass"), bcrypt.DefaultCost)
	mockUserRepo.On("FindByUsername", ctx, "someone").
		Return(&domain.User{ID: 1, Username: "someone", Password: string(hashed)}, nil).Once()

	// Act
	_, err := authService.Login(ctx, "someone", "WrongPass")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAuthenticationFailed), "密码错误应返回 ErrAuthenticationFailed")
	mockUserRepo.AssertExpectations(t)
}

func TestAuthService_Login_UserNotFound(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, _ := service.NewAuthService(mockUserRepo, "secret", 1)
	ctx := context.Background()
	mockUserRepo.On("FindByUsername", ctx, "ghost").
		Return(nil, repository.ErrUserNotFound).Once()

	// Act
	_, err := authService.Login(ctx, "ghost", "whatever")

	// Assert: 用户不存在和密码错误对外表现一致
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrAuthenticationFailed))
	mockUserRepo.AssertExpectations(t)
}

// --- 测试 FindUserByID 方法 ---

func TestAuthService_FindUserByID_NotFound(t *testing.T) {
	// Arrange
	mockUserRepo := new(mocks.UserRepository)
	authService, _ := service.NewAuthService(mockUserRepo, "secret", 1)
	ctx := context.Background()
	mockUserRepo.On("FindByID", ctx, uint(42)).Return(nil, repository.ErrUserNotFound).Once()

	// Act
	_, err := authService.FindUserByID(ctx, 42)

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUserNotFound))
	mockUserRepo.AssertExpectations(t)
}
