package service_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshav-const/inkwell-code/internal/service"
)

func TestExecutionService_Execute_NoAPIKey(t *testing.T) {
	// Arrange: 未配置密钥的部署可以启动，但执行直接失败
	executionService := service.NewExecutionService("", "")

	// Act
	_, err := executionService.Execute(context.Background(), "javascript", "console.log(1)", "")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrExecutionFailed))
}

func TestExecutionService_Execute_UnsupportedLanguage(t *testing.T) {
	// Arrange
	executionService := service.NewExecutionService("http://localhost:1", "some-key")

	// Act
	_, err := executionService.Execute(context.Background(), "brainfuck", "+++", "")

	// Assert
	require.Error(t, err)
	assert.True(t, errors.Is(err, service.ErrUnsupportedLanguage))
}

func TestExecutionService_Execute_SubmitPollDecode(t *testing.T) {
	// Arrange: 模拟 judge0 的提交 + 轮询两步流程
	stdout := base64.StdEncoding.EncodeToString([]byte("Hello, Inkwell!\n"))
	var submittedSource string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/submissions":
			// 认证头必须带上
			assert.Equal(t, "test-key", r.Header.Get("X-RapidAPI-Key"))
			var payload map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			submittedSource, _ = payload["source_code"].(string)
			assert.EqualValues(t, 63, payload["language_id"])
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-1"})
		case r.Method == http.MethodGet && r.URL.Path == "/submissions/tok-1":
			_ = json.NewEncoder(w).Encode(map[string]interface{}{
				"stdout": stdout,
				"status": map[string]interface{}{"id": 3, "description": "Accepted"},
				"time":   "0.02",
				"memory": 1024,
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	executionService := service.NewExecutionService(server.URL, "test-key")

	// Act
	result, err := executionService.Execute(context.Background(), "javascript", `console.log("Hello, Inkwell!")`, "")

	// Assert
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "Accepted", result.Status)
	assert.Equal(t, "Hello, Inkwell!\n", result.Stdout)
	assert.Equal(t, "Hello, Inkwell!\n", result.Output)
	assert.Equal(t, "0.02", result.Time)
	assert.Equal(t, 1024, result.Memory)

	// 源码以 base64 提交
	decoded, decodeErr := base64.StdEncoding.DecodeString(submittedSource)
	require.NoError(t, decodeErr)
	assert.Contains(t, string(decoded), "Hello, Inkwell!")
}

func TestExecutionService_Execute_RuntimeErrorOutput(t *testing.T) {
	// Arrange: 运行时错误走 stderr，Success 为 false
	stderr := base64.StdEncoding.EncodeToString([]byte("ReferenceError: x is not defined"))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			_ = json.NewEncoder(w).Encode(map[string]string{"token": "tok-2"})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"stderr": stderr,
			"status": map[string]interface{}{"id": 11, "description": "Runtime Error (NZEC)"},
		})
	}))
	defer server.Close()

	executionService := service.NewExecutionService(server.URL, "test-key")

	// Act
	result, err := executionService.Execute(context.Background(), "javascript", "x", "")

	// Assert
	require.NoError(t, err, "运行时错误是正常的执行结果，不是服务错误")
	assert.False(t, result.Success)
	assert.Equal(t, "ReferenceError: x is not defined", result.Output, "stdout 为空时 Output 回退到 stderr")
}
