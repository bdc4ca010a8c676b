package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// 轮询执行结果的参数：judge0 异步执行，提交后拿 token 轮询。
const (
	executionPollInterval = 1 * time.Second
	executionPollAttempts = 10
)

// executionLanguageIDs 将编辑器的语言标签映射到 judge0 的 language_id。
// html / css 没有运行时，用 Node.js 包装后原样打印。
var executionLanguageIDs = map[string]int{
	"javascript": 63, // Node.js
	"typescript": 74,
	"python":     71, // Python 3
	"java":       62,
	"cpp":        76, // C++ (GCC 9.2.0)
	"c":          75, // C (GCC 9.2.0)
	"csharp":     51, // C# (.NET Core)
	"go":         60,
	"rust":       73,
	"php":        68,
	"ruby":       72,
	"html":       63,
	"css":        63,
}

// ExecutionResult 是一次代码执行的结果。
type ExecutionResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
	Status        string `json:"status"`
	Time          string `json:"time"`
	Memory        int    `json:"memory"`
	Language      string `json:"language"`
	Success       bool   `json:"success"`
	Output        string `json:"output"`
}

// ExecutionService 通过 judge0 (RapidAPI) 远程执行房间里的代码。
// 执行是纯展示侧功能，不参与协作状态，失败不影响编辑会话。
type ExecutionService struct {
	baseURL    string
	apiKey     string
	apiHost    string
	httpClient *http.Client
}

// NewExecutionService 创建 ExecutionService 实例。
// apiKey 为空时服务可以创建，但 Execute 会直接返回错误，
// 允许未配置执行功能的部署正常启动。
func NewExecutionService(baseURL, apiKey string) *ExecutionService {
	if baseURL == "" {
		baseURL = "https://judge0-ce.p.rapidapi.com"
	}
	apiHost := strings.TrimPrefix(strings.TrimPrefix(baseURL, "https://"), "http://")
	return &ExecutionService{
		baseURL: baseURL,
		apiKey:  apiKey,
		apiHost: apiHost,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// judge0 提交与结果的线格式
type judge0Submission struct {
	LanguageID             int    `json:"language_id"`
	SourceCode             string `json:"source_code"`
	Stdin                  string `json:"stdin"`
	RedirectStderrToStdout bool   `json:"redirect_stderr_to_stdout"`
}

type judge0SubmitResponse struct {
	Token string `json:"token"`
}

type judge0Result struct {
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
	Time   *string `json:"time"`
	Memory *int    `json:"memory"`
}

// Execute 提交源码执行并等待结果。
// 不支持的语言返回 ErrUnsupportedLanguage；judge0 侧的失败
// （网络、认证、轮询超时）统一映射为 ErrExecutionFailed。
func (s *ExecutionService) Execute(ctx context.Context, language, source, stdin string) (*ExecutionResult, error) {
	logCtx := logrus.WithField("language", language)

	if s.apiKey == "" {
		logCtx.Warn("Execution requested but no judge0 API key configured")
		return nil, ErrExecutionFailed
	}
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", ErrExecutionFailed)
	}

	lang := strings.ToLower(language)
	languageID, ok := executionLanguageIDs[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, language)
	}

	// html / css 没有可执行语义，包装成 Node.js 打印
	processedSource := source
	switch lang {
	case "html":
		processedSource = wrapAsPrint("HTML Preview:", source)
	case "css":
		processedSource = wrapAsPrint("CSS Styles:", source)
	}

	token, err := s.submit(ctx, languageID, processedSource, stdin)
	if err != nil {
		logCtx.WithError(err).Warn("judge0 submission failed")
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	result, err := s.await(ctx, token)
	if err != nil {
		logCtx.WithError(err).Warn("judge0 result retrieval failed")
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	out := &ExecutionResult{
		Stdout:        decodeBase64(result.Stdout),
		Stderr:        decodeBase64(result.Stderr),
		CompileOutput: decodeBase64(result.CompileOutput),
		Status:        result.Status.Description,
		Language:      language,
		Success:       result.Status.ID == 3, // 3 = Accepted
	}
	if result.Time != nil {
		out.Time = *result.Time
	}
	if result.Memory != nil {
		out.Memory = *result.Memory
	}
	out.Output = firstNonEmpty(out.Stdout, out.Stderr, out.CompileOutput, "No output")

	logCtx.WithFields(logrus.Fields{"status": out.Status, "success": out.Success}).Info("Code execution completed")
	return out, nil
}

// submit 提交执行请求，返回轮询用的 token。
// 源码和输入用 base64 编码，规避 UTF-8 转义问题。
func (s *ExecutionService) submit(ctx context.Context, languageID int, source, stdin string) (string, error) {
	payload := judge0Submission{
		LanguageID: languageID,
		SourceCode: base64.StdEncoding.EncodeToString([]byte(source)),
	}
	if stdin != "" {
		payload.Stdin = base64.StdEncoding.EncodeToString([]byte(stdin))
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal submission: %w", err)
	}

	url := s.baseURL + "/submissions?base64_encoded=true&wait=false"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	s.setAPIHeaders(req)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit to judge0: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("judge0 submission returned %d: %s", resp.StatusCode, string(data))
	}

	var submitResp judge0SubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&submitResp); err != nil {
		return "", fmt.Errorf("decode submission response: %w", err)
	}
	if submitResp.Token == "" {
		return "", fmt.Errorf("no submission token received from judge0")
	}
	return submitResp.Token, nil
}

// await 轮询执行结果直到完成或超出尝试次数。
// status.id <= 2 表示仍在排队或执行中 (1 = In Queue, 2 = Processing)。
func (s *ExecutionService) await(ctx context.Context, token string) (*judge0Result, error) {
	url := fmt.Sprintf("%s/submissions/%s?base64_encoded=true", s.baseURL, token)

	for attempt := 0; attempt < executionPollAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(executionPollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("build result request: %w", err)
		}
		s.setAPIHeaders(req)

		resp, err := s.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch result from judge0: %w", err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			resp.Body.Close()
			continue
		}
		var result judge0Result
		decodeErr := json.NewDecoder(resp.Body).Decode(&result)
		resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("decode result: %w", decodeErr)
		}
		if result.Status.ID > 2 {
			return &result, nil
		}
	}
	return nil, fmt.Errorf("execution did not complete within %d polls", executionPollAttempts)
}

func (s *ExecutionService) setAPIHeaders(req *http.Request) {
	req.Header.Set("X-RapidAPI-Key", s.apiKey)
	req.Header.Set("X-RapidAPI-Host", s.apiHost)
}

// --- 辅助函数 ---

func wrapAsPrint(label, content string) string {
	escaped := strings.ReplaceAll(content, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "`", "\\`")
	escaped = strings.ReplaceAll(escaped, "$", "\\$")
	return fmt.Sprintf("console.log(%q);\nconsole.log(`%s`);\n", label, escaped)
}

func decodeBase64(value *string) string {
	if value == nil || *value == "" {
		return ""
	}
	data, err := base64.StdEncoding.DecodeString(*value)
	if err != nil {
		// judge0 偶尔返回未编码的内容，原样返回
		return *value
	}
	return string(data)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
