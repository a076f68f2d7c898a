package image

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/BaSui01/imageflow/types"
)

// openaiErrorBody 是 OpenAI 错误响应的载荷
type openaiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// classifyHTTPError 将 OpenAI 的错误响应归入统一错误分类.
//   - 429 + insufficient_quota → QUOTA_EXHAUSTED（批次内重试无意义）
//   - 429 其他                 → RATE_LIMITED
//   - 4xx                      → INVALID_REQUEST
//   - 408 / 5xx                → TRANSIENT
//   - 其余                      → UNKNOWN
func classifyHTTPError(provider string, status int, body []byte) *types.Error {
	var parsed openaiErrorBody
	message := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		message = parsed.Error.Message
	}

	code := types.ErrUnknown
	switch {
	case status == http.StatusTooManyRequests:
		if parsed.Error.Type == "insufficient_quota" || parsed.Error.Code == "insufficient_quota" {
			code = types.ErrQuotaExhausted
		} else {
			code = types.ErrRateLimited
		}
	case status == http.StatusRequestTimeout || status >= 500:
		code = types.ErrTransient
	case status >= 400 && status < 500:
		code = types.ErrInvalidRequest
	}

	return types.NewError(code, message).
		WithHTTPStatus(status).
		WithProvider(provider)
}

// classifyTransportError 将传输层失败归为 TRANSIENT.
// 在途调用因批次取消而中断的情况由调度器在重试前识别。
func classifyTransportError(provider string, err error) *types.Error {
	return types.NewError(types.ErrTransient, "request failed").
		WithCause(err).
		WithProvider(provider)
}
