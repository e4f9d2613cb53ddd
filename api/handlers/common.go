package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorInfo  `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	SuggestedTier string `json:"suggested_tier,omitempty"`
	Retryable     bool   `json:"retryable,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		// 编码失败时响应头已写出，只能放弃
		return
	}
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, data interface{}) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError 写入错误响应，按管线错误类型映射 HTTP 状态码
func WriteError(w http.ResponseWriter, err error, logger *zap.Logger) {
	status, info := classifyError(err)

	if logger != nil {
		logger.Error("API error",
			zap.String("code", info.Code),
			zap.String("message", info.Message),
			zap.Int("status", status),
			zap.Bool("retryable", info.Retryable),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     info,
		Timestamp: time.Now(),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, status int, code, message string, logger *zap.Logger) {
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", code),
			zap.String("message", message),
			zap.Int("status", status),
		)
	}

	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: code, Message: message},
		Timestamp: time.Now(),
	})
}

// =============================================================================
// 🔄 管线错误到 HTTP 状态码映射
// =============================================================================

func classifyError(err error) (int, *ErrorInfo) {
	// 访问拒绝：按拒绝原因细分状态码
	var denied *vision.AccessDeniedError
	if errors.As(err, &denied) {
		info := &ErrorInfo{
			Code:          "access_denied:" + string(denied.Reason),
			Message:       denied.Error(),
			SuggestedTier: string(denied.SuggestedTier),
		}
		switch denied.Reason {
		case vision.DenyTierInsufficient:
			return http.StatusForbidden, info
		case vision.DenySizeLimit:
			return http.StatusRequestEntityTooLarge, info
		case vision.DenyDailyLimit, vision.DenyMonthlyLimit, vision.DenyConcurrencyLimit:
			info.Retryable = true
			return http.StatusTooManyRequests, info
		default:
			return http.StatusForbidden, info
		}
	}

	if errors.Is(err, vision.ErrNoEligibleModel) {
		return http.StatusForbidden, &ErrorInfo{
			Code:    "no_eligible_model",
			Message: "no model available for this question at your tier",
		}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, &ErrorInfo{
			Code:      "timeout",
			Message:   "request timed out",
			Retryable: true,
		}
	}

	return http.StatusInternalServerError, &ErrorInfo{
		Code:    "internal_error",
		Message: "internal server error",
	}
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst interface{}, logger *zap.Logger) error {
	if r.Body == nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "request body is empty", logger)
		return errors.New("request body is empty")
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields() // 严格模式：拒绝未知字段

	if err := decoder.Decode(dst); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", "invalid JSON body", logger)
		return err
	}

	return nil
}

// ValidateContentType 验证 Content-Type
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	contentType := r.Header.Get("Content-Type")
	if contentType != "application/json" && contentType != "application/json; charset=utf-8" {
		WriteErrorMessage(w, http.StatusUnsupportedMediaType, "invalid_request",
			"Content-Type must be application/json", logger)
		return false
	}
	return true
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}
