package api

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 📦 请求结构
// =============================================================================

// AnalyzeParams 键生成与调度参数
type AnalyzeParams struct {
	// Language OCR/识别语言，默认 "en"
	Language string `json:"language,omitempty"`
	// Model 目标模型标识，默认 "default"
	Model string `json:"model,omitempty"`
	// Method 分析方法提示，默认 "auto"
	Method string `json:"method,omitempty"`
	// Provider 服务提供方，默认 "unknown"
	Provider string `json:"provider,omitempty"`
}

// AnalyzeRequest 一次图像分析的线上请求
type AnalyzeRequest struct {
	// Question 自然语言问题
	Question string `json:"question"`
	// Image base64 编码的图像字节，支持 data: URI 前缀
	Image string `json:"image"`
	// ImageFormat 可选格式提示（png/jpeg 等）
	ImageFormat string `json:"image_format,omitempty"`
	// UserID 调用方用户标识，缺省按匿名免费层处理
	UserID string `json:"user_id,omitempty"`
	// PreferredModel 用户显式指定的模型（可选）
	PreferredModel string `json:"preferred_model,omitempty"`
	// Params 可选调度参数
	Params AnalyzeParams `json:"params,omitempty"`
}

// Validate 校验请求的必填字段
func (r *AnalyzeRequest) Validate() error {
	if strings.TrimSpace(r.Question) == "" {
		return errors.New("question is required")
	}
	if r.Image == "" {
		return errors.New("image is required")
	}
	return nil
}

// ToVision 转换为内部分析请求，解码图像载荷
func (r *AnalyzeRequest) ToVision(requestID string) (*vision.AnalyzeRequest, error) {
	data, format, err := DecodeImage(r.Image)
	if err != nil {
		return nil, err
	}
	if r.ImageFormat != "" {
		format = r.ImageFormat
	}

	return &vision.AnalyzeRequest{
		RequestID:      requestID,
		UserID:         r.UserID,
		Question:       r.Question,
		Image:          vision.Image{Data: data, Format: format},
		PreferredModel: r.PreferredModel,
		Params: vision.Params{
			Language: r.Params.Language,
			Model:    r.Params.Model,
			Method:   r.Params.Method,
			Provider: r.Params.Provider,
		},
	}, nil
}

// DecodeImage 解码 base64 图像载荷。
// 支持裸 base64 与 "data:image/png;base64,..." 形式；
// data: URI 时顺带返回格式提示。
func DecodeImage(encoded string) ([]byte, string, error) {
	format := ""
	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 {
			return nil, "", errors.New("malformed data URI: missing comma")
		}
		header := encoded[len("data:"):comma]
		encoded = encoded[comma+1:]

		if !strings.HasSuffix(header, ";base64") {
			return nil, "", errors.New("malformed data URI: not base64 encoded")
		}
		mime := strings.TrimSuffix(header, ";base64")
		if idx := strings.IndexByte(mime, '/'); idx >= 0 {
			format = mime[idx+1:]
		}
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", errors.New("invalid base64 image payload")
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty image payload")
	}
	return data, format, nil
}

// =============================================================================
// 📦 响应结构
// =============================================================================

// AnalyzeResponse 分析结果的线上响应
type AnalyzeResponse struct {
	ServiceType string  `json:"service_type"`
	ModelID     string  `json:"model_id,omitempty"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	HasText     bool    `json:"has_text"`
	Source      string  `json:"source"`
	Cost        float64 `json:"cost"`

	// 降级响应字段
	Error            bool     `json:"error,omitempty"`
	ErrorKind        string   `json:"error_kind,omitempty"`
	Message          string   `json:"message,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	Retryable        bool     `json:"retryable,omitempty"`

	// Duration 服务端处理耗时
	Duration string `json:"duration,omitempty"`
}

// ResponseFromResult 从内部结果构造线上响应
func ResponseFromResult(result *vision.AnalysisResult, elapsed time.Duration) *AnalyzeResponse {
	return &AnalyzeResponse{
		ServiceType:      result.ServiceType,
		ModelID:          result.ModelID,
		Text:             result.Text,
		Confidence:       result.Confidence,
		HasText:          result.HasText,
		Source:           string(result.Source),
		Cost:             result.Cost,
		Error:            result.Error,
		ErrorKind:        result.ErrorKind,
		Message:          result.Message,
		SuggestedActions: result.SuggestedActions,
		Retryable:        result.Retryable,
		Duration:         elapsed.String(),
	}
}

// =============================================================================
// 🌊 流式事件
// =============================================================================

// 流式分析的阶段标签
const (
	StageAccepted  = "accepted"
	StageAnalyzing = "analyzing"
	StageComplete  = "complete"
	StageError     = "error"
)

// StreamEvent WebSocket 流式分析事件
type StreamEvent struct {
	Stage     string           `json:"stage"`
	RequestID string           `json:"request_id,omitempty"`
	Message   string           `json:"message,omitempty"`
	Result    *AnalyzeResponse `json:"result,omitempty"`
}
