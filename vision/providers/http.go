package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🌐 HTTP 服务实现
// =============================================================================

// minTextConfidence 低于该置信度的文本视为无文本
const minTextConfidence = 0.3

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	// BaseURL 分析端点完整地址
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKey Bearer 凭证，空值不发送
	APIKey string `yaml:"api_key" json:"api_key"`
	// Timeout 单次请求超时
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Capabilities 服务能力标签
	Capabilities []string `yaml:"capabilities" json:"capabilities"`
	// CostPerRequest 单次请求估算成本（美元）
	CostPerRequest float64 `yaml:"cost_per_request" json:"cost_per_request"`
}

// HTTPService 通用 JSON-over-HTTP 上游服务
type HTTPService struct {
	serviceID string
	config    HTTPConfig
	client    *http.Client
	logger    *zap.Logger
}

// NewHTTPService 创建 HTTP 服务
func NewHTTPService(serviceID string, config HTTPConfig, logger *zap.Logger) *HTTPService {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPService{
		serviceID: serviceID,
		config:    config,
		client:    &http.Client{Timeout: config.Timeout},
		logger:    logger.With(zap.String("service", serviceID)),
	}
}

// analyzeRequest 上游请求体
type analyzeRequest struct {
	Question string        `json:"question"`
	Image    string        `json:"image"`
	Params   vision.Params `json:"params"`
}

// analyzeResponse 上游响应体
type analyzeResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Model      string  `json:"model,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Analyze 调用上游分析端点
func (s *HTTPService) Analyze(ctx context.Context, req *vision.AnalyzeRequest) (*vision.AnalysisResult, error) {
	body, err := json.Marshal(analyzeRequest{
		Question: req.Question,
		Image:    base64.StdEncoding.EncodeToString(req.Image.Data),
		Params:   req.Params,
	})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if s.config.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.config.APIKey)
	}

	start := time.Now()
	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, &vision.UpstreamError{ServiceID: s.serviceID, Kind: vision.FailureServiceDown, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		// 把状态码带进消息，交由降级管理器按模式分类
		return nil, fmt.Errorf("upstream %s returned %d: %s", s.serviceID, resp.StatusCode, string(raw))
	}

	var parsed analyzeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("upstream %s error: %s", s.serviceID, parsed.Error)
	}

	s.logger.Debug("Upstream analysis completed",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("confidence", parsed.Confidence))

	return &vision.AnalysisResult{
		ServiceType: s.serviceID,
		ModelID:     parsed.Model,
		Text:        parsed.Text,
		Confidence:  parsed.Confidence,
		HasText:     parsed.Text != "" && parsed.Confidence > minTextConfidence,
		Source:      vision.SourceService,
		Cost:        s.config.CostPerRequest,
	}, nil
}

// Capabilities 服务能力标签
func (s *HTTPService) Capabilities() []string {
	return s.config.Capabilities
}

// CostPerRequest 单次请求估算成本
func (s *HTTPService) CostPerRequest() float64 {
	return s.config.CostPerRequest
}

// Health 通过 HEAD 请求探活
func (s *HTTPService) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.config.BaseURL, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("upstream %s unhealthy: %d", s.serviceID, resp.StatusCode)
	}
	return nil
}
