package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/framesense/framesense/api"
	"github.com/framesense/framesense/vision"
)

// =============================================================================
// 🖼️ 图像分析 Handler
// =============================================================================

// Analyzer 分析管线入口
type Analyzer interface {
	Analyze(ctx context.Context, req *vision.AnalyzeRequest) (*vision.AnalysisResult, error)
}

// AnalyzeHandler 图像分析处理器
type AnalyzeHandler struct {
	analyzer Analyzer
	logger   *zap.Logger

	// streamTimeout 单条流式请求的处理上限
	streamTimeout time.Duration
}

// NewAnalyzeHandler 创建分析处理器
func NewAnalyzeHandler(analyzer Analyzer, logger *zap.Logger) *AnalyzeHandler {
	return &AnalyzeHandler{
		analyzer:      analyzer,
		logger:        logger,
		streamTimeout: 2 * time.Minute,
	}
}

// HandleAnalyze 处理同步分析请求
// @Summary 图像分析
// @Description 对图像 + 自然语言问题执行一次成本感知的路由分析
// @Tags 分析
// @Accept json
// @Produce json
// @Param request body api.AnalyzeRequest true "分析请求"
// @Success 200 {object} Response{data=api.AnalyzeResponse} "分析结果"
// @Failure 400 {object} Response "无效请求"
// @Failure 403 {object} Response "层级不足"
// @Failure 429 {object} Response "超出配额"
// @Security ApiKeyAuth
// @Router /v1/analyze [post]
func (h *AnalyzeHandler) HandleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.AnalyzeRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	if err := req.Validate(); err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)
		return
	}

	visionReq, err := req.ToVision(requestID(r))
	if err != nil {
		WriteErrorMessage(w, http.StatusBadRequest, "invalid_image", err.Error(), h.logger)
		return
	}
	if visionReq.UserID == "" {
		visionReq.UserID = userIDFrom(r)
	}

	start := time.Now()
	result, err := h.analyzer.Analyze(r.Context(), visionReq)
	elapsed := time.Since(start)

	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	h.logger.Info("analyze request served",
		zap.String("request_id", visionReq.RequestID),
		zap.String("service_type", result.ServiceType),
		zap.String("source", string(result.Source)),
		zap.Duration("duration", elapsed),
	)

	WriteSuccess(w, api.ResponseFromResult(result, elapsed))
}

// HandleStream 处理 WebSocket 流式分析请求
// 客户端发送一条 api.AnalyzeRequest，服务端按阶段推送 StreamEvent
// @Summary 流式图像分析
// @Description WebSocket 端点，按阶段推送分析进度与最终结果
// @Tags 分析
// @Router /v1/analyze/stream [get]
func (h *AnalyzeHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithTimeout(r.Context(), h.streamTimeout)
	defer cancel()

	var req api.AnalyzeRequest
	if err := wsjson.Read(ctx, conn, &req); err != nil {
		conn.Close(websocket.StatusUnsupportedData, "invalid request payload")
		return
	}

	if err := req.Validate(); err != nil {
		h.streamError(ctx, conn, "", err.Error())
		conn.Close(websocket.StatusUnsupportedData, "invalid request")
		return
	}

	id := requestID(r)
	visionReq, err := req.ToVision(id)
	if err != nil {
		h.streamError(ctx, conn, id, err.Error())
		conn.Close(websocket.StatusUnsupportedData, "invalid image")
		return
	}
	if visionReq.UserID == "" {
		visionReq.UserID = userIDFrom(r)
	}

	_ = wsjson.Write(ctx, conn, api.StreamEvent{Stage: api.StageAccepted, RequestID: id})
	_ = wsjson.Write(ctx, conn, api.StreamEvent{Stage: api.StageAnalyzing, RequestID: id})

	start := time.Now()
	result, err := h.analyzer.Analyze(ctx, visionReq)
	if err != nil {
		h.streamError(ctx, conn, id, err.Error())
		conn.Close(websocket.StatusNormalClosure, "done")
		return
	}

	_ = wsjson.Write(ctx, conn, api.StreamEvent{
		Stage:     api.StageComplete,
		RequestID: id,
		Result:    api.ResponseFromResult(result, time.Since(start)),
	})

	conn.Close(websocket.StatusNormalClosure, "done")
}

func (h *AnalyzeHandler) streamError(ctx context.Context, conn *websocket.Conn, id, msg string) {
	_ = wsjson.Write(ctx, conn, api.StreamEvent{
		Stage:     api.StageError,
		RequestID: id,
		Message:   msg,
	})
}

// =============================================================================
// 🔧 请求上下文辅助
// =============================================================================

// userIDKey 鉴权中间件注入的用户标识
type contextKey string

// UserIDKey 认证中间件写入请求上下文的键
const UserIDKey contextKey = "framesense.user_id"

// requestID 取中间件注入的请求标识，缺失时现场生成
func requestID(r *http.Request) string {
	if id := r.Header.Get("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// userIDFrom 取鉴权中间件注入的用户标识
func userIDFrom(r *http.Request) string {
	if id, ok := r.Context().Value(UserIDKey).(string); ok {
		return id
	}
	return ""
}
