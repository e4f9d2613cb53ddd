package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framesense/framesense/api"
	"github.com/framesense/framesense/vision"
)

// stubAnalyzer 记录最近一次请求并返回预置结果
type stubAnalyzer struct {
	lastReq *vision.AnalyzeRequest
	result  *vision.AnalysisResult
	err     error
}

func (s *stubAnalyzer) Analyze(ctx context.Context, req *vision.AnalyzeRequest) (*vision.AnalysisResult, error) {
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return s.result, nil
}

func okResult() *vision.AnalysisResult {
	return &vision.AnalysisResult{
		ServiceType: "OCR_RESULTS",
		ModelID:     "local-ocr",
		Text:        "hello world",
		Confidence:  0.94,
		HasText:     true,
		Source:      vision.SourceService,
		Cost:        0.001,
	}
}

func analyzeBody(t *testing.T, question string, image []byte) string {
	t.Helper()
	req := api.AnalyzeRequest{
		Question: question,
		Image:    base64.StdEncoding.EncodeToString(image),
		UserID:   "user-1",
	}
	data, err := json.Marshal(req)
	require.NoError(t, err)
	return string(data)
}

func postAnalyze(h *AnalyzeHandler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	h.HandleAnalyze(rec, req)
	return rec
}

// --- HandleAnalyze ---

func TestHandleAnalyze_Success(t *testing.T) {
	stub := &stubAnalyzer{result: okResult()}
	h := NewAnalyzeHandler(stub, zap.NewNop())

	rec := postAnalyze(h, analyzeBody(t, "what does this text say", []byte("png-bytes")))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Success bool                `json:"success"`
		Data    api.AnalyzeResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "OCR_RESULTS", resp.Data.ServiceType)
	assert.Equal(t, "hello world", resp.Data.Text)
	assert.Equal(t, "service", resp.Data.Source)
	assert.NotEmpty(t, resp.Data.Duration)

	// 内部请求携带解码后的图像与用户标识
	require.NotNil(t, stub.lastReq)
	assert.Equal(t, []byte("png-bytes"), stub.lastReq.Image.Data)
	assert.Equal(t, "user-1", stub.lastReq.UserID)
	assert.NotEmpty(t, stub.lastReq.RequestID)
}

func TestHandleAnalyze_DataURIImage(t *testing.T) {
	stub := &stubAnalyzer{result: okResult()}
	h := NewAnalyzeHandler(stub, zap.NewNop())

	body, err := json.Marshal(api.AnalyzeRequest{
		Question: "describe this picture",
		Image:    "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("img")),
	})
	require.NoError(t, err)

	rec := postAnalyze(h, string(body))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, []byte("img"), stub.lastReq.Image.Data)
	assert.Equal(t, "png", stub.lastReq.Image.Format)
}

func TestHandleAnalyze_MissingQuestion(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{result: okResult()}, zap.NewNop())

	rec := postAnalyze(h, analyzeBody(t, "   ", []byte("x")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyze_BadBase64(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{result: okResult()}, zap.NewNop())

	body, err := json.Marshal(api.AnalyzeRequest{
		Question: "read this",
		Image:    "!!!not-base64!!!",
	})
	require.NoError(t, err)

	rec := postAnalyze(h, string(body))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleAnalyze_WrongContentType(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{result: okResult()}, zap.NewNop())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader("{}"))
	req.Header.Set("Content-Type", "text/plain")
	h.HandleAnalyze(rec, req)

	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestHandleAnalyze_AccessDenied(t *testing.T) {
	stub := &stubAnalyzer{err: &vision.AccessDeniedError{
		Reason:        vision.DenyDailyLimit,
		SuggestedTier: vision.TierPro,
	}}
	h := NewAnalyzeHandler(stub, zap.NewNop())

	rec := postAnalyze(h, analyzeBody(t, "read the text in this image", []byte("x")))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "pro", resp.Error.SuggestedTier)
}

func TestHandleAnalyze_UserIDFromContext(t *testing.T) {
	stub := &stubAnalyzer{result: okResult()}
	h := NewAnalyzeHandler(stub, zap.NewNop())

	body, err := json.Marshal(api.AnalyzeRequest{
		Question: "read this",
		Image:    base64.StdEncoding.EncodeToString([]byte("x")),
	})
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	req = req.WithContext(context.WithValue(req.Context(), UserIDKey, "jwt-user"))
	h.HandleAnalyze(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jwt-user", stub.lastReq.UserID)
}

// --- HandleStream ---

func dialStream(t *testing.T, h *AnalyzeHandler) (*websocket.Conn, context.Context) {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	return conn, ctx
}

func TestHandleStream_Success(t *testing.T) {
	stub := &stubAnalyzer{result: okResult()}
	h := NewAnalyzeHandler(stub, zap.NewNop())

	conn, ctx := dialStream(t, h)

	req := api.AnalyzeRequest{
		Question: "what does this text say",
		Image:    base64.StdEncoding.EncodeToString([]byte("png-bytes")),
		UserID:   "user-1",
	}
	require.NoError(t, wsjson.Write(ctx, conn, req))

	var accepted api.StreamEvent
	require.NoError(t, wsjson.Read(ctx, conn, &accepted))
	assert.Equal(t, api.StageAccepted, accepted.Stage)
	assert.NotEmpty(t, accepted.RequestID)

	var analyzing api.StreamEvent
	require.NoError(t, wsjson.Read(ctx, conn, &analyzing))
	assert.Equal(t, api.StageAnalyzing, analyzing.Stage)

	var complete api.StreamEvent
	require.NoError(t, wsjson.Read(ctx, conn, &complete))
	assert.Equal(t, api.StageComplete, complete.Stage)
	require.NotNil(t, complete.Result)
	assert.Equal(t, "hello world", complete.Result.Text)
}

func TestHandleStream_AnalyzerError(t *testing.T) {
	stub := &stubAnalyzer{err: vision.ErrNoEligibleModel}
	h := NewAnalyzeHandler(stub, zap.NewNop())

	conn, ctx := dialStream(t, h)

	req := api.AnalyzeRequest{
		Question: "explain quantum entanglement",
		Image:    base64.StdEncoding.EncodeToString([]byte("x")),
	}
	require.NoError(t, wsjson.Write(ctx, conn, req))

	// accepted, analyzing, error
	var ev api.StreamEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, api.StageError, ev.Stage)
	assert.NotEmpty(t, ev.Message)
}

func TestHandleStream_InvalidRequest(t *testing.T) {
	h := NewAnalyzeHandler(&stubAnalyzer{result: okResult()}, zap.NewNop())

	conn, ctx := dialStream(t, h)

	// 缺失图像
	require.NoError(t, wsjson.Write(ctx, conn, api.AnalyzeRequest{Question: "hi"}))

	var ev api.StreamEvent
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, api.StageError, ev.Stage)
}

// --- DecodeImage ---

func TestDecodeImage(t *testing.T) {
	raw := []byte{0x89, 'P', 'N', 'G'}
	encoded := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		name       string
		input      string
		wantFormat string
		wantErr    bool
	}{
		{"bare base64", encoded, "", false},
		{"data uri png", "data:image/png;base64," + encoded, "png", false},
		{"data uri jpeg", "data:image/jpeg;base64," + encoded, "jpeg", false},
		{"data uri not base64", "data:image/png," + encoded, "", true},
		{"data uri missing comma", "data:image/png;base64", "", true},
		{"invalid base64", "%%%", "", true},
		{"empty payload", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, format, err := api.DecodeImage(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, raw, data)
			assert.Equal(t, tt.wantFormat, format)
		})
	}
}
