package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/framesense/framesense/api/handlers"
	"github.com/framesense/framesense/config"
)

func TestSecurityHeaders(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
	assert.Equal(t, "1; mode=block", w.Header().Get("X-XSS-Protection"))
	assert.Equal(t, "default-src 'self'", w.Header().Get("Content-Security-Policy"))
}

func TestSecurityHeaders_ChainedWithOtherMiddleware(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	handler := Chain(inner, SecurityHeaders(), RequestID())

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/test", nil)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	// SecurityHeaders should be present
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	// RequestID should also be present
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRequestID_PreservesClientID(t *testing.T) {
	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})

	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-abc")
	handler.ServeHTTP(w, r)

	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", w.Header().Get("X-Request-ID"))
}

func TestRequestID_GeneratesAndPropagatesToRequestHeader(t *testing.T) {
	var headerID string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headerID = r.Header.Get("X-Request-ID")
	})

	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.NotEmpty(t, headerID)
	assert.Equal(t, headerID, w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})

	handler := Recovery(zap.NewNop())(inner)

	w := httptest.NewRecorder()
	assert.NotPanics(t, func() {
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimiter_BlocksAfterBurst(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(inner)

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		handler.ServeHTTP(w, r)
		statuses = append(statuses, w.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, statuses)
}

func TestCORS_DeniesWhenUnconfigured(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS(nil)(inner)

	// 预检请求直接拒绝
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodOptions, "/v1/analyze", nil)
	r.Header.Set("Origin", "https://evil.example")
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 普通跨域请求不设置 Allow-Origin
	w = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/v1/analyze", nil)
	r.Header.Set("Origin", "https://evil.example")
	handler.ServeHTTP(w, r)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := CORS([]string{"https://app.example"})(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	r.Header.Set("Origin", "https://app.example")
	handler.ServeHTTP(w, r)

	assert.Equal(t, "https://app.example", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestBodyLimit(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 64)
		_, err := r.Body.Read(buf)
		if err != nil && !strings.Contains(err.Error(), "EOF") {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	handler := BodyLimit(8)(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 32)))
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/v1/analyze", "/v1/analyze"},
		{"/v1/analyze/stream", "/v1/analyze/stream"},
		{"/healthz", "/healthz"},
		{"/v1/users/12345", "/v1/users/:id"},
		{"/v1/users/550e8400-e29b-41d4-a716-446655440000", "/v1/users/:id"},
		{"/v1/users/profile", "/v1/users/profile"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.path), tt.path)
	}
}

// =============================================================================
// JWTAuth
// =============================================================================

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTAuth_AnonymousPassesThrough(t *testing.T) {
	var userID any
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = r.Context().Value(handlers.UserIDKey)
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(config.AuthConfig{JWTSecret: "secret"}, nil, zap.NewNop())(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/analyze", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, userID)
}

func TestJWTAuth_InjectsUserID(t *testing.T) {
	var userID any
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = r.Context().Value(handlers.UserIDKey)
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(config.AuthConfig{JWTSecret: "secret"}, nil, zap.NewNop())(inner)

	tok := signToken(t, "secret", jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "user-42", userID)
}

func TestJWTAuth_FallsBackToSubClaim(t *testing.T) {
	var userID any
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID = r.Context().Value(handlers.UserIDKey)
	})

	handler := JWTAuth(config.AuthConfig{JWTSecret: "secret"}, nil, zap.NewNop())(inner)

	tok := signToken(t, "secret", jwt.MapClaims{
		"sub": "sub-7",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(w, r)

	assert.Equal(t, "sub-7", userID)
}

func TestJWTAuth_RejectsBadToken(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(config.AuthConfig{JWTSecret: "secret"}, nil, zap.NewNop())(inner)

	tok := signToken(t, "wrong-secret", jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_RejectsExpiredToken(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(config.AuthConfig{JWTSecret: "secret"}, nil, zap.NewNop())(inner)

	tok := signToken(t, "secret", jwt.MapClaims{
		"user_id": "user-42",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodPost, "/v1/analyze", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_SkipPaths(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := JWTAuth(config.AuthConfig{JWTSecret: "secret"}, []string{"/healthz"}, zap.NewNop())(inner)

	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	r.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
}
