package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/talentboard/supportbot/internal/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "abc", seen)
}

func TestRequestID_ReplacesUnsafeHeader(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	for _, bad := range []string{"a b", "id\nforged log line", strings.Repeat("x", maxRequestIDLen+1)} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(RequestIDHeader, bad)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		assert.NotEqual(t, bad, seen)
		assert.Len(t, seen, 36)
		assert.Equal(t, seen, w.Header().Get(RequestIDHeader))
	}

	assert.True(t, validRequestID("web-7f3a:chat_1.2"))
}

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	var handlerLogged bool
	handler := RequestID(AccessLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.From(r.Context(), nil).Info("inside handler")
		handlerLogged = true
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	})))

	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.Header.Set("X-Request-ID", "req-1")
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.True(t, handlerLogged)
	entries := logs.All()
	if assert.Len(t, entries, 2) {
		assert.Equal(t, "inside handler", entries[0].Message)
		assert.Equal(t, "req-1", entries[0].ContextMap()["request_id"])

		fields := entries[1].ContextMap()
		assert.Equal(t, "http request", entries[1].Message)
		assert.Equal(t, int64(http.StatusTeapot), fields["status"])
		assert.Equal(t, int64(2), fields["bytes"])
		assert.Equal(t, "10.0.0.1", fields["remote_addr"])
		assert.Equal(t, "/chat", fields["path"])
	}
}

func TestAccessLog_HealthAtDebug(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	handler := AccessLog(zap.New(core))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Zero(t, logs.Len())
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(4)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	assert.JSONEq(t, `{"error":"request body exceeds 4 bytes","code":"VALIDATION_ERROR"}`, w.Body.String())

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("ok")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/search", strings.NewReader("ignored body")))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSentryMiddleware_WithoutClient(t *testing.T) {
	handler := SentryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chat", nil))
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestHTTPStatusToSpanStatus(t *testing.T) {
	assert.Equal(t, sentry.SpanStatusOK, httpStatusToSpanStatus(http.StatusAccepted))
	assert.Equal(t, sentry.SpanStatusUnauthenticated, httpStatusToSpanStatus(http.StatusUnauthorized))
	assert.Equal(t, sentry.SpanStatusUnavailable, httpStatusToSpanStatus(http.StatusServiceUnavailable))
	assert.Equal(t, sentry.SpanStatusUnavailable, httpStatusToSpanStatus(http.StatusBadGateway))
	assert.Equal(t, sentry.SpanStatusResourceExhausted, httpStatusToSpanStatus(http.StatusRequestEntityTooLarge))
	assert.Equal(t, sentry.SpanStatusInternalError, httpStatusToSpanStatus(http.StatusInternalServerError))
}

func TestRouteTags(t *testing.T) {
	tests := []struct {
		path string
		want map[string]string
	}{
		{"/sources/faq/sync", map[string]string{"surface": "sources", "source_type": "faq"}},
		{"/sources/custom-qa/q1/sync", map[string]string{"surface": "sources", "source_type": "custom-qa", "source_id": "q1"}},
		{"/sources/blog/b1", map[string]string{"surface": "sources", "source_type": "blog", "source_id": "b1"}},
		{"/chat/log-9/feedback", map[string]string{"surface": "chat", "chat_id": "log-9"}},
		{"/chat", map[string]string{"surface": "chat"}},
		{"/jobs/job-1", map[string]string{"surface": "jobs", "job_id": "job-1"}},
		{"/", map[string]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, routeTags(tt.path))
		})
	}
}

func TestSentryMiddleware_SkipsHealth(t *testing.T) {
	var hasHub bool
	handler := SentryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hasHub = sentry.GetHubFromContext(r.Context()) != nil
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.False(t, hasHub)

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/sources/faq/f1/sync", nil))
	assert.True(t, hasHub)
}
