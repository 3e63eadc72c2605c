package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func okHandler(t *testing.T, capture *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if capture != nil {
			*capture = GetClientID(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func rejectHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})
}

func TestAPIKeyAuth_Success(t *testing.T) {
	var clientID string
	handler := APIKeyAuth([]string{"first-key", "second-key"})(okHandler(t, &clientID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer second-key")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, clientID, 8)
	assert.NotContains(t, clientID, "second")
}

func TestAPIKeyAuth_MissingHeader(t *testing.T) {
	handler := APIKeyAuth([]string{"key"})(rejectHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestAPIKeyAuth_InvalidFormat(t *testing.T) {
	handler := APIKeyAuth([]string{"key"})(rejectHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestAPIKeyAuth_WrongKey(t *testing.T) {
	handler := APIKeyAuth([]string{"key"})(rejectHandler(t))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer other")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid api key")
}

func TestAPIKeyAuth_DisabledWithoutKeys(t *testing.T) {
	var clientID string
	handler := APIKeyAuth([]string{"", ""})(okHandler(t, &clientID))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, clientID)
}

func TestGetClientID_MissingContext(t *testing.T) {
	assert.Equal(t, "", GetClientID(context.Background()))
}
