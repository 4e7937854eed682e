package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notemv-server/pkg/jwt"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "middleware-secret"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r)))
	})
}

func TestAuthMiddleware(t *testing.T) {
	access, err := jwt.GenerateToken("user-1", time.Hour, secret)
	require.NoError(t, err)
	refresh, err := jwt.GenerateRefreshToken("user-1", time.Hour, secret)
	require.NoError(t, err)

	handler := AuthMiddleware(secret)(echoUser())

	tests := []struct {
		name   string
		header string
		query  string
		status int
	}{
		{"bearer header", "Bearer " + access, "", http.StatusOK},
		{"lowercase scheme", "bearer " + access, "", http.StatusOK},
		{"query token", "", "?token=" + access, http.StatusOK},
		{"missing", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + access, "", http.StatusUnauthorized},
		{"refresh token", "Bearer " + refresh, "", http.StatusUnauthorized},
		{"garbage", "Bearer nope", "", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/notes"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}

func TestLoggerMiddlewareRecordsUser(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	access, err := jwt.GenerateToken("user-9", time.Hour, secret)
	require.NoError(t, err)

	handler := LoggerMiddleware(logger)(AuthMiddleware(secret)(echoUser()))
	req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "user-9", entry["user_id"])
	assert.Equal(t, float64(200), entry["status"])
	assert.Equal(t, "/api/v1/users/me", entry["path"])
	assert.Equal(t, "http", entry["component"])
}

func TestLoggerMiddlewareWarnsOnClientErrors(t *testing.T) {
	var buf bytes.Buffer
	handler := LoggerMiddleware(zerolog.New(&buf))(http.NotFoundHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "anonymous", entry["user_id"])
}

func TestCORSMiddleware(t *testing.T) {
	handler := CORSMiddleware("https://app.example.com, https://admin.example.com", "GET,POST", "Content-Type")(echoUser())

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/notes", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/v1/notes", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
