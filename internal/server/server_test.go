package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hydrate/internal/config"
	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/repository/memory"
)

func testConfig() config.Config {
	return config.Config{
		Port:               8080,
		DBDriver:           config.DriverMemory,
		JWTSecret:          "server-test-secret-0123456789",
		JWTTTL:             time.Hour,
		DefaultTZ:          "UTC",
		LogLevel:           "info",
		LogFormat:          "text",
		ReminderSessionTTL: time.Minute,
		BackgroundTimeout:  time.Second,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewWithStore(cfg, memory.New(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func send(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, testConfig())

	rr := send(t, s.Handler(), http.MethodGet, "/healthz", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("Content-Type"))
}

func TestSignUpThenLog(t *testing.T) {
	s := newTestServer(t, testConfig())
	h := s.Handler()

	rr := send(t, h, http.MethodPost, "/auth/signup", "", map[string]string{
		"email":    "ana@example.com",
		"password": "secret1",
	})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var session handler.SessionResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&session))
	require.NotEmpty(t, session.Token)

	rr = send(t, h, http.MethodPost, "/api/logs", session.Token, map[string]any{"amount": 500})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	rr = send(t, h, http.MethodPost, "/api/logs", session.Token, map[string]any{"amount": 750})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = send(t, h, http.MethodGet, "/api/profile", session.Token, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var p handler.ProfileResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&p))
	assert.Equal(t, 1250, p.TodayIntake)
	assert.Equal(t, "ana@example.com", p.Email)
	assert.Equal(t, session.User.ID, p.ID)
}

func TestAPIRequiresAuth(t *testing.T) {
	s := newTestServer(t, testConfig())

	for _, path := range []string{"/api/me", "/api/profile", "/api/logs", "/api/history"} {
		rr := send(t, s.Handler(), http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}

	rr := send(t, s.Handler(), http.MethodGet, "/api/profile", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestGitHubRoutes(t *testing.T) {
	t.Run("absent when not configured", func(t *testing.T) {
		s := newTestServer(t, testConfig())

		rr := send(t, s.Handler(), http.MethodGet, "/auth/github/login", "", nil)

		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("mounted when configured", func(t *testing.T) {
		cfg := testConfig()
		cfg.GitHubClientID = "id"
		cfg.GitHubClientSecret = "secret"
		cfg.GitHubCallbackURL = "http://localhost:8080/auth/github/callback"
		s := newTestServer(t, cfg)

		rr := send(t, s.Handler(), http.MethodGet, "/auth/github/login", "", nil)

		assert.Equal(t, http.StatusTemporaryRedirect, rr.Code)
		assert.Contains(t, rr.Header().Get("Location"), "github.com/login/oauth/authorize")
	})
}

func TestRequestIDHeaderIsAccepted(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-Id", "abc-123")
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestOpenStoreUnknownDriver(t *testing.T) {
	cfg := testConfig()
	cfg.DBDriver = "mongo"

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	_, err := openStore(ctx, cfg)

	assert.ErrorContains(t, err, `unknown driver "mongo"`)
}
