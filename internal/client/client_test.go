package client_test

import (
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

	"github.com/sakif/hydrate/internal/client"
	"github.com/sakif/hydrate/internal/config"
	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository/memory"
	"github.com/sakif/hydrate/internal/server"
	"github.com/sakif/hydrate/internal/service"
)

// newAPI runs the real server on a memory store.
func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Config{
		Port:               8080,
		DBDriver:           config.DriverMemory,
		JWTSecret:          "client-test-secret-0123456789",
		JWTTTL:             time.Hour,
		DefaultTZ:          "UTC",
		ReminderSessionTTL: time.Minute,
		BackgroundTimeout:  time.Second,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv, err := server.NewWithStore(cfg, memory.New(), logger)
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() })

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func signedIn(t *testing.T, ts *httptest.Server) *client.Client {
	t.Helper()
	c := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	_, err := c.SignUp(context.Background(), "ana@example.com", "secret1")
	require.NoError(t, err)
	require.NotEmpty(t, c.Token())
	return c
}

func TestClient_EndToEnd(t *testing.T) {
	ts := newAPI(t)
	c := signedIn(t, ts)
	ctx := context.Background()

	me, err := c.Me(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", me.Email)

	p, err := c.Profile(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultDailyGoal, p.DailyGoal)
	assert.Zero(t, p.TodayIntake)

	_, err = c.LogWater(ctx, 500, model.UnitsMl)
	require.NoError(t, err)
	p, err = c.LogWater(ctx, 750, model.UnitsMl)
	require.NoError(t, err)
	assert.Equal(t, 1250, p.TodayIntake)

	logs, err := c.Logs(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	latest, err := c.LatestLog(ctx)
	require.NoError(t, err)
	assert.Equal(t, 750, latest.Amount)

	history, err := c.History(ctx, 3)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, 1250, history[2].Total)

	goal := 3000
	p, err = c.UpdateSettings(ctx, service.SettingsPatch{DailyGoal: &goal})
	require.NoError(t, err)
	assert.Equal(t, 3000, p.DailyGoal)
	assert.Equal(t, 1250, p.TodayIntake)
}

func TestClient_APIErrors(t *testing.T) {
	ts := newAPI(t)
	ctx := context.Background()

	anon := client.New(ts.URL, client.WithHTTPClient(ts.Client()))
	_, err := anon.Profile(ctx)
	assert.True(t, client.IsStatus(err, http.StatusUnauthorized))

	_, err = anon.SignIn(ctx, "nobody@example.com", "secret1")
	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "invalid_credentials", apiErr.Type)
	assert.Equal(t, "Invalid email or password.", apiErr.Message)
	assert.Empty(t, anon.Token())

	c := signedIn(t, ts)
	_, err = c.LogWater(ctx, -1, model.UnitsMl)
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_error", apiErr.Type)

	_, err = c.LatestLog(ctx)
	assert.True(t, client.IsStatus(err, http.StatusNotFound))
}

func TestClient_SendsTimezone(t *testing.T) {
	var got string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(handler.TimezoneHeader)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(model.NewProfile("u1", "2024-06-01"))
	}))
	defer ts.Close()

	c := client.New(ts.URL, client.WithTimezone("Asia/Tokyo"), client.WithToken("t"))
	_, err := c.Profile(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", got)
}

func TestClient_PlainTextError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	defer ts.Close()

	_, err := client.New(ts.URL).Profile(context.Background())

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Empty(t, apiErr.Type)
	assert.Equal(t, "upstream exploded", apiErr.Message)
}
