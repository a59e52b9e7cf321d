package handler_test

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/handler"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/repository"
)

func TestProfileHandler(t *testing.T) {
	t.Run("first access returns defaults", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodGet, "/api/profile", "u1", nil)

		require.Equal(t, http.StatusOK, rr.Code)
		p := decode[handler.ProfileResponse](t, rr)
		assert.Equal(t, 2000, p.DailyGoal)
		assert.Equal(t, model.UnitsMl, p.Units)
		assert.False(t, p.RemindersEnabled)
		assert.Equal(t, 2.0, p.ReminderHours)
		assert.Equal(t, "2024-06-01", p.LastLogDate)
		assert.Zero(t, p.Progress)
	})

	t.Run("anonymous is rejected", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodGet, "/api/profile", "", nil)

		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("patch settings", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodPatch, "/api/profile", "u1", map[string]any{
			"dailyGoal":        2500,
			"units":            "oz",
			"remindersEnabled": true,
		})

		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		p := decode[handler.ProfileResponse](t, rr)
		assert.Equal(t, 2500, p.DailyGoal)
		assert.Equal(t, model.UnitsOz, p.Units)
		assert.True(t, p.RemindersEnabled)
	})

	t.Run("invalid settings", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodPatch, "/api/profile", "u1", map[string]any{"reminderHours": 0})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
		resp := decode[handler.ErrorResponse](t, rr)
		assert.Equal(t, "reminderHours", resp.Field)
	})

	t.Run("unknown field", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodPatch, "/api/profile", "u1", map[string]any{"todayIntake": 5000})

		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestLogHandler_Create(t *testing.T) {
	t.Run("same day then next day", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": 500})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		rr = h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": 750})
		require.Equal(t, http.StatusCreated, rr.Code)
		p := decode[handler.ProfileResponse](t, rr)
		assert.Equal(t, 1250, p.TodayIntake)
		assert.InDelta(t, 0.625, p.Progress, 1e-9)

		h.now = h.now.Add(24 * time.Hour)
		rr = h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": 300})
		require.Equal(t, http.StatusCreated, rr.Code)
		p = decode[handler.ProfileResponse](t, rr)
		assert.Equal(t, 300, p.TodayIntake)
		assert.Equal(t, "2024-06-02", p.LastLogDate)
	})

	t.Run("ounces are converted", func(t *testing.T) {
		h := newHarness(t)

		rr := h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": 8, "units": "oz"})

		require.Equal(t, http.StatusCreated, rr.Code)
		p := decode[handler.ProfileResponse](t, rr)
		assert.Equal(t, 237, p.TodayIntake) // 8 * 29.5735 = 236.588
	})

	t.Run("timezone header picks the day", func(t *testing.T) {
		h := newHarness(t)
		h.now = time.Date(2024, 6, 1, 23, 30, 0, 0, time.UTC)

		req := map[string]any{"amount": 200}
		rr := h.doWithHeader(t, http.MethodPost, "/api/logs", "u1", req, handler.TimezoneHeader, "Asia/Tokyo")

		require.Equal(t, http.StatusCreated, rr.Code)
		p := decode[handler.ProfileResponse](t, rr)
		assert.Equal(t, "2024-06-02", p.LastLogDate)
	})

	tests := []struct {
		name string
		body any
	}{
		{"zero amount", map[string]any{"amount": 0}},
		{"negative amount", map[string]any{"amount": -5}},
		{"bad units", map[string]any{"amount": 5, "units": "cups"}},
		{"rounds to zero ml", map[string]any{"amount": 0.2}},
		{"above single log cap", map[string]any{"amount": 5001}},
		{"oz above single log cap", map[string]any{"amount": 170, "units": "oz"}},
		{"larger than int", map[string]any{"amount": 1e300}},
		{"not json", "amount=5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)

			rr := h.do(t, http.MethodPost, "/api/logs", "u1", tt.body)

			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	t.Run("permission denied", func(t *testing.T) {
		h := newHarness(t)
		h.store.Fail = func(op apperror.Op, path string) error {
			if op == apperror.OpWrite {
				return apperror.Permission(path, op, nil)
			}
			return nil
		}

		rr := h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": 250})

		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "permission_denied", decode[handler.ErrorResponse](t, rr).Error)
	})

	t.Run("commit failure", func(t *testing.T) {
		h := newHarness(t)
		h.store.Fail = func(op apperror.Op, path string) error {
			if path == repository.LogPath("u1", "") {
				return errors.New("disk I/O error")
			}
			return nil
		}

		rr := h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": 250})

		assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
		resp := decode[handler.ErrorResponse](t, rr)
		assert.Equal(t, "transaction_failed", resp.Error)
		assert.NotContains(t, resp.Message, "disk")
	})
}

func TestLogHandler_Reads(t *testing.T) {
	h := newHarness(t)

	rr := h.do(t, http.MethodGet, "/api/logs/latest", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	rr = h.do(t, http.MethodGet, "/api/logs", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, "[]", rr.Body.String())

	for _, amount := range []int{100, 200, 300} {
		h.do(t, http.MethodPost, "/api/logs", "u1", map[string]any{"amount": amount})
		h.now = h.now.Add(time.Minute)
	}

	rr = h.do(t, http.MethodGet, "/api/logs?limit=2", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	logs := decode[[]model.WaterLog](t, rr)
	require.Len(t, logs, 2)
	assert.Equal(t, 300, logs[0].Amount)
	assert.Equal(t, 200, logs[1].Amount)

	rr = h.do(t, http.MethodGet, "/api/logs/latest", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 300, decode[model.WaterLog](t, rr).Amount)

	rr = h.do(t, http.MethodGet, "/api/history?days=2", "u1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []model.DailyTotal{
		{Date: "2024-05-31", Total: 0},
		{Date: "2024-06-01", Total: 600},
	}, decode[[]model.DailyTotal](t, rr))

	rr = h.do(t, http.MethodGet, "/api/logs?limit=abc", "u1", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
