package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/hydrate/internal/apperror"
	"github.com/sakif/hydrate/internal/auth"
	"github.com/sakif/hydrate/internal/model"
	"github.com/sakif/hydrate/internal/service"
)

// Profiles is what the profile handler needs from the service layer.
type Profiles interface {
	GetProfile(ctx context.Context, userID string, loc *time.Location) (*model.UserProfile, error)
	UpdateSettings(ctx context.Context, userID string, patch service.SettingsPatch, loc *time.Location) (*model.UserProfile, error)
}

// ProfileResponse is the profile plus values derived for display.
type ProfileResponse struct {
	*model.UserProfile
	Progress    float64 `json:"progress"` // 0..1
	GoalReached bool    `json:"goalReached"`
}

func newProfileResponse(p *model.UserProfile) ProfileResponse {
	return ProfileResponse{
		UserProfile: p,
		Progress:    p.Progress(),
		GoalReached: p.DailyGoal > 0 && p.TodayIntake >= p.DailyGoal,
	}
}

type ProfileHandler struct {
	profiles Profiles
	locator  Locator
	logger   *slog.Logger
}

func NewProfileHandler(profiles Profiles, locator Locator, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, locator: locator, logger: logger}
}

// HandleGet returns today's view of the profile, creating or rolling it over
// as needed.
//
// HTTP: GET /api/profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, loc, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}

	p, err := h.profiles.GetProfile(r.Context(), userID, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(p))
}

// HandleUpdate applies a partial settings update.
//
// HTTP: PATCH /api/profile {"dailyGoal": 2500, "units": "oz", "remindersEnabled": true, "reminderHours": 1.5}
func (h *ProfileHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, loc, ok := requestScope(w, r, h.locator)
	if !ok {
		return
	}

	var patch service.SettingsPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, err)
		return
	}

	p, err := h.profiles.UpdateSettings(r.Context(), userID, patch, loc)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newProfileResponse(p))
}

// requestScope pulls the authenticated user and the caller's timezone out of r.
// It writes the error response itself and returns ok=false on failure.
func requestScope(w http.ResponseWriter, r *http.Request, locator Locator) (string, *time.Location, bool) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthorized("valid authentication required"))
		return "", nil, false
	}
	loc, err := locator.Location(r)
	if err != nil {
		writeError(w, err)
		return "", nil, false
	}
	return userID, loc, true
}
